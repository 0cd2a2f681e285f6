package queue

import (
	"context"
	"time"
)

// Task is a background job: a stable type name and an opaque payload.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error asks the backend to retry, so
// handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption controls enqueue behaviour. Zero values mean unspecified.
type EnqueueOption struct {
	Queue     string
	ProcessIn time.Duration
	MaxRetry  int
	UniqueTTL time.Duration // reject duplicates of the same type+payload within this window
	Timeout   time.Duration
}

// Client enqueues tasks.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server runs workers for registered task types. Run blocks until ctx ends.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
}
