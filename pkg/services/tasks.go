package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"BranchChat/pkg/logger"
	"BranchChat/pkg/queue"
)

const (
	SummaryTaskType = "summary:recompute"
	SweepTaskType   = "retention:sweep"

	summaryUniqueTTL = 30 * time.Second
)

type summaryPayload struct {
	VersionID string `json:"version_id"`
}

func NewSummaryTask(versionID string) (queue.Task, error) {
	payload, err := json.Marshal(summaryPayload{VersionID: versionID})
	if err != nil {
		return queue.Task{}, err
	}
	return queue.Task{Type: SummaryTaskType, Payload: payload}, nil
}

func NewSweepTask() queue.Task {
	return queue.Task{Type: SweepTaskType}
}

// SummaryTaskHandler recomputes the summary named by a summary task. Tasks for
// versions that no longer exist are dropped.
func SummaryTaskHandler(trigger *SummaryTrigger, log *logger.Logger) queue.Handler {
	return func(ctx context.Context, t queue.Task) error {
		var p summaryPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil || p.VersionID == "" {
			log.Warn("dropping malformed summary task", "payload", string(t.Payload))
			return nil
		}
		if _, err := trigger.Recompute(ctx, p.VersionID); err != nil {
			if errors.Is(err, ErrNotFound) {
				log.Info("summary task for missing version", "version_id", p.VersionID)
				return nil
			}
			return err
		}
		return nil
	}
}

func SweepTaskHandler(sweeper *RetentionSweeper) queue.Handler {
	return func(ctx context.Context, _ queue.Task) error {
		_, err := sweeper.Sweep(ctx, sweeper.Now())
		return err
	}
}

// QueueDispatcher defers summary recomputes to the worker. When the queue
// cannot take the task the recompute runs inline instead.
type QueueDispatcher struct {
	client   queue.Client
	fallback SummaryDispatcher
	log      *logger.Logger
}

func NewQueueDispatcher(client queue.Client, fallback SummaryDispatcher, log *logger.Logger) *QueueDispatcher {
	return &QueueDispatcher{client: client, fallback: fallback, log: log}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, versionID string) {
	task, err := NewSummaryTask(versionID)
	if err == nil {
		_, err = d.client.Enqueue(ctx, task, queue.EnqueueOption{UniqueTTL: summaryUniqueTTL, MaxRetry: 3})
	}
	switch {
	case err == nil, errors.Is(err, queue.ErrDuplicate):
		return
	default:
		d.log.Warn("summary enqueue failed, running inline", "version_id", versionID, "error", err)
		d.fallback.Dispatch(ctx, versionID)
	}
}
