package queue

import (
	"context"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"BranchChat/pkg/logger"
)

// ErrDuplicate is returned by Enqueue when a unique task is already pending.
var ErrDuplicate = errors.New("queue: duplicate task")

func redisOpt(redisURL string) (asynq.RedisConnOpt, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("queue: redis url is not set")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "queue: parse redis url")
	}
	return opt, nil
}

// AsynqClient implements Client on top of asynq.
type AsynqClient struct {
	client *asynq.Client
}

var _ Client = (*AsynqClient)(nil)

func NewAsynqClient(redisURL string) (*AsynqClient, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return &AsynqClient{client: asynq.NewClient(opt)}, nil
}

func (a *AsynqClient) Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("queue: task type is required")
	}
	info, err := a.client.EnqueueContext(ctx, asynq.NewTask(t.Type, t.Payload), asynqOptions(opts)...)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return "", ErrDuplicate
		}
		return "", errors.Wrapf(err, "queue: enqueue %s", t.Type)
	}
	return info.ID, nil
}

func (a *AsynqClient) Close() error {
	return a.client.Close()
}

func asynqOptions(opts []EnqueueOption) []asynq.Option {
	var out []asynq.Option
	for _, op := range opts {
		if op.Queue != "" {
			out = append(out, asynq.Queue(op.Queue))
		}
		if op.ProcessIn > 0 {
			out = append(out, asynq.ProcessIn(op.ProcessIn))
		}
		if op.MaxRetry > 0 {
			out = append(out, asynq.MaxRetry(op.MaxRetry))
		}
		if op.UniqueTTL > 0 {
			out = append(out, asynq.Unique(op.UniqueTTL))
		}
		if op.Timeout > 0 {
			out = append(out, asynq.Timeout(op.Timeout))
		}
	}
	return out
}

// AsynqServer implements Server on top of asynq.
type AsynqServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

var _ Server = (*AsynqServer)(nil)

func NewAsynqServer(redisURL string, concurrency int, log *logger.Logger) (*AsynqServer, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("task failed", "type", task.Type(), "error", err)
		}),
	})
	return &AsynqServer{server: srv, mux: asynq.NewServeMux()}, nil
}

func (s *AsynqServer) Register(taskType string, h Handler) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, Task{Type: t.Type(), Payload: t.Payload()})
	})
}

func (s *AsynqServer) Run(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return errors.Wrap(err, "queue: start server")
	}
	<-ctx.Done()
	s.server.Shutdown()
	return nil
}

// Scheduler enqueues periodic tasks.
type Scheduler struct {
	scheduler *asynq.Scheduler
}

func NewScheduler(redisURL string) (*Scheduler, error) {
	opt, err := redisOpt(redisURL)
	if err != nil {
		return nil, err
	}
	return &Scheduler{scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{})}, nil
}

// Every registers t on a cron spec such as "@every 60m".
func (s *Scheduler) Every(spec string, t Task, opts ...EnqueueOption) (string, error) {
	id, err := s.scheduler.Register(spec, asynq.NewTask(t.Type, t.Payload), asynqOptions(opts)...)
	if err != nil {
		return "", errors.Wrapf(err, "queue: schedule %s", t.Type)
	}
	return id, nil
}

func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.scheduler.Start(); err != nil {
		return errors.Wrap(err, "queue: start scheduler")
	}
	<-ctx.Done()
	s.scheduler.Shutdown()
	return nil
}
