package queue

import (
	"context"
	"fmt"
	"time"

	"groupnotify/internal/domain/dispatch"

	"github.com/hibiken/asynq"
)

// QueueName is the asynq queue dispatch tasks are enqueued on.
const QueueName = "notifications"

// NewClient creates a new asynq client connected to Redis.
func NewClient(redisAddr, password string, db int) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
}

// NewServer creates a new asynq server connected to Redis.
func NewServer(redisAddr, password string, db int, concurrency int) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     redisAddr,
			Password: password,
			DB:       db,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueName: 10, // priority weight
				"default": 1,
			},
			RetryDelayFunc: RetryDelay,
		},
	)
}

// RetryDelay backs off exponentially: 30s, 60s, 120s, 240s, 480s.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(30*(1<<uint(n-1))) * time.Second
}

// Enqueuer is the subset of *asynq.Client the launcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

var _ dispatch.Launcher = (*Launcher)(nil)

// Launcher starts background workers by enqueuing dispatch tasks.
type Launcher struct {
	client   Enqueuer
	maxRetry int
	timeout  time.Duration
}

// NewLauncher creates a queue launcher. A zero timeout leaves the asynq
// default in place.
func NewLauncher(client Enqueuer, maxRetry int, timeout time.Duration) *Launcher {
	return &Launcher{
		client:   client,
		maxRetry: maxRetry,
		timeout:  timeout,
	}
}

// Launch enqueues a dispatch task carrying the encoded worker request.
func (l *Launcher) Launch(ctx context.Context, query string) error {
	task, err := dispatch.NewDispatchTask(query)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(l.maxRetry),
		asynq.Queue(QueueName),
	}
	if l.timeout > 0 {
		opts = append(opts, asynq.Timeout(l.timeout))
	}

	if _, err := l.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueuing task: %w", err)
	}
	return nil
}
