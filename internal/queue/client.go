package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/musetalk/internal/config"
)

// ErrDuplicate is returned when a task with the same id is already queued.
var ErrDuplicate = errors.New("task already enqueued")

func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

type Client struct {
	client *asynq.Client
}

func NewClient(cfg config.RedisConfig) *Client {
	return &Client{client: asynq.NewClient(RedisOpt(cfg))}
}

func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueGeneration queues one generation run. The generation id doubles as
// the task id, and the task is never retried: a retry would submit a second
// prediction.
func (c *Client) EnqueueGeneration(ctx context.Context, payload GenerationRunPayload, timeout time.Duration) error {
	return c.enqueue(ctx, TypeGenerationRun, payload,
		asynq.TaskID(payload.GenerationID),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Retention(24*time.Hour),
	)
}

func (c *Client) enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) error {
	task, err := NewTask(taskType, payload)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}

// NewTask builds a task with a JSON payload.
func NewTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(taskType, data), nil
}
