package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/musetalk/internal/generation"
	"github.com/nikhilbhutani/musetalk/internal/queue"
)

// Runner is the part of generation.Service the worker drives.
type Runner interface {
	Run(ctx context.Context, id uuid.UUID) (*generation.Record, error)
}

type GenerationWorker struct {
	runner Runner
}

func NewGenerationWorker(runner Runner) *GenerationWorker {
	return &GenerationWorker{runner: runner}
}

func (w *GenerationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.GenerationRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	id, err := uuid.Parse(payload.GenerationID)
	if err != nil {
		return fmt.Errorf("invalid generation id %q: %w", payload.GenerationID, asynq.SkipRetry)
	}

	slog.Info("running generation", "generation_id", id)

	rec, err := w.runner.Run(ctx, id)
	if errors.Is(err, generation.ErrNotFound) {
		return fmt.Errorf("generation %s: %v: %w", id, err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}

	slog.Info("generation task done", "generation_id", id, "status", rec.Status)
	return nil
}
