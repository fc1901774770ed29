package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/musetalk/internal/generation"
	"github.com/nikhilbhutani/musetalk/internal/queue"
)

type stubRunner struct {
	ids []uuid.UUID
	err error
}

func (s *stubRunner) Run(_ context.Context, id uuid.UUID) (*generation.Record, error) {
	s.ids = append(s.ids, id)
	if s.err != nil {
		return nil, s.err
	}
	return &generation.Record{ID: id, Status: generation.StatusSucceeded}, nil
}

func TestGenerationWorkerRunsRecord(t *testing.T) {
	id := uuid.New()
	task, err := queue.NewTask(queue.TypeGenerationRun, queue.GenerationRunPayload{GenerationID: id.String()})
	require.NoError(t, err)

	runner := &stubRunner{}
	require.NoError(t, NewGenerationWorker(runner).ProcessTask(context.Background(), task))
	assert.Equal(t, []uuid.UUID{id}, runner.ids)
}

func TestGenerationWorkerSkipsRetryOnBadInput(t *testing.T) {
	runner := &stubRunner{}
	w := NewGenerationWorker(runner)

	err := w.ProcessTask(context.Background(), asynq.NewTask(queue.TypeGenerationRun, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, _ := queue.NewTask(queue.TypeGenerationRun, queue.GenerationRunPayload{GenerationID: "nope"})
	assert.ErrorIs(t, w.ProcessTask(context.Background(), task), asynq.SkipRetry)
	assert.Empty(t, runner.ids)
}

func TestGenerationWorkerMissingRecord(t *testing.T) {
	task, _ := queue.NewTask(queue.TypeGenerationRun, queue.GenerationRunPayload{GenerationID: uuid.NewString()})

	err := NewGenerationWorker(&stubRunner{err: generation.ErrNotFound}).ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = NewGenerationWorker(&stubRunner{err: errors.New("redis timeout")}).ProcessTask(context.Background(), task)
	assert.EqualError(t, err, "redis timeout")
}
