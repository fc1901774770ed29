package generation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/musetalk/internal/queue"
	"github.com/nikhilbhutani/musetalk/internal/replicate"
)

type stubEnqueuer struct {
	err      error
	payloads []queue.GenerationRunPayload
	timeout  time.Duration
}

func (s *stubEnqueuer) EnqueueGeneration(_ context.Context, p queue.GenerationRunPayload, timeout time.Duration) error {
	s.payloads = append(s.payloads, p)
	s.timeout = timeout
	return s.err
}

type stubGenerator struct {
	out   replicate.Outcome
	calls int
	last  replicate.GenerationRequest
}

func (s *stubGenerator) SubmitAndAwait(_ context.Context, req replicate.GenerationRequest) replicate.Outcome {
	s.calls++
	s.last = req
	return s.out
}

type notification struct {
	url, event string
	payload    any
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (s *stubNotifier) Notify(url, event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, notification{url, event, payload})
	return nil
}

func TestEnqueue(t *testing.T) {
	store := NewMemoryStore()
	enq := &stubEnqueuer{}
	svc := NewService(store, enq, nil, nil, 60*time.Second)

	rec, err := svc.Enqueue(context.Background(), EnqueueRequest{Prompt: "", Seconds: 0, CallbackURL: "https://hooks.example/done"})

	require.NoError(t, err)
	assert.Equal(t, StatusQueued, rec.Status)
	assert.Equal(t, replicate.DefaultPrompt, rec.Prompt)
	assert.Equal(t, replicate.DefaultDurationSeconds, rec.DurationSeconds)
	require.Len(t, enq.payloads, 1)
	assert.Equal(t, rec.ID.String(), enq.payloads[0].GenerationID)
	assert.Equal(t, 2*time.Minute, enq.timeout)

	stored, err := svc.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, stored.Status)
}

func TestEnqueueRejectsBadCallback(t *testing.T) {
	enq := &stubEnqueuer{}
	svc := NewService(NewMemoryStore(), enq, nil, nil, time.Minute)

	for _, cb := range []string{"not a url", "/relative", "ftp://example.com/x"} {
		_, err := svc.Enqueue(context.Background(), EnqueueRequest{Prompt: "p", CallbackURL: cb})
		assert.ErrorIs(t, err, ErrInvalidCallback, cb)
	}
	assert.Empty(t, enq.payloads)
}

func TestEnqueueFailureMarksRecord(t *testing.T) {
	store := NewMemoryStore()
	enq := &stubEnqueuer{err: errors.New("redis down")}
	svc := NewService(store, enq, nil, nil, time.Minute)

	_, err := svc.Enqueue(context.Background(), EnqueueRequest{Prompt: "p"})
	require.Error(t, err)

	id, perr := uuid.Parse(enq.payloads[0].GenerationID)
	require.NoError(t, perr)
	rec, gerr := store.Get(context.Background(), id)
	require.NoError(t, gerr)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "enqueue_failed", rec.Error)
}

func TestRunSucceeded(t *testing.T) {
	store := NewMemoryStore()
	gen := &stubGenerator{out: replicate.Outcome{
		Kind:        replicate.OutcomeSucceeded,
		ArtifactURL: "https://x/a.wav",
		JobID:       "p1",
		Polls:       4,
	}}
	notifier := &stubNotifier{}
	svc := NewService(store, &stubEnqueuer{}, gen, notifier, time.Minute)

	queued, err := svc.Enqueue(context.Background(), EnqueueRequest{Prompt: "lofi", Seconds: 8, CallbackURL: "https://hooks.example/done"})
	require.NoError(t, err)

	rec, err := svc.Run(context.Background(), queued.ID)
	require.NoError(t, err)

	assert.Equal(t, replicate.GenerationRequest{Prompt: "lofi", DurationSeconds: 8}, gen.last)
	assert.Equal(t, StatusSucceeded, rec.Status)
	assert.Equal(t, "https://x/a.wav", rec.AudioURL)
	assert.Equal(t, "p1", rec.PredictionID)
	assert.Equal(t, 4, rec.Polls)
	assert.Empty(t, rec.Error)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "https://hooks.example/done", notifier.sent[0].url)
	assert.Equal(t, "generation.succeeded", notifier.sent[0].event)

	again, err := svc.Run(context.Background(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, again.Status)
	assert.Equal(t, 1, gen.calls)
}

func TestRunMapsOutcomes(t *testing.T) {
	failedBody := json.RawMessage(`{"status":"failed","error":"oom"}`)
	tests := []struct {
		name   string
		out    replicate.Outcome
		status Status
		code   string
		detail string
	}{
		{
			name:   "backend failed",
			out:    replicate.Outcome{Kind: replicate.OutcomeBackendFailed, Err: &replicate.BackendError{State: replicate.StateFailed, Detail: failedBody}},
			status: StatusFailed,
			code:   "backend_failed",
			detail: string(failedBody),
		},
		{
			name:   "backend canceled",
			out:    replicate.Outcome{Kind: replicate.OutcomeBackendCanceled, Err: &replicate.BackendError{State: replicate.StateCanceled, Detail: json.RawMessage(`{"status":"canceled"}`)}},
			status: StatusCanceled,
			code:   "backend_canceled",
			detail: `{"status":"canceled"}`,
		},
		{
			name:   "timeout",
			out:    replicate.Outcome{Kind: replicate.OutcomeTimeout, Err: replicate.ErrTimeout},
			status: StatusTimeout,
			code:   "timeout",
		},
		{
			name:   "submission failed",
			out:    replicate.Outcome{Kind: replicate.OutcomeSubmissionFailed, Err: &replicate.SubmissionError{StatusCode: 422, Body: `{"detail":"bad version"}`}},
			status: StatusFailed,
			code:   "submission_failed",
			detail: `{"detail":"bad version"}`,
		},
		{
			name:   "configuration",
			out:    replicate.Outcome{Kind: replicate.OutcomeConfigurationError, Err: &replicate.ConfigurationError{Missing: "REPLICATE_API_TOKEN"}},
			status: StatusFailed,
			code:   "configuration_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			svc := NewService(store, &stubEnqueuer{}, &stubGenerator{out: tt.out}, nil, time.Minute)
			queued, err := svc.Enqueue(context.Background(), EnqueueRequest{Prompt: "p"})
			require.NoError(t, err)

			rec, err := svc.Run(context.Background(), queued.ID)
			require.NoError(t, err)

			assert.Equal(t, tt.status, rec.Status)
			assert.Equal(t, tt.code, rec.Error)
			assert.NotEmpty(t, rec.Message)
			assert.Empty(t, rec.AudioURL)
			if tt.detail != "" {
				assert.JSONEq(t, tt.detail, string(rec.Detail))
			} else {
				assert.Empty(t, rec.Detail)
			}
		})
	}
}

func TestRunUnknownID(t *testing.T) {
	svc := NewService(NewMemoryStore(), &stubEnqueuer{}, &stubGenerator{}, nil, time.Minute)

	_, err := svc.Run(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunInterruptedRecordIsNotResubmitted(t *testing.T) {
	store := NewMemoryStore()
	gen := &stubGenerator{out: replicate.Outcome{Kind: replicate.OutcomeSucceeded, ArtifactURL: "https://x/a.wav"}}
	notifier := &stubNotifier{}
	svc := NewService(store, &stubEnqueuer{}, gen, notifier, time.Minute)

	rec := &Record{
		ID:              uuid.New(),
		Prompt:          "lofi",
		DurationSeconds: 8,
		Status:          StatusRunning,
		CallbackURL:     "https://hooks.example/done",
	}
	require.NoError(t, store.Save(context.Background(), rec))

	got, err := svc.Run(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "interrupted", got.Error)

	stored, err := store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, stored.Status)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "generation.failed", notifier.sent[0].event)
}
