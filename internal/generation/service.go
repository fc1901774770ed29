package generation

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/musetalk/internal/queue"
	"github.com/nikhilbhutani/musetalk/internal/replicate"
)

// Enqueuer hands a generation to the worker pool.
type Enqueuer interface {
	EnqueueGeneration(ctx context.Context, payload queue.GenerationRunPayload, timeout time.Duration) error
}

type Generator interface {
	SubmitAndAwait(ctx context.Context, req replicate.GenerationRequest) replicate.Outcome
}

// Notifier delivers completion events to a caller-supplied URL.
type Notifier interface {
	Notify(url, event string, payload any) error
}

type EnqueueRequest struct {
	Prompt      string
	Seconds     int
	CallbackURL string
}

type Service struct {
	store    Store
	enqueuer Enqueuer
	gen      Generator
	notifier Notifier
	budget   time.Duration
	now      func() time.Time
}

// NewService wires the job flow. budget is the longest one SubmitAndAwait
// call can take; task timeouts are derived from it. enqueuer is only needed by Enqueue, gen and
// notifier only by Run.
func NewService(store Store, enqueuer Enqueuer, gen Generator, notifier Notifier, budget time.Duration) *Service {
	return &Service{
		store:    store,
		enqueuer: enqueuer,
		gen:      gen,
		notifier: notifier,
		budget:   budget,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TaskTimeout bounds one worker run: the generation budget plus room for
// loading and storing the record.
func (s *Service) TaskTimeout() time.Duration {
	return s.budget + time.Minute
}

// Enqueue records a queued generation and schedules it.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*Record, error) {
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, ErrInvalidCallback
		}
	}

	gr := replicate.NewGenerationRequest(req.Prompt, req.Seconds)
	now := s.now()
	rec := &Record{
		ID:              uuid.New(),
		Prompt:          gr.Prompt,
		DurationSeconds: gr.DurationSeconds,
		Status:          StatusQueued,
		CallbackURL:     req.CallbackURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save generation: %w", err)
	}

	payload := queue.GenerationRunPayload{GenerationID: rec.ID.String()}
	if err := s.enqueuer.EnqueueGeneration(ctx, payload, s.TaskTimeout()); err != nil {
		rec.Status = StatusFailed
		rec.Error = "enqueue_failed"
		rec.Message = err.Error()
		rec.UpdatedAt = s.now()
		if serr := s.store.Save(context.WithoutCancel(ctx), rec); serr != nil {
			slog.Error("failed to record enqueue failure", "id", rec.ID, "error", serr)
		}
		return nil, fmt.Errorf("enqueue generation: %w", err)
	}

	slog.Info("generation queued", "id", rec.ID, "duration_seconds", rec.DurationSeconds)
	return rec, nil
}

// Run drives one queued generation to a terminal record. A record that is
// already terminal is left alone. A record still marked running belongs to
// an earlier delivery of the same task whose prediction may be billing; it
// is closed as interrupted instead of being submitted again. Generation
// failures are stored, not returned; the error result is reserved for
// storage problems.
func (s *Service) Run(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load generation %s: %w", id, err)
	}
	if rec.Status.Terminal() {
		slog.Info("generation already finished", "id", id, "status", rec.Status)
		return rec, nil
	}
	if rec.Status == StatusRunning {
		return s.interrupt(ctx, rec)
	}

	rec.Status = StatusRunning
	rec.UpdatedAt = s.now()
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("mark generation running: %w", err)
	}

	out := s.gen.SubmitAndAwait(ctx, replicate.GenerationRequest{
		Prompt:          rec.Prompt,
		DurationSeconds: rec.DurationSeconds,
	})
	rec.applyOutcome(out, s.now())

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.Save(saveCtx, rec); err != nil {
		return nil, fmt.Errorf("save generation result: %w", err)
	}

	slog.Info("generation finished",
		"id", id,
		"status", rec.Status,
		"outcome", out.Kind.String(),
		"polls", out.Polls,
		"elapsed", out.Elapsed,
	)

	s.notify(rec)
	return rec, nil
}

func (s *Service) interrupt(ctx context.Context, rec *Record) (*Record, error) {
	slog.Warn("generation was interrupted mid-run, not resubmitting", "id", rec.ID, "prediction_id", rec.PredictionID)
	rec.Status = StatusFailed
	rec.Error = "interrupted"
	rec.Message = "worker stopped while the prediction was running"
	rec.UpdatedAt = s.now()
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save interrupted generation: %w", err)
	}
	s.notify(rec)
	return rec, nil
}

func (s *Service) notify(rec *Record) {
	if rec.CallbackURL == "" || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(rec.CallbackURL, rec.Event(), rec); err != nil {
		slog.Warn("generation webhook not queued", "id", rec.ID, "error", err)
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.store.Get(ctx, id)
}
