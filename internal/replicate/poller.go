package replicate

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SubmitAndAwait submits req and polls until the prediction is terminal, the
// budget is spent or ctx ends. Every failure is folded into the returned
// Outcome.
//
// The budget is checked before each wait, so a status check started just
// under the deadline may complete after it unless Config.HardDeadline is set.
func (c *Client) SubmitAndAwait(ctx context.Context, req GenerationRequest) Outcome {
	if err := c.validate(); err != nil {
		return Outcome{Kind: OutcomeConfigurationError, Err: err}
	}
	req = req.effective()
	logger := c.logger.With("model", c.cfg.Model)

	handle, err := c.Submit(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Kind: OutcomeCanceledByCaller, Err: ErrCanceledByCaller}
		}
		logger.Warn("prediction submission failed", "error", err)
		return Outcome{Kind: kindOf(err), Err: err}
	}

	started := c.clock.Now()
	logger = logger.With("prediction_id", handle.ID)
	logger.Info("prediction submitted", "duration_seconds", req.DurationSeconds)

	pollCtx := ctx
	if c.cfg.HardDeadline {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	p := &session{
		client:  c,
		handle:  handle,
		started: started,
		logger:  logger,
		out:     Outcome{JobID: handle.ID},
	}
	return p.run(ctx, pollCtx)
}

// session is the state of one polling run.
type session struct {
	client  *Client
	handle  *JobHandle
	started time.Time
	logger  *slog.Logger
	out     Outcome
}

func (s *session) run(callerCtx, pollCtx context.Context) Outcome {
	cfg := s.client.cfg

	for {
		if s.elapsed() >= cfg.Timeout {
			s.logger.Warn("prediction timed out", "polls", s.out.Polls, "elapsed", s.elapsed())
			return s.finish(OutcomeTimeout, ErrTimeout)
		}

		if err := s.wait(pollCtx, cfg.PollInterval); err != nil {
			return s.interrupted(callerCtx)
		}

		status, err := s.client.Check(pollCtx, s.handle)
		s.out.Polls++
		if err != nil {
			var reqErr *RequestError
			if errors.As(err, &reqErr) && pollCtx.Err() != nil {
				return s.interrupted(callerCtx)
			}
			s.logger.Warn("status check failed", "error", err)
			return s.finish(kindOf(err), err)
		}

		s.logger.Debug("prediction status", "state", status.State, "polls", s.out.Polls)

		switch status.State {
		case StateSucceeded:
			if len(status.Outputs) == 0 {
				return s.finish(OutcomeMalformedResponse, &MalformedResponseError{
					Stage:  "poll",
					Reason: "succeeded without output",
					Body:   string(status.Raw),
				})
			}
			s.out.ArtifactURL = status.Outputs[0]
			s.logger.Info("prediction succeeded", "polls", s.out.Polls, "elapsed", s.elapsed())
			return s.finish(OutcomeSucceeded, nil)
		case StateFailed, StateCanceled:
			err := &BackendError{State: status.State, JobID: s.handle.ID, Detail: status.Raw}
			s.logger.Warn("prediction ended by backend", "state", status.State, "error", err)
			return s.finish(kindOf(err), err)
		}
	}
}

func (s *session) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.client.clock.After(d):
		return nil
	}
}

// interrupted classifies a context-ended wait or request: the caller's own
// cancellation wins over the hard deadline.
func (s *session) interrupted(callerCtx context.Context) Outcome {
	if callerCtx.Err() != nil {
		s.logger.Info("prediction wait canceled by caller", "polls", s.out.Polls)
		return s.finish(OutcomeCanceledByCaller, ErrCanceledByCaller)
	}
	s.logger.Warn("prediction hit hard deadline", "polls", s.out.Polls)
	return s.finish(OutcomeTimeout, ErrTimeout)
}

func (s *session) elapsed() time.Duration {
	return s.client.clock.Now().Sub(s.started)
}

func (s *session) finish(kind OutcomeKind, err error) Outcome {
	s.out.Kind = kind
	s.out.Err = err
	s.out.Elapsed = s.elapsed()
	return s.out
}
