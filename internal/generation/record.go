// Package generation tracks asynchronous generation jobs: a queued record,
// a worker that drives the prediction, and the stored outcome.
package generation

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/musetalk/internal/replicate"
)

var (
	ErrNotFound        = errors.New("generation not found")
	ErrInvalidCallback = errors.New("callback url must be an absolute http(s) url")
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusTimeout   Status = "timeout"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled, StatusTimeout:
		return true
	}
	return false
}

type Record struct {
	ID              uuid.UUID       `json:"id"`
	Prompt          string          `json:"prompt"`
	DurationSeconds int             `json:"durationSeconds"`
	Status          Status          `json:"status"`
	AudioURL        string          `json:"audioUrl,omitempty"`
	Error           string          `json:"error,omitempty"`
	Message         string          `json:"message,omitempty"`
	Detail          json.RawMessage `json:"detail,omitempty"`
	PredictionID    string          `json:"predictionId,omitempty"`
	CallbackURL     string          `json:"callbackUrl,omitempty"`
	Polls           int             `json:"polls"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// applyOutcome folds a poller outcome into the record.
func (r *Record) applyOutcome(out replicate.Outcome, now time.Time) {
	r.PredictionID = out.JobID
	r.Polls = out.Polls
	r.UpdatedAt = now

	switch out.Kind {
	case replicate.OutcomeSucceeded:
		r.Status = StatusSucceeded
		r.AudioURL = out.ArtifactURL
		return
	case replicate.OutcomeBackendCanceled, replicate.OutcomeCanceledByCaller:
		r.Status = StatusCanceled
	case replicate.OutcomeTimeout:
		r.Status = StatusTimeout
	default:
		r.Status = StatusFailed
	}

	r.Error = out.Kind.String()
	if out.Err != nil {
		r.Message = out.Err.Error()
	}
	r.Detail = detailOf(out.Err)
}

// detailOf returns the upstream JSON body carried by err, if any.
func detailOf(err error) json.RawMessage {
	var backendErr *replicate.BackendError
	if errors.As(err, &backendErr) {
		return backendErr.Detail
	}
	var subErr *replicate.SubmissionError
	if errors.As(err, &subErr) && json.Valid([]byte(subErr.Body)) {
		return json.RawMessage(subErr.Body)
	}
	return nil
}

// Event is the webhook event name for the record's current status.
func (r *Record) Event() string {
	return "generation." + string(r.Status)
}
