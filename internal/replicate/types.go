// Package replicate drives asynchronous generations on a Replicate-style
// predictions API: one submission followed by sequential status checks until
// the prediction reaches a terminal state or the polling budget runs out.
package replicate

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	DefaultBaseURL         = "https://api.replicate.com/v1"
	DefaultModel           = "meta/musicgen-small"
	DefaultPrompt          = "ambient electronic, soft pads, gentle beat"
	DefaultDurationSeconds = 12
	DefaultPollInterval    = 1500 * time.Millisecond
	DefaultTimeout         = 60 * time.Second

	// DefaultRequestTimeout bounds each HTTP call of the default client.
	DefaultRequestTimeout = 30 * time.Second
)

// GenerationRequest is the input of one generation. It is a value type and
// is never modified by the client.
type GenerationRequest struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"duration_seconds"`
}

// NewGenerationRequest builds a request with the default prompt and duration
// applied where the caller supplied none.
func NewGenerationRequest(prompt string, seconds int) GenerationRequest {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if seconds <= 0 {
		seconds = DefaultDurationSeconds
	}
	return GenerationRequest{Prompt: prompt, DurationSeconds: seconds}
}

func (r GenerationRequest) effective() GenerationRequest {
	return NewGenerationRequest(r.Prompt, r.DurationSeconds)
}

// Config holds the per-client settings. Model is required.
type Config struct {
	BaseURL      string
	Model        string
	PollInterval time.Duration
	Timeout      time.Duration

	// HardDeadline bounds in-flight status checks by Timeout as well. When
	// false, a status check started just before the deadline may finish after
	// it.
	HardDeadline bool
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// JobHandle identifies an accepted prediction.
type JobHandle struct {
	ID        string `json:"id"`
	StatusURL string `json:"status_url"`
}

// State is the poller's view of a prediction status.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

func parseState(s string) State {
	switch s {
	case "succeeded":
		return StateSucceeded
	case "failed":
		return StateFailed
	case "canceled":
		return StateCanceled
	default:
		// starting, processing and anything unknown
		return StatePending
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// JobStatus is the result of one status check.
type JobStatus struct {
	State   State
	Outputs []string
	Raw     json.RawMessage
}

// OutcomeKind discriminates Outcome.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeConfigurationError
	OutcomeSubmissionFailed
	OutcomeMalformedResponse
	OutcomeBackendFailed
	OutcomeBackendCanceled
	OutcomeTimeout
	OutcomeCanceledByCaller
	OutcomeRequestFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeConfigurationError:
		return "configuration_error"
	case OutcomeSubmissionFailed:
		return "submission_failed"
	case OutcomeMalformedResponse:
		return "malformed_response"
	case OutcomeBackendFailed:
		return "backend_failed"
	case OutcomeBackendCanceled:
		return "backend_canceled"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeCanceledByCaller:
		return "canceled_by_caller"
	case OutcomeRequestFailed:
		return "request_failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of SubmitAndAwait. Err is nil only when
// Kind is OutcomeSucceeded.
type Outcome struct {
	Kind        OutcomeKind
	ArtifactURL string
	JobID       string
	Polls       int
	Elapsed     time.Duration
	Err         error
}

// Succeeded reports whether an artifact was produced.
func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSucceeded }
