package replicate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrTimeout is reported when no terminal status was seen within the budget.
	ErrTimeout = errors.New("replicate: generation timed out")

	// ErrCanceledByCaller is reported when the caller's context ended the wait.
	ErrCanceledByCaller = errors.New("replicate: canceled by caller")
)

// ConfigurationError reports a missing credential or model identifier.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("replicate: missing %s", e.Missing)
}

// SubmissionError carries the upstream status and body of a rejected submission.
type SubmissionError struct {
	StatusCode int
	Body       string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("replicate: submission rejected (status %d): %s", e.StatusCode, e.Body)
}

// MalformedResponseError reports a response lacking the expected fields.
type MalformedResponseError struct {
	Stage      string // "submit" or "poll"
	StatusCode int
	Reason     string
	Body       string
}

func (e *MalformedResponseError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("replicate: malformed %s response (status %d): %s", e.Stage, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("replicate: malformed %s response: %s", e.Stage, e.Reason)
}

// BackendError is a failure or cancellation declared by the backend. Detail is
// the status response body as received.
type BackendError struct {
	State  State
	JobID  string
	Detail json.RawMessage
}

func (e *BackendError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("replicate: prediction %s %s: %s", e.JobID, e.State, msg)
	}
	return fmt.Sprintf("replicate: prediction %s %s", e.JobID, e.State)
}

// Message returns the backend's error field, if any.
func (e *BackendError) Message() string {
	return gjson.GetBytes(e.Detail, "error").String()
}

// RequestError wraps a transport failure.
type RequestError struct {
	Stage string
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("replicate: %s request: %v", e.Stage, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func kindOf(err error) OutcomeKind {
	var (
		cfgErr     *ConfigurationError
		subErr     *SubmissionError
		malformed  *MalformedResponseError
		backendErr *BackendError
	)
	switch {
	case errors.As(err, &cfgErr):
		return OutcomeConfigurationError
	case errors.As(err, &subErr):
		return OutcomeSubmissionFailed
	case errors.As(err, &malformed):
		return OutcomeMalformedResponse
	case errors.As(err, &backendErr):
		if backendErr.State == StateCanceled {
			return OutcomeBackendCanceled
		}
		return OutcomeBackendFailed
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrCanceledByCaller):
		return OutcomeCanceledByCaller
	default:
		return OutcomeRequestFailed
	}
}
