package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/musetalk/internal/intent"
	"github.com/nikhilbhutani/musetalk/internal/replicate"
)

// MaxDurationSeconds caps the requested clip length.
const MaxDurationSeconds = 300

// statusClientClosedRequest is the de facto code for a client that left
// before the response was ready.
const statusClientClosedRequest = 499

type Generator interface {
	SubmitAndAwait(ctx context.Context, req replicate.GenerationRequest) replicate.Outcome
}

type GenerateHandler struct {
	gen Generator
}

func NewGenerateHandler(gen Generator) *GenerateHandler {
	return &GenerateHandler{gen: gen}
}

type generateRequest struct {
	Intent  *intent.Intent `json:"intent"`
	Seconds int            `json:"seconds"`
}

func (h *GenerateHandler) Hint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"hint": "POST { intent, seconds } JSON to generate audio.",
	})
}

// Generate holds the request open until the prediction finishes.
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Seconds < 0 || req.Seconds > MaxDurationSeconds {
		writeError(w, http.StatusBadRequest, "seconds out of range")
		return
	}

	out := h.gen.SubmitAndAwait(r.Context(), replicate.NewGenerationRequest(req.Intent.GenerationPrompt(), req.Seconds))
	if !out.Succeeded() {
		writeOutcomeError(w, out, nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"audioUrl": out.ArtifactURL})
}

// writeOutcomeError maps a failed outcome to a response. extra fields are
// merged into the body.
func writeOutcomeError(w http.ResponseWriter, out replicate.Outcome, extra map[string]any) {
	status, body := outcomeError(out)
	for k, v := range extra {
		body[k] = v
	}
	if status >= 500 {
		slog.Warn("generation failed", "outcome", out.Kind.String(), "job_id", out.JobID, "error", out.Err)
	}
	writeJSON(w, status, body)
}

func outcomeError(out replicate.Outcome) (int, map[string]any) {
	var (
		cfgErr     *replicate.ConfigurationError
		subErr     *replicate.SubmissionError
		backendErr *replicate.BackendError
		malformed  *replicate.MalformedResponseError
	)

	switch {
	case errors.As(out.Err, &cfgErr):
		return http.StatusInternalServerError, map[string]any{"error": "Missing " + cfgErr.Missing}
	case errors.As(out.Err, &subErr):
		return subErr.StatusCode, map[string]any{"error": "replicate_start_failed", "detail": subErr.Body}
	case errors.As(out.Err, &backendErr):
		return http.StatusInternalServerError, map[string]any{"error": "replicate_failed", "detail": backendErr.Detail}
	case errors.As(out.Err, &malformed):
		return http.StatusBadGateway, map[string]any{"error": "replicate_malformed_response", "detail": malformed.Reason}
	case out.Kind == replicate.OutcomeTimeout:
		return http.StatusGatewayTimeout, map[string]any{"error": "Generation timed out"}
	case out.Kind == replicate.OutcomeCanceledByCaller:
		return statusClientClosedRequest, map[string]any{"error": "request canceled"}
	default:
		return http.StatusBadGateway, map[string]any{"error": "replicate_unreachable"}
	}
}
