package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/musetalk/internal/generation"
	"github.com/nikhilbhutani/musetalk/internal/intent"
)

type GenerationJobs interface {
	Enqueue(ctx context.Context, req generation.EnqueueRequest) (*generation.Record, error)
	Get(ctx context.Context, id uuid.UUID) (*generation.Record, error)
}

type GenerationsHandler struct {
	jobs GenerationJobs
}

// NewGenerationsHandler accepts a nil jobs service; the endpoints then
// answer 503.
func NewGenerationsHandler(jobs GenerationJobs) *GenerationsHandler {
	return &GenerationsHandler{jobs: jobs}
}

type createGenerationRequest struct {
	Intent      *intent.Intent `json:"intent"`
	Seconds     int            `json:"seconds"`
	CallbackURL string         `json:"callbackUrl"`
}

func (h *GenerationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "async generation unavailable")
		return
	}

	var req createGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Seconds < 0 || req.Seconds > MaxDurationSeconds {
		writeError(w, http.StatusBadRequest, "seconds out of range")
		return
	}

	rec, err := h.jobs.Enqueue(r.Context(), generation.EnqueueRequest{
		Prompt:      req.Intent.GenerationPrompt(),
		Seconds:     req.Seconds,
		CallbackURL: req.CallbackURL,
	})
	if errors.Is(err, generation.ErrInvalidCallback) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("enqueue generation failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue generation")
		return
	}

	w.Header().Set("Location", "/api/generations/"+rec.ID.String())
	writeJSON(w, http.StatusAccepted, rec)
}

func (h *GenerationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "async generation unavailable")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid generation id")
		return
	}

	rec, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, generation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "generation not found")
		return
	}
	if err != nil {
		slog.Error("get generation failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load generation")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
