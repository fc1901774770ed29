package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/musetalk/internal/intent"
	"github.com/nikhilbhutani/musetalk/internal/llm"
)

type IntentExtractor interface {
	Extract(ctx context.Context, text, persona string) (*intent.Intent, error)
}

type IntentHandler struct {
	extractor IntentExtractor
}

func NewIntentHandler(extractor IntentExtractor) *IntentHandler {
	return &IntentHandler{extractor: extractor}
}

type intentRequest struct {
	Text    string `json:"text"`
	Persona string `json:"persona"`
}

// Extract turns {"text","persona"} into {"intent": {...}}.
func (h *IntentHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	it, err := h.extractor.Extract(r.Context(), req.Text, req.Persona)
	if err != nil {
		writeIntentError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"intent": it})
}

func writeIntentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intent.ErrEmptyText):
		writeError(w, http.StatusBadRequest, "text is required")
	case errors.Is(err, llm.ErrProviderNotConfigured):
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "intent model not configured",
			"detail": err.Error(),
		})
	default:
		slog.Error("intent extraction failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":  "intent_failed",
			"detail": err.Error(),
		})
	}
}
