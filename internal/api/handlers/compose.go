package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/nikhilbhutani/musetalk/internal/compose"
)

type Composer interface {
	Run(ctx context.Context, req compose.Request) (*compose.Result, error)
}

type ComposeHandler struct {
	composer Composer
	maxBytes int64
}

func NewComposeHandler(composer Composer, maxBytes int64) *ComposeHandler {
	return &ComposeHandler{composer: composer, maxBytes: maxBytes}
}

// Compose runs transcribe, intent and generate for one uploaded clip.
func (h *ComposeHandler) Compose(w http.ResponseWriter, r *http.Request) {
	file, hdr, ok := readUpload(w, r, h.maxBytes)
	if !ok {
		return
	}
	defer file.Close()

	seconds := 0
	if v := r.FormValue("seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > MaxDurationSeconds {
			writeError(w, http.StatusBadRequest, "seconds out of range")
			return
		}
		seconds = n
	}

	res, err := h.composer.Run(r.Context(), compose.Request{
		Audio:    file,
		Filename: hdr.Filename,
		Persona:  r.FormValue("persona"),
		Seconds:  seconds,
	})
	if err != nil {
		writeComposeError(w, res, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transcript": res.Transcript,
		"intent":     res.Intent,
		"audioUrl":   res.Outcome.ArtifactURL,
	})
}

func writeComposeError(w http.ResponseWriter, res *compose.Result, err error) {
	var stageErr *compose.StageError
	if !errors.As(err, &stageErr) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch stageErr.Stage {
	case compose.StageTranscribe:
		if errors.Is(err, compose.ErrEmptyTranscript) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": "no speech recognised",
				"stage": string(stageErr.Stage),
			})
			return
		}
		writeTranscribeError(w, stageErr.Err)
	case compose.StageIntent:
		writeIntentError(w, stageErr.Err)
	default:
		writeOutcomeError(w, res.Outcome, map[string]any{
			"stage":      string(stageErr.Stage),
			"transcript": res.Transcript,
			"intent":     res.Intent,
		})
	}
}
