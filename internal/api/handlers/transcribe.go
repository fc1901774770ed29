package handlers

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/nikhilbhutani/musetalk/internal/multimodal/stt"
)

type TranscribeHandler struct {
	stt      stt.STTProvider
	maxBytes int64
}

func NewTranscribeHandler(provider stt.STTProvider, maxBytes int64) *TranscribeHandler {
	return &TranscribeHandler{stt: provider, maxBytes: maxBytes}
}

// Transcribe accepts a multipart upload with a "file" part and returns
// {"text": ...}.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	file, hdr, ok := readUpload(w, r, h.maxBytes)
	if !ok {
		return
	}
	defer file.Close()

	res, err := h.stt.Transcribe(r.Context(), stt.TranscriptionRequest{
		Audio:    file,
		Filename: hdr.Filename,
		Language: r.FormValue("language"),
	})
	if err != nil {
		writeTranscribeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": res.Text})
}

// readUpload parses the multipart body and opens the "file" part. It writes
// the error response itself when it returns false.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (multipart.File, *multipart.FileHeader, bool) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return nil, nil, false
		}
		writeError(w, http.StatusBadRequest, "no file received")
		return nil, nil, false
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file received")
		return nil, nil, false
	}
	return file, hdr, true
}

func writeTranscribeError(w http.ResponseWriter, err error) {
	var upErr *stt.UpstreamError
	switch {
	case errors.Is(err, stt.ErrMissingAPIKey):
		writeError(w, http.StatusInternalServerError, "Missing OPENAI_API_KEY")
	case errors.As(err, &upErr):
		writeJSON(w, upErr.StatusCode, map[string]string{
			"error":  "transcription_failed",
			"detail": upErr.Body,
		})
	default:
		slog.Error("transcription failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
