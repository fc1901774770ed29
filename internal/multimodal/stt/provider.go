package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nikhilbhutani/musetalk/internal/config"
)

// RequestTimeout bounds one transcription upload.
const RequestTimeout = 120 * time.Second

// ErrMissingAPIKey is returned by backends that need a key and have none.
var ErrMissingAPIKey = errors.New("missing OPENAI_API_KEY")

// TranscriptionRequest holds one audio upload.
type TranscriptionRequest struct {
	Audio    io.Reader
	Filename string
	Language string
	Prompt   string
}

// TranscriptionResponse holds the transcription result.
type TranscriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// UpstreamError carries a non-200 answer from the transcription service.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("transcription failed (status %d): %s", e.StatusCode, e.Body)
}

// STTProvider is the interface for speech-to-text backends.
type STTProvider interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error)
	Name() string
}

// New builds the backend named by cfg.Backend.
func New(cfg config.STTConfig) (STTProvider, error) {
	switch cfg.Backend {
	case "", "openai":
		return NewOpenAISTT(OpenAISTTConfig{
			APIKey:     cfg.OpenAIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			RequireKey: true,
		}), nil
	case "local":
		return NewLocalSTT(LocalSTTConfig{BaseURL: cfg.LocalBaseURL}), nil
	default:
		return nil, fmt.Errorf("unknown STT backend %q", cfg.Backend)
	}
}
