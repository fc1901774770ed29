package stt

// LocalSTTConfig holds configuration for the local whisper.cpp STT backend.
type LocalSTTConfig struct {
	BaseURL string // default: "http://localhost:8178"
}

// LocalSTT talks to a whisper.cpp server, which speaks the OpenAI
// transcription protocol without a key.
// Start the server with: ./server -m models/ggml-base.en.bin --port 8178
type LocalSTT struct {
	*OpenAISTT
}

func NewLocalSTT(cfg LocalSTTConfig) *LocalSTT {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8178"
	}
	return &LocalSTT{OpenAISTT: NewOpenAISTT(OpenAISTTConfig{BaseURL: baseURL})}
}

func (l *LocalSTT) Name() string { return "local-whisper" }
