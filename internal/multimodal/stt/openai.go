package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

// OpenAISTTConfig holds configuration for the OpenAI STT backend.
type OpenAISTTConfig struct {
	APIKey         string
	BaseURL        string // default: "https://api.openai.com/v1"
	Model          string // default: "whisper-1"
	ResponseFormat string // default: "json"
	RequireKey     bool
}

// OpenAISTT transcribes audio using OpenAI's Whisper API (or a compatible endpoint).
type OpenAISTT struct {
	cfg        OpenAISTTConfig
	httpClient *http.Client
}

func NewOpenAISTT(cfg OpenAISTTConfig) *OpenAISTT {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.ResponseFormat == "" {
		cfg.ResponseFormat = "json"
	}
	return &OpenAISTT{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: RequestTimeout},
	}
}

func (o *OpenAISTT) Name() string { return "openai-whisper" }

func (o *OpenAISTT) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	if o.cfg.RequireKey && o.cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if req.Audio == nil {
		return nil, fmt.Errorf("no audio provided")
	}

	filename := req.Filename
	if filename == "" {
		filename = "speech.webm"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err = io.Copy(fw, req.Audio); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	_ = mw.WriteField("model", o.cfg.Model)
	_ = mw.WriteField("response_format", o.cfg.ResponseFormat)
	if req.Language != "" {
		_ = mw.WriteField("language", req.Language)
	}
	if req.Prompt != "" {
		_ = mw.WriteField("prompt", req.Prompt)
	}
	if err = mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if o.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out TranscriptionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	out.Text = strings.TrimSpace(out.Text)
	return &out, nil
}
