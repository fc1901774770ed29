// Package compose chains transcription, intent extraction and generation
// into one request.
package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nikhilbhutani/musetalk/internal/intent"
	"github.com/nikhilbhutani/musetalk/internal/multimodal/stt"
	"github.com/nikhilbhutani/musetalk/internal/replicate"
)

type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageIntent     Stage = "intent"
	StageGenerate   Stage = "generate"
)

// ErrEmptyTranscript is the transcribe stage failure for silent audio.
var ErrEmptyTranscript = errors.New("transcript is empty")

// StageError reports which stage ended the run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

type IntentExtractor interface {
	Extract(ctx context.Context, text, persona string) (*intent.Intent, error)
}

type Generator interface {
	SubmitAndAwait(ctx context.Context, req replicate.GenerationRequest) replicate.Outcome
}

type Request struct {
	Audio    io.Reader
	Filename string
	Persona  string
	Seconds  int
}

type Result struct {
	Transcript string
	Intent     *intent.Intent
	Outcome    replicate.Outcome
}

type Pipeline struct {
	stt       stt.STTProvider
	extractor IntentExtractor
	generator Generator
}

func NewPipeline(transcriber stt.STTProvider, extractor IntentExtractor, generator Generator) *Pipeline {
	return &Pipeline{stt: transcriber, extractor: extractor, generator: generator}
}

// Run executes the stages in order and stops at the first failure. Once the
// generate stage is reached the Result carries its Outcome, and a failed
// outcome is also returned as a StageError.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	tr, err := p.stt.Transcribe(ctx, stt.TranscriptionRequest{Audio: req.Audio, Filename: req.Filename})
	if err != nil {
		return nil, &StageError{Stage: StageTranscribe, Err: err}
	}
	if tr.Text == "" {
		return nil, &StageError{Stage: StageTranscribe, Err: ErrEmptyTranscript}
	}
	res := &Result{Transcript: tr.Text}

	it, err := p.extractor.Extract(ctx, tr.Text, req.Persona)
	if err != nil {
		return res, &StageError{Stage: StageIntent, Err: err}
	}
	res.Intent = it

	res.Outcome = p.generator.SubmitAndAwait(ctx, replicate.NewGenerationRequest(it.GenerationPrompt(), req.Seconds))
	if !res.Outcome.Succeeded() {
		return res, &StageError{Stage: StageGenerate, Err: res.Outcome.Err}
	}

	slog.Info("compose finished",
		"transcript_chars", len(tr.Text),
		"polls", res.Outcome.Polls,
		"elapsed", res.Outcome.Elapsed,
	)
	return res, nil
}
