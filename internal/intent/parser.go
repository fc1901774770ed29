package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/nikhilbhutani/musetalk/internal/llm"
)

const systemPrompt = "You are a music intent parser. Given a user phrase, extract a JSON with: " +
	"mood, tempo (BPM), key, instruments (array), energy (low/medium/high), persona, structureHint, " +
	"and prompt (concise model-ready text). Output ONLY JSON."

// ErrEmptyText is returned when there is nothing to parse.
var ErrEmptyText = errors.New("text is required")

// Config controls the model call.
type Config struct {
	Provider       string
	Model          string
	Temperature    float64
	DefaultPersona string
}

// Parser extracts intents through an LLM gateway.
type Parser struct {
	gw  llm.Gateway
	cfg Config
}

func NewParser(gw llm.Gateway, cfg Config) *Parser {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.DefaultPersona == "" {
		cfg.DefaultPersona = "Lyra"
	}
	return &Parser{gw: gw, cfg: cfg}
}

// Extract asks the model for an intent. Model output that is not a JSON
// object, even after repair, yields Intent{Prompt: text}. Gateway errors are
// returned as is.
func (p *Parser) Extract(ctx context.Context, text, persona string) (*Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if persona == "" {
		persona = p.cfg.DefaultPersona
	}

	resp, err := p.gw.Chat(ctx, llm.ChatRequest{
		Provider: p.cfg.Provider,
		Model:    p.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Phrase: \"%s\". Persona: %s", text, persona)},
		},
		Temperature: p.cfg.Temperature,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("intent chat: %w", err)
	}

	it, err := decode(resp.Content)
	if err != nil {
		slog.Warn("intent output unparseable, using raw text", "error", err, "model", resp.Model)
		return &Intent{Prompt: text}, nil
	}
	return it, nil
}

func decode(content string) (*Intent, error) {
	content = stripFences(content)
	if content == "" {
		return nil, errors.New("empty model output")
	}

	var it Intent
	err := json.Unmarshal([]byte(content), &it)
	if err == nil {
		return &it, nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return nil, err
	}

	fixed, rerr := jsonrepair.JSONRepair(content)
	if rerr != nil {
		return nil, fmt.Errorf("repair: %w", rerr)
	}
	if err := json.Unmarshal([]byte(fixed), &it); err != nil {
		return nil, err
	}
	return &it, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
