package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/nikhilbhutani/musetalk/internal/config"
)

// ErrProviderNotConfigured is returned when a call names a provider that has
// no credentials or endpoint.
var ErrProviderNotConfigured = errors.New("provider not configured")

type gateway struct {
	providers        map[string]Provider
	defaultProvider  string
	fallbackProvider string
	maxRetries       int
	backoffUnit      time.Duration
}

// GatewayOption customises a gateway built by NewGateway.
type GatewayOption func(*gateway)

// WithProvider registers p under its own name, replacing any configured
// provider of the same name.
func WithProvider(p Provider) GatewayOption {
	return func(g *gateway) { g.providers[p.Name()] = p }
}

// WithBackoffUnit scales the quadratic retry backoff.
func WithBackoffUnit(d time.Duration) GatewayOption {
	return func(g *gateway) { g.backoffUnit = d }
}

func NewGateway(cfg config.LLMConfig, opts ...GatewayOption) Gateway {
	g := &gateway{
		providers:        make(map[string]Provider),
		defaultProvider:  cfg.DefaultProvider,
		fallbackProvider: cfg.FallbackProvider,
		maxRetries:       cfg.MaxRetries,
		backoffUnit:      500 * time.Millisecond,
	}

	switch {
	case cfg.OpenAIKey != "" && cfg.OpenAIBaseURL != "":
		g.providers["openai"] = NewOpenAIProviderWithBaseURL(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	case cfg.OpenAIKey != "":
		g.providers["openai"] = NewOpenAIProvider(cfg.OpenAIKey)
	}
	if cfg.AnthropicKey != "" {
		g.providers["anthropic"] = NewAnthropicProvider(cfg.AnthropicKey)
	}
	if cfg.OllamaURL != "" {
		g.providers["ollama"] = NewOllamaProvider(cfg.OllamaURL)
	}

	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gateway) Provider(name string) (Provider, error) {
	p, ok := g.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, ErrProviderNotConfigured)
	}
	return p, nil
}

func (g *gateway) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	providerName := req.Provider
	if providerName == "" {
		providerName = g.defaultProvider
	}

	resp, err := g.chatWithRetry(ctx, providerName, req)
	if err != nil && ctx.Err() == nil && g.fallbackProvider != "" && g.fallbackProvider != providerName {
		slog.Warn("primary provider failed, trying fallback",
			"primary", providerName,
			"fallback", g.fallbackProvider,
			"error", err,
		)
		return g.chatWithRetry(ctx, g.fallbackProvider, req)
	}
	return resp, err
}

func (g *gateway) chatWithRetry(ctx context.Context, providerName string, req ChatRequest) (*ChatResponse, error) {
	p, err := g.Provider(providerName)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt*attempt) * g.backoffUnit
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			slog.Debug("retrying LLM call", "provider", providerName, "attempt", attempt)
		}

		resp, err := p.ChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all retries exhausted for %s: %w", providerName, lastErr)
}

func (g *gateway) ListModels() []ModelInfo {
	var models []ModelInfo
	for _, p := range g.providers {
		for _, m := range p.Models() {
			models = append(models, ModelInfo{Provider: p.Name(), Model: m})
		}
	}
	sort.Slice(models, func(i, j int) bool {
		if models[i].Provider != models[j].Provider {
			return models[i].Provider < models[j].Provider
		}
		return models[i].Model < models[j].Model
	})
	return models
}
