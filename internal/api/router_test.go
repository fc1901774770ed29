package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/musetalk/internal/auth"
	"github.com/nikhilbhutani/musetalk/internal/config"
	"github.com/nikhilbhutani/musetalk/internal/intent"
	"github.com/nikhilbhutani/musetalk/internal/multimodal/stt"
	"github.com/nikhilbhutani/musetalk/internal/replicate"
)

type noopExtractor struct{}

func (noopExtractor) Extract(_ context.Context, text, _ string) (*intent.Intent, error) {
	return &intent.Intent{Prompt: text}, nil
}

type noopGenerator struct{}

func (noopGenerator) SubmitAndAwait(context.Context, replicate.GenerationRequest) replicate.Outcome {
	return replicate.Outcome{Kind: replicate.OutcomeSucceeded, ArtifactURL: "https://x/a.wav"}
}

func testConfig(jwtSecret string) *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{AllowedOrigins: []string{"*"}, MaxUploadBytes: 1 << 20},
		Auth:      config.AuthConfig{JWTSecret: jwtSecret},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	rt := NewRouter(cfg, Deps{
		STT:       stt.NewLocalSTT(stt.LocalSTTConfig{BaseURL: "http://127.0.0.1:0"}),
		Intent:    noopExtractor{},
		Generator: noopGenerator{},
	})
	t.Cleanup(rt.Close)
	return rt.Setup()
}

func TestRouterRoutes(t *testing.T) {
	h := newTestServer(t, testConfig(""))

	for _, tc := range []struct {
		method, path string
		status       int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/api/generate", http.StatusOK},
		{http.MethodGet, "/api/generations/not-a-uuid", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
		{http.MethodOptions, "/api/generate", http.StatusNoContent},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.status, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouterRequiresTokenWhenConfigured(t *testing.T) {
	h := newTestServer(t, testConfig("secret"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generate", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	tok, err := auth.NewJWTMiddleware("secret").Issue("cli", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/generate", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
