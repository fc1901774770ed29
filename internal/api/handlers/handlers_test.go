package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/musetalk/internal/compose"
	"github.com/nikhilbhutani/musetalk/internal/generation"
	"github.com/nikhilbhutani/musetalk/internal/intent"
	"github.com/nikhilbhutani/musetalk/internal/llm"
	"github.com/nikhilbhutani/musetalk/internal/multimodal/stt"
	"github.com/nikhilbhutani/musetalk/internal/replicate"
)

type stubSTT struct {
	text string
	err  error
}

func (s *stubSTT) Name() string { return "stub" }

func (s *stubSTT) Transcribe(_ context.Context, req stt.TranscriptionRequest) (*stt.TranscriptionResponse, error) {
	_, _ = io.Copy(io.Discard, req.Audio)
	if s.err != nil {
		return nil, s.err
	}
	return &stt.TranscriptionResponse{Text: s.text}, nil
}

type stubExtractor struct {
	it          *intent.Intent
	err         error
	lastText    string
	lastPersona string
}

func (s *stubExtractor) Extract(_ context.Context, text, persona string) (*intent.Intent, error) {
	s.lastText, s.lastPersona = text, persona
	return s.it, s.err
}

type stubGenerator struct {
	out  replicate.Outcome
	last replicate.GenerationRequest
}

func (s *stubGenerator) SubmitAndAwait(_ context.Context, req replicate.GenerationRequest) replicate.Outcome {
	s.last = req
	return s.out
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func multipartBody(t *testing.T, fields map[string]string, withFile bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if withFile {
		fw, err := mw.CreateFormFile("file", "speech.webm")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("audio-bytes"))
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{"redis": stubPinger{}, "database": nil})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"redis": "ok"}, decodeBody(t, rec)["checks"])

	h = NewHealthHandler(map[string]Pinger{"redis": stubPinger{err: errors.New("refused")}})
	rec = httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decodeBody(t, rec)["status"])
}

func TestTranscribe(t *testing.T) {
	tests := []struct {
		name     string
		stt      *stubSTT
		withFile bool
		status   int
		want     map[string]any
	}{
		{"ok", &stubSTT{text: "play something calm"}, true, http.StatusOK, map[string]any{"text": "play something calm"}},
		{"no file", &stubSTT{}, false, http.StatusBadRequest, map[string]any{"error": "no file received"}},
		{"missing key", &stubSTT{err: stt.ErrMissingAPIKey}, true, http.StatusInternalServerError, map[string]any{"error": "Missing OPENAI_API_KEY"}},
		{
			"upstream", &stubSTT{err: &stt.UpstreamError{StatusCode: 401, Body: "bad key"}}, true,
			http.StatusUnauthorized, map[string]any{"error": "transcription_failed", "detail": "bad key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, ctype := multipartBody(t, nil, tt.withFile)
			req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
			req.Header.Set("Content-Type", ctype)
			rec := httptest.NewRecorder()

			NewTranscribeHandler(tt.stt, 1<<20).Transcribe(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, decodeBody(t, rec))
		})
	}
}

func TestTranscribeTooLarge(t *testing.T) {
	body, ctype := multipartBody(t, nil, true)
	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()

	NewTranscribeHandler(&stubSTT{text: "x"}, 16).Transcribe(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestIntent(t *testing.T) {
	ex := &stubExtractor{it: &intent.Intent{Mood: "calm", Tempo: 70, Prompt: "calm piano"}}
	req := httptest.NewRequest(http.MethodPost, "/api/intent", bytes.NewBufferString(`{"text":"calm piano","persona":"Nova"}`))
	rec := httptest.NewRecorder()

	NewIntentHandler(ex).Extract(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"intent":{"mood":"calm","tempo":70,"prompt":"calm piano"}}`, rec.Body.String())
	assert.Equal(t, "Nova", ex.lastPersona)
}

func TestIntentErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"empty text", `{"text":""}`, intent.ErrEmptyText, http.StatusBadRequest},
		{"not configured", `{"text":"x"}`, llm.ErrProviderNotConfigured, http.StatusInternalServerError},
		{"upstream", `{"text":"x"}`, errors.New("all retries exhausted"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewIntentHandler(&stubExtractor{err: tt.err}).Extract(rec, httptest.NewRequest(http.MethodPost, "/api/intent", bytes.NewBufferString(tt.body)))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGenerateHint(t *testing.T) {
	rec := httptest.NewRecorder()
	NewGenerateHandler(&stubGenerator{}).Hint(rec, httptest.NewRequest(http.MethodGet, "/api/generate", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"hint":"POST { intent, seconds } JSON to generate audio."}`, rec.Body.String())
}

func TestGenerate(t *testing.T) {
	gen := &stubGenerator{out: replicate.Outcome{Kind: replicate.OutcomeSucceeded, ArtifactURL: "https://x/a.wav"}}
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(`{"intent":{"prompt":"warm jazz"},"seconds":20}`))
	rec := httptest.NewRecorder()

	NewGenerateHandler(gen).Generate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"audioUrl":"https://x/a.wav"}`, rec.Body.String())
	assert.Equal(t, replicate.GenerationRequest{Prompt: "warm jazz", DurationSeconds: 20}, gen.last)
}

func TestGenerateDefaults(t *testing.T) {
	gen := &stubGenerator{out: replicate.Outcome{Kind: replicate.OutcomeSucceeded, ArtifactURL: "u"}}
	rec := httptest.NewRecorder()

	NewGenerateHandler(gen).Generate(rec, httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(`{}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, replicate.NewGenerationRequest("", 0), gen.last)
}

func TestGenerateOutcomeMapping(t *testing.T) {
	tests := []struct {
		name   string
		out    replicate.Outcome
		status int
		want   string
	}{
		{
			"missing token",
			replicate.Outcome{Kind: replicate.OutcomeConfigurationError, Err: &replicate.ConfigurationError{Missing: "REPLICATE_API_TOKEN"}},
			http.StatusInternalServerError,
			`{"error":"Missing REPLICATE_API_TOKEN"}`,
		},
		{
			"submission failed",
			replicate.Outcome{Kind: replicate.OutcomeSubmissionFailed, Err: &replicate.SubmissionError{StatusCode: 422, Body: "Invalid version"}},
			http.StatusUnprocessableEntity,
			`{"error":"replicate_start_failed","detail":"Invalid version"}`,
		},
		{
			"backend failed",
			replicate.Outcome{Kind: replicate.OutcomeBackendFailed, Err: &replicate.BackendError{State: replicate.StateFailed, Detail: json.RawMessage(`{"status":"failed","error":"oom"}`)}},
			http.StatusInternalServerError,
			`{"error":"replicate_failed","detail":{"status":"failed","error":"oom"}}`,
		},
		{
			"timeout",
			replicate.Outcome{Kind: replicate.OutcomeTimeout, Err: replicate.ErrTimeout},
			http.StatusGatewayTimeout,
			`{"error":"Generation timed out"}`,
		},
		{
			"malformed",
			replicate.Outcome{Kind: replicate.OutcomeMalformedResponse, Err: &replicate.MalformedResponseError{Stage: "submit", Reason: "missing urls.get"}},
			http.StatusBadGateway,
			`{"error":"replicate_malformed_response","detail":"missing urls.get"}`,
		},
		{
			"transport",
			replicate.Outcome{Kind: replicate.OutcomeRequestFailed, Err: &replicate.RequestError{Stage: "submit", Err: errors.New("dial tcp")}},
			http.StatusBadGateway,
			`{"error":"replicate_unreachable"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewGenerateHandler(&stubGenerator{out: tt.out}).Generate(rec, httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(`{"intent":{"prompt":"x"}}`)))

			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestGenerateRejectsBadSeconds(t *testing.T) {
	gen := &stubGenerator{}
	rec := httptest.NewRecorder()
	NewGenerateHandler(gen).Generate(rec, httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(`{"seconds":-1}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, gen.last)
}

func TestCompose(t *testing.T) {
	ex := &stubExtractor{it: &intent.Intent{Prompt: "dreamy synthwave"}}
	gen := &stubGenerator{out: replicate.Outcome{Kind: replicate.OutcomeSucceeded, ArtifactURL: "https://x/a.wav"}}
	pipeline := compose.NewPipeline(&stubSTT{text: "something dreamy"}, ex, gen)

	body, ctype := multipartBody(t, map[string]string{"persona": "Nova", "seconds": "10"}, true)
	req := httptest.NewRequest(http.MethodPost, "/api/compose", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()

	NewComposeHandler(pipeline, 1<<20).Compose(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"transcript":"something dreamy","intent":{"prompt":"dreamy synthwave"},"audioUrl":"https://x/a.wav"}`, rec.Body.String())
	assert.Equal(t, "Nova", ex.lastPersona)
	assert.Equal(t, 10, gen.last.DurationSeconds)
}

func TestComposeStageErrors(t *testing.T) {
	t.Run("silent audio", func(t *testing.T) {
		pipeline := compose.NewPipeline(&stubSTT{}, &stubExtractor{}, &stubGenerator{})
		body, ctype := multipartBody(t, nil, true)
		req := httptest.NewRequest(http.MethodPost, "/api/compose", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()

		NewComposeHandler(pipeline, 1<<20).Compose(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, "transcribe", decodeBody(t, rec)["stage"])
	})

	t.Run("generation timeout", func(t *testing.T) {
		gen := &stubGenerator{out: replicate.Outcome{Kind: replicate.OutcomeTimeout, Err: replicate.ErrTimeout}}
		pipeline := compose.NewPipeline(&stubSTT{text: "x"}, &stubExtractor{it: &intent.Intent{Prompt: "p"}}, gen)
		body, ctype := multipartBody(t, nil, true)
		req := httptest.NewRequest(http.MethodPost, "/api/compose", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()

		NewComposeHandler(pipeline, 1<<20).Compose(rec, req)

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		got := decodeBody(t, rec)
		assert.Equal(t, "generate", got["stage"])
		assert.Equal(t, "x", got["transcript"])
	})

	t.Run("bad seconds", func(t *testing.T) {
		pipeline := compose.NewPipeline(&stubSTT{text: "x"}, &stubExtractor{}, &stubGenerator{})
		body, ctype := multipartBody(t, map[string]string{"seconds": "ten"}, true)
		req := httptest.NewRequest(http.MethodPost, "/api/compose", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()

		NewComposeHandler(pipeline, 1<<20).Compose(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

type stubJobs struct {
	recs map[uuid.UUID]generation.Record
	err  error
	last generation.EnqueueRequest
}

func (s *stubJobs) Enqueue(ctx context.Context, req generation.EnqueueRequest) (*generation.Record, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	rec := generation.Record{ID: uuid.New(), Prompt: req.Prompt, Status: generation.StatusQueued}
	if s.recs == nil {
		s.recs = make(map[uuid.UUID]generation.Record)
	}
	s.recs[rec.ID] = rec
	return &rec, nil
}

func (s *stubJobs) Get(_ context.Context, id uuid.UUID) (*generation.Record, error) {
	rec, ok := s.recs[id]
	if !ok {
		return nil, generation.ErrNotFound
	}
	return &rec, nil
}

func generationsRouter(jobs GenerationJobs) http.Handler {
	h := NewGenerationsHandler(jobs)
	r := chi.NewRouter()
	r.Post("/api/generations", h.Create)
	r.Get("/api/generations/{id}", h.Get)
	return r
}

func TestGenerationsCreateAndGet(t *testing.T) {
	jobs := &stubJobs{}
	router := generationsRouter(jobs)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generations",
		bytes.NewBufferString(`{"intent":{"prompt":"lofi"},"seconds":8,"callbackUrl":"https://hooks.example/x"}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var created generation.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, generation.StatusQueued, created.Status)
	assert.Equal(t, "/api/generations/"+created.ID.String(), rec.Header().Get("Location"))
	assert.Equal(t, generation.EnqueueRequest{Prompt: "lofi", Seconds: 8, CallbackURL: "https://hooks.example/x"}, jobs.last)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/"+created.ID.String(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/generations/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerationsErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	generationsRouter(&stubJobs{err: generation.ErrInvalidCallback}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generations", bytes.NewBufferString(`{"callbackUrl":"ftp://x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	generationsRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/generations", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
