package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/musetalk/internal/api/handlers"
	"github.com/nikhilbhutani/musetalk/internal/api/middleware"
	"github.com/nikhilbhutani/musetalk/internal/auth"
	"github.com/nikhilbhutani/musetalk/internal/compose"
	"github.com/nikhilbhutani/musetalk/internal/config"
	"github.com/nikhilbhutani/musetalk/internal/multimodal/stt"
)

// Deps are the services behind the HTTP surface. Jobs and the health checks
// are optional.
type Deps struct {
	STT       stt.STTProvider
	Intent    handlers.IntentExtractor
	Generator handlers.Generator
	Jobs      handlers.GenerationJobs
	Checks    map[string]handlers.Pinger
}

type Router struct {
	mux  *chi.Mux
	cfg  *config.Config
	deps Deps
	rl   *middleware.RateLimiter
}

func NewRouter(cfg *config.Config, deps Deps) *Router {
	return &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
		rl:   middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}
}

// Close releases background resources.
func (rt *Router) Close() {
	rt.rl.Stop()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))

	health := handlers.NewHealthHandler(rt.deps.Checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	pipeline := compose.NewPipeline(rt.deps.STT, rt.deps.Intent, rt.deps.Generator)
	maxUpload := rt.cfg.Server.MaxUploadBytes

	r.Route("/api", func(r chi.Router) {
		r.Use(rt.rl.Limit)
		if rt.cfg.Auth.JWTSecret != "" {
			r.Use(auth.NewJWTMiddleware(rt.cfg.Auth.JWTSecret).Authenticate)
		}

		r.Post("/transcribe", handlers.NewTranscribeHandler(rt.deps.STT, maxUpload).Transcribe)
		r.Post("/intent", handlers.NewIntentHandler(rt.deps.Intent).Extract)

		genH := handlers.NewGenerateHandler(rt.deps.Generator)
		r.Get("/generate", genH.Hint)
		r.Post("/generate", genH.Generate)

		r.Post("/compose", handlers.NewComposeHandler(pipeline, maxUpload).Compose)

		jobsH := handlers.NewGenerationsHandler(rt.deps.Jobs)
		r.Route("/generations", func(r chi.Router) {
			r.Post("/", jobsH.Create)
			r.Get("/{id}", jobsH.Get)
		})
	})

	return r
}
