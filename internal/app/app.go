// Package app builds the shared components from configuration for the
// server, the worker and the CLI.
package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/musetalk/internal/cache"
	"github.com/nikhilbhutani/musetalk/internal/config"
	"github.com/nikhilbhutani/musetalk/internal/database"
	"github.com/nikhilbhutani/musetalk/internal/generation"
	"github.com/nikhilbhutani/musetalk/internal/intent"
	"github.com/nikhilbhutani/musetalk/internal/llm"
	"github.com/nikhilbhutani/musetalk/internal/multimodal/stt"
	"github.com/nikhilbhutani/musetalk/internal/replicate"
)

// NewLogger returns a JSON logger at the configured level and installs it
// as the default.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.Level}))
	slog.SetDefault(logger)
	return logger
}

func ReplicateConfig(cfg config.ReplicateConfig) replicate.Config {
	return replicate.Config{
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.Timeout,
		HardDeadline: cfg.HardDeadline,
	}
}

func NewReplicateClient(cfg config.ReplicateConfig, logger *slog.Logger) *replicate.Client {
	return replicate.NewClient(cfg.Token, ReplicateConfig(cfg), replicate.WithLogger(logger))
}

// IntentConfig maps the intent settings. Without INTENT_MODEL the gateway's
// default model is used.
func IntentConfig(cfg *config.Config) intent.Config {
	model := cfg.Intent.Model
	if model == "" {
		model = cfg.LLM.DefaultModel
	}
	return intent.Config{
		Provider:       cfg.Intent.Provider,
		Model:          model,
		Temperature:    cfg.Intent.Temperature,
		DefaultPersona: cfg.Intent.DefaultPersona,
	}
}

// WriteTimeout sizes the server's write deadline for the slowest route,
// compose: one transcription, one intent call and a full generation wait.
func WriteTimeout(music *replicate.Client) time.Duration {
	return stt.RequestTimeout + time.Minute + music.MaxWait()
}

func NewIntentParser(cfg *config.Config) *intent.Parser {
	return intent.NewParser(llm.NewGateway(cfg.LLM), IntentConfig(cfg))
}

// Storage holds the optional backing services. A nil field means the
// service was not reachable at startup.
type Storage struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
	Cache *cache.Cache
}

// OpenStorage connects to PostgreSQL and Redis, running migrations on the
// former. Unreachable services are logged and left nil.
func OpenStorage(ctx context.Context, cfg *config.Config) *Storage {
	s := &Storage{}

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Warn("database unavailable, running without DB", "error", err)
	} else {
		if err := database.RunMigrations(ctx, db, database.Migrations(cfg.Database.MigrationsPath)); err != nil {
			slog.Warn("migrations failed", "error", err)
		}
		s.DB = db
	}

	rdb := cache.NewClient(cfg.Redis)
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without cache", "error", err)
		_ = rdb.Close()
	} else {
		s.Redis = rdb
		s.Cache = cache.NewCache(rdb, "musetalk:")
	}

	return s
}

// GenerationStore layers the cache over the database, using whichever is
// available. It returns nil when neither is.
func (s *Storage) GenerationStore() generation.Store {
	var tiers []generation.Store
	if s.Cache != nil {
		tiers = append(tiers, generation.NewCacheStore(s.Cache, 0))
	}
	if s.DB != nil {
		tiers = append(tiers, generation.NewPGStore(s.DB))
	}
	if len(tiers) == 0 {
		return nil
	}
	return generation.NewTieredStore(tiers...)
}

func (s *Storage) Close() {
	if s.DB != nil {
		s.DB.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}
