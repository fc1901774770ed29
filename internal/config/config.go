package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	LLM       LLMConfig
	STT       STTConfig
	Replicate ReplicateConfig
	Intent    IntentConfig
	Worker    WorkerConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	// JWTSecret enables bearer auth on /api when set.
	JWTSecret string
}

type LLMConfig struct {
	OpenAIKey        string
	OpenAIBaseURL    string // OpenAI-compatible endpoint, e.g. a proxy
	AnthropicKey     string
	OllamaURL        string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
}

type STTConfig struct {
	Backend       string // "openai" or "local"
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	LocalBaseURL  string // default: "http://localhost:8178"
}

type ReplicateConfig struct {
	Token        string
	BaseURL      string
	Model        string
	PollInterval time.Duration
	Timeout      time.Duration
	HardDeadline bool
}

type IntentConfig struct {
	Provider       string
	Model          string
	Temperature    float64
	DefaultPersona string
}

type WorkerConfig struct {
	Concurrency int
}

type WebhookConfig struct {
	Secret    string
	QueueSize int
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type LogConfig struct {
	Level slog.Level
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set in the process win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var p parser

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            p.int("SERVER_PORT", 8080),
			AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
			MaxUploadBytes:  int64(p.int("MAX_UPLOAD_BYTES", 25<<20)),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       p.int("DB_MAX_CONNS", 10),
			MinConns:       p.int("DB_MIN_CONNS", 2),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       p.int("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("LLM_OPENAI_BASE_URL", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o-mini"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       p.int("LLM_MAX_RETRIES", 2),
		},
		STT: STTConfig{
			Backend:       getEnv("STT_BACKEND", "openai"),
			OpenAIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("STT_OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("STT_OPENAI_MODEL", ""),
			LocalBaseURL:  getEnv("STT_LOCAL_BASE_URL", "http://localhost:8178"),
		},
		Replicate: ReplicateConfig{
			Token:        getEnv("REPLICATE_API_TOKEN", ""),
			BaseURL:      getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
			Model:        getEnv("MUSIC_MODEL", "meta/musicgen-small"),
			PollInterval: p.duration("REPLICATE_POLL_INTERVAL", 1500*time.Millisecond),
			Timeout:      p.duration("REPLICATE_TIMEOUT", 60*time.Second),
			HardDeadline: p.bool("REPLICATE_HARD_DEADLINE", false),
		},
		Intent: IntentConfig{
			Provider:       getEnv("INTENT_PROVIDER", ""),
			Model:          getEnv("INTENT_MODEL", ""),
			Temperature:    p.float("INTENT_TEMPERATURE", 0.2),
			DefaultPersona: getEnv("INTENT_DEFAULT_PERSONA", "Lyra"),
		},
		Worker: WorkerConfig{
			Concurrency: p.int("WORKER_CONCURRENCY", 10),
		},
		Webhook: WebhookConfig{
			Secret:    getEnv("WEBHOOK_SECRET", ""),
			QueueSize: p.int("WEBHOOK_QUEUE_SIZE", 1000),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: p.float("RATE_LIMIT_RPS", 10),
			Burst:             p.int("RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level: p.level("LOG_LEVEL", slog.LevelInfo),
		},
	}

	if err := p.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports settings that make the server unusable. Upstream
// credentials are not checked here: the endpoints that need them answer
// with a configuration error instead.
func (c *Config) Validate() error {
	var problems []string
	if c.Replicate.PollInterval <= 0 {
		problems = append(problems, "REPLICATE_POLL_INTERVAL must be positive")
	}
	if c.Replicate.Timeout <= 0 {
		problems = append(problems, "REPLICATE_TIMEOUT must be positive")
	}
	if c.Worker.Concurrency <= 0 {
		problems = append(problems, "WORKER_CONCURRENCY must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// getEnvDuration accepts Go durations ("1500ms") or bare milliseconds.
func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects the first parse error so Load can stay a flat literal.
type parser struct {
	first error
}

func (p *parser) fail(key string, err error) {
	if p.first == nil {
		p.first = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) err() error { return p.first }

func (p *parser) int(key string, fallback int) int {
	v, err := getEnvInt(key, fallback)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return v
}

func (p *parser) float(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return v
}

func (p *parser) bool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v, err := getEnvDuration(key, fallback)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return v
}

func (p *parser) level(key string, fallback slog.Level) slog.Level {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		p.fail(key, err)
		return fallback
	}
	return lvl
}
