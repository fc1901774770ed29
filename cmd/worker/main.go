package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/musetalk/internal/app"
	"github.com/nikhilbhutani/musetalk/internal/config"
	"github.com/nikhilbhutani/musetalk/internal/generation"
	"github.com/nikhilbhutani/musetalk/internal/queue"
	"github.com/nikhilbhutani/musetalk/internal/queue/workers"
	"github.com/nikhilbhutani/musetalk/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.Log, os.Stdout)

	storage := app.OpenStorage(context.Background(), cfg)
	defer storage.Close()

	store := storage.GenerationStore()
	if store == nil {
		slog.Error("worker needs redis or a database to store generations")
		os.Exit(1)
	}

	dispatcher := webhook.NewDispatcher(cfg.Webhook.Secret, cfg.Webhook.QueueSize)
	defer dispatcher.Close()

	music := app.NewReplicateClient(cfg.Replicate, logger)
	service := generation.NewService(store, nil, music, dispatcher, music.MaxWait())

	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger:   newAsynqLogger(logger),
			LogLevel: asynq.InfoLevel,
		},
	)

	registry := queue.NewHandlersRegistry()
	registry.Register(queue.TypeGenerationRun, workers.NewGenerationWorker(service))

	slog.Info("starting worker", "concurrency", cfg.Worker.Concurrency, "model", cfg.Replicate.Model)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
