package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhilbhutani/musetalk/internal/api"
	"github.com/nikhilbhutani/musetalk/internal/api/handlers"
	"github.com/nikhilbhutani/musetalk/internal/app"
	"github.com/nikhilbhutani/musetalk/internal/config"
	"github.com/nikhilbhutani/musetalk/internal/generation"
	"github.com/nikhilbhutani/musetalk/internal/multimodal/stt"
	"github.com/nikhilbhutani/musetalk/internal/queue"
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

	ctx := context.Background()

	storage := app.OpenStorage(ctx, cfg)
	defer storage.Close()

	transcriber, err := stt.New(cfg.STT)
	if err != nil {
		slog.Error("failed to build transcriber", "error", err)
		os.Exit(1)
	}

	music := app.NewReplicateClient(cfg.Replicate, logger)

	deps := api.Deps{
		STT:       transcriber,
		Intent:    app.NewIntentParser(cfg),
		Generator: music,
		Checks:    map[string]handlers.Pinger{},
	}
	if storage.DB != nil {
		deps.Checks["database"] = storage.DB
	}
	if storage.Cache != nil {
		deps.Checks["redis"] = storage.Cache

		// Async generations need the queue, so they are only offered with Redis.
		qc := queue.NewClient(cfg.Redis)
		defer qc.Close()
		deps.Jobs = generation.NewService(storage.GenerationStore(), qc, nil, nil, music.MaxWait())
	} else {
		slog.Warn("async generations disabled: redis unavailable")
	}

	router := api.NewRouter(cfg, deps)
	defer router.Close()

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router.Setup(),
		ReadTimeout: 30 * time.Second,
		// generate and compose hold the connection for the whole prediction.
		WriteTimeout: app.WriteTimeout(music),
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "model", cfg.Replicate.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
