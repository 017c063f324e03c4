package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	pkgconfig "github.com/utafrali/shopassist/pkg/config"
	"github.com/utafrali/shopassist/pkg/logger"
	"github.com/utafrali/shopassist/pkg/tracing"
	"github.com/utafrali/shopassist/services/assistant/internal/app"
	"github.com/utafrali/shopassist/services/assistant/internal/config"
)

func main() {
	// A local .env never overrides the real environment.
	if err := pkgconfig.LoadDotenv(); err != nil {
		slog.Error("failed to load .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("assistant-service", cfg.LogLevel)
	log.Info("starting assistant service",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("backend_url", cfg.BackendURL),
	)

	// Create a context that is canceled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}()

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Run the application. This blocks until shutdown.
	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		cancel()
		os.Exit(1)
	}

	log.Info("assistant service stopped")
}
