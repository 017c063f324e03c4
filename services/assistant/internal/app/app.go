package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/shopassist/pkg/database"
	"github.com/utafrali/shopassist/pkg/health"
	"github.com/utafrali/shopassist/pkg/httpclient"
	pkgkafka "github.com/utafrali/shopassist/pkg/kafka"
	"github.com/utafrali/shopassist/services/assistant/internal/config"
	"github.com/utafrali/shopassist/services/assistant/internal/event"
	handler "github.com/utafrali/shopassist/services/assistant/internal/handler/http"
	"github.com/utafrali/shopassist/services/assistant/internal/repository"
	redisrepo "github.com/utafrali/shopassist/services/assistant/internal/repository/redis"
	"github.com/utafrali/shopassist/services/assistant/internal/service"
	"github.com/utafrali/shopassist/services/assistant/internal/session"
)

// App wires together all dependencies and runs the assistant service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	rdb        *redis.Client
	producer   *pkgkafka.Producer
	sessions   *session.Manager
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
// Redis and Kafka are optional: when unavailable the service runs without a
// snapshot cache or activity events.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	healthHandler := health.NewHandler()

	// Snapshot cache.
	var repo repository.SnapshotRepository
	if cfg.SnapshotCacheEnabled {
		rdb, err := database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("snapshot cache disabled", slog.String("error", err.Error()))
		} else {
			logger.Info("connected to Redis",
				slog.String("addr", cfg.Redis.Addr),
				slog.Int("db", cfg.Redis.DB),
			)
			a.rdb = rdb
			repo = redisrepo.NewSnapshotRepository(rdb, cfg.SnapshotTTL)
			healthHandler.RegisterNonCritical("redis", database.PingCheck(rdb))
		}
	}

	// Activity events.
	var events service.EventPublisher = event.Nop{}
	if cfg.EventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Backend transport: one pool and one breaker for every session.
	base := httpclient.New(cfg.HTTPClient())
	breaker := httpclient.NewCircuitBreakerClient(base, cfg.CircuitBreaker(), logger)
	healthHandler.RegisterCritical("backend_breaker", func(context.Context) error {
		if breaker.State() == gobreaker.StateOpen {
			return fmt.Errorf("circuit %s open", breaker.Name())
		}
		return nil
	})

	a.sessions = session.NewManager(
		cfg.Sessions(),
		session.CookieJarGateways(base, breaker, cfg.BackendURL, logger),
		events,
		repo,
		logger,
	)

	router := handler.NewRouter(a.sessions, healthHandler, logger, cfg.Router())

	// WriteTimeout stays zero so the event stream is not cut off; the
	// request timeout middleware bounds every other route.
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("backend", a.cfg.BackendURL),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Closing the sessions ends open event streams.
	a.sessions.Close()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return nil
}
