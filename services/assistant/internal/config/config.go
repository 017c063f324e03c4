package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/shopassist/pkg/config"
	"github.com/utafrali/shopassist/pkg/database"
	"github.com/utafrali/shopassist/pkg/httpclient"
	"github.com/utafrali/shopassist/pkg/tracing"
	handler "github.com/utafrali/shopassist/services/assistant/internal/handler/http"
	"github.com/utafrali/shopassist/services/assistant/internal/session"
)

// Config holds all configuration for the assistant service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort       int           `env:"ASSISTANT_HTTP_PORT" envDefault:"8010"`
	RequestTimeout time.Duration `env:"ASSISTANT_REQUEST_TIMEOUT" envDefault:"30s"`
	Heartbeat      time.Duration `env:"ASSISTANT_SSE_HEARTBEAT" envDefault:"15s"`
	RateLimitRPS   float64       `env:"ASSISTANT_RATE_LIMIT_RPS" envDefault:"10"`
	RateLimitBurst int           `env:"ASSISTANT_RATE_LIMIT_BURST" envDefault:"20"`
	AllowedOrigins []string      `env:"ASSISTANT_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Recommendation backend
	BackendURL          string        `env:"BACKEND_URL" envDefault:"http://localhost:5000"`
	BackendTimeout      time.Duration `env:"BACKEND_TIMEOUT" envDefault:"60s"`
	BackendMaxRetries   int           `env:"BACKEND_MAX_RETRIES" envDefault:"1"`
	BackendRetryWaitMin time.Duration `env:"BACKEND_RETRY_WAIT_MIN" envDefault:"200ms"`
	BackendRetryWaitMax time.Duration `env:"BACKEND_RETRY_WAIT_MAX" envDefault:"2s"`
	BackendMaxConns     int           `env:"BACKEND_MAX_CONNS" envDefault:"100"`

	// Circuit breaker around the backend
	BreakerMaxRequests  uint32        `env:"BREAKER_MAX_REQUESTS" envDefault:"1"`
	BreakerInterval     time.Duration `env:"BREAKER_INTERVAL" envDefault:"60s"`
	BreakerTimeout      time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Sessions
	SessionIdleTTL      time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
	SessionReapInterval time.Duration `env:"SESSION_REAP_INTERVAL" envDefault:"1m"`
	MaxSessions         int           `env:"MAX_SESSIONS" envDefault:"10000"`

	// Snapshot cache
	SnapshotCacheEnabled bool          `env:"SNAPSHOT_CACHE_ENABLED" envDefault:"true"`
	SnapshotTTL          time.Duration `env:"SNAPSHOT_TTL" envDefault:"24h"`
	Redis                database.RedisConfig

	// Activity events
	EventsEnabled bool     `env:"EVENTS_ENABLED" envDefault:"false"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load assistant config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Tracing.ServiceName = "assistant-service"
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid BACKEND_URL: %q", c.BackendURL)
	}
	if c.BackendMaxRetries < 0 {
		return errors.New("BACKEND_MAX_RETRIES must not be negative")
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return errors.New("BREAKER_FAILURE_RATIO must be in (0.0, 1.0]")
	}
	if c.SessionIdleTTL <= 0 {
		return errors.New("SESSION_IDLE_TTL must be positive")
	}
	if c.MaxSessions < 0 {
		return errors.New("MAX_SESSIONS must not be negative")
	}
	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when EVENTS_ENABLED is set")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.New("OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
	}
	return nil
}

// HTTPClient returns the backend transport settings.
func (c *Config) HTTPClient() httpclient.Config {
	return httpclient.Config{
		Timeout:         c.BackendTimeout,
		MaxRetries:      c.BackendMaxRetries,
		RetryWaitMin:    c.BackendRetryWaitMin,
		RetryWaitMax:    c.BackendRetryWaitMax,
		MaxConnsPerHost: c.BackendMaxConns,
	}
}

// CircuitBreaker returns the breaker settings shared by every session.
func (c *Config) CircuitBreaker() httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         "recommendation-backend",
		MaxRequests:  c.BreakerMaxRequests,
		Interval:     c.BreakerInterval,
		Timeout:      c.BreakerTimeout,
		FailureRatio: c.BreakerFailureRatio,
		MinRequests:  c.BreakerMinRequests,
	}
}

// Sessions returns the session manager settings.
func (c *Config) Sessions() session.Config {
	return session.Config{
		IdleTTL:      c.SessionIdleTTL,
		ReapInterval: c.SessionReapInterval,
		MaxSessions:  c.MaxSessions,
	}
}

// Router returns the service API settings.
func (c *Config) Router() handler.RouterConfig {
	return handler.RouterConfig{
		RequestTimeout: c.RequestTimeout,
		Heartbeat:      c.Heartbeat,
		RateLimitRPS:   c.RateLimitRPS,
		RateLimitBurst: c.RateLimitBurst,
		AllowedOrigins: c.AllowedOrigins,
	}
}
