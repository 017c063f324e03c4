package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, "http://localhost:5000", cfg.BackendURL)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.True(t, cfg.SnapshotCacheEnabled)
	assert.False(t, cfg.EventsEnabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "assistant-service", cfg.Tracing.ServiceName)
}

func TestLoad_InvalidHTTPPort(t *testing.T) {
	t.Setenv("ASSISTANT_HTTP_PORT", "0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_InvalidBackendURL(t *testing.T) {
	for _, raw := range []string{"localhost:5000", "ftp://reco", "http://"} {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("BACKEND_URL", raw)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid BACKEND_URL")
		})
	}
}

func TestLoad_InvalidOTELSampleRate(t *testing.T) {
	t.Setenv("OTEL_SAMPLE_RATE", "2.0")

	cfg, err := Load()

	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
}

func TestLoad_InvalidBreakerRatio(t *testing.T) {
	t.Setenv("BREAKER_FAILURE_RATIO", "0")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "BREAKER_FAILURE_RATIO")
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SESSION_IDLE_TTL", "forever")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "load assistant config")
}

func TestLoad_Custom(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://reco.internal:8443")
	t.Setenv("SESSION_IDLE_TTL", "5m")
	t.Setenv("MAX_SESSIONS", "50")
	t.Setenv("EVENTS_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "redis.prod:6380")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "https://reco.internal:8443", cfg.BackendURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "redis.prod:6380", cfg.Redis.Addr)

	sessions := cfg.Sessions()
	assert.Equal(t, 5*time.Minute, sessions.IdleTTL)
	assert.Equal(t, 50, sessions.MaxSessions)
}

func TestConfig_Derived(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	hc := cfg.HTTPClient()
	assert.Equal(t, 60*time.Second, hc.Timeout)
	assert.Equal(t, 1, hc.MaxRetries)

	cb := cfg.CircuitBreaker()
	assert.Equal(t, "recommendation-backend", cb.Name)
	assert.Equal(t, 0.5, cb.FailureRatio)
	assert.Equal(t, uint32(5), cb.MinRequests)

	rc := cfg.Router()
	assert.Equal(t, 10.0, rc.RateLimitRPS)
	assert.Equal(t, 15*time.Second, rc.Heartbeat)
}
