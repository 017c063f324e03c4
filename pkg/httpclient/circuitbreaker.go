package httpclient

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig configures the breaker in front of the backend.
type CircuitBreakerConfig struct {
	Name string
	// MaxRequests is the number of trial requests let through while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts; zero never clears them.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout      time.Duration
	FailureRatio float64
	// MinRequests must be seen before FailureRatio is considered.
	MinRequests uint32
}

// DefaultCircuitBreakerConfig returns the breaker settings for name.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

func (c CircuitBreakerConfig) readyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

var stateGauge = map[gobreaker.State]float64{
	gobreaker.StateClosed:   0,
	gobreaker.StateHalfOpen: 1,
	gobreaker.StateOpen:     2,
}

// Breaker rejections. Classify maps both to an unreachable backend.
var (
	ErrCircuitOpen     = gobreaker.ErrOpenState
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// CircuitBreakerClient sends requests through a Client guarded by a breaker.
type CircuitBreakerClient struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	name    string
}

// NewCircuitBreakerClient wraps client with a breaker built from cbCfg.
// State changes are logged and exported as the circuit_breaker_state gauge.
func NewCircuitBreakerClient(client *Client, cbCfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerClient {
	breakerState.WithLabelValues(cbCfg.Name).Set(stateGauge[gobreaker.StateClosed])

	return &CircuitBreakerClient{
		client: client,
		name:   cbCfg.Name,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        cbCfg.Name,
			MaxRequests: cbCfg.MaxRequests,
			Interval:    cbCfg.Interval,
			Timeout:     cbCfg.Timeout,
			ReadyToTrip: cbCfg.readyToTrip,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
				breakerState.WithLabelValues(name).Set(stateGauge[to])
			},
		}),
	}
}

// WithClient returns a copy that sends through client but shares the breaker,
// so every session's failures count against the same backend.
func (c *CircuitBreakerClient) WithClient(client *Client) *CircuitBreakerClient {
	cpy := *c
	cpy.client = client
	return &cpy
}

// Do sends req through the breaker. Transport errors and 5xx responses count
// as failures and a 5xx comes back as the error decoded from its body. A 4xx
// response is returned untouched and does not count against the backend.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, ErrorFromBody(resp.StatusCode, body)
	})
}

// State returns the current breaker state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}

// Name returns the breaker name.
func (c *CircuitBreakerClient) Name() string {
	return c.name
}
