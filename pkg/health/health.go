// Package health serves the liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Checker checks one dependency.
type Checker func(ctx context.Context) error

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the body of both health endpoints.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

type registration struct {
	check    Checker
	critical bool
}

// Handler holds the registered readiness checks.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]registration
	timeout  time.Duration
}

func NewHandler() *Handler {
	return &Handler{checkers: make(map[string]registration), timeout: 5 * time.Second}
}

// RegisterCritical adds a check whose failure makes the service unready.
// Registering a name again replaces the earlier check.
func (h *Handler) RegisterCritical(name string, checker Checker) {
	h.register(name, registration{check: checker, critical: true})
}

// RegisterNonCritical adds a check whose failure only degrades readiness,
// as with the optional snapshot cache and event stream.
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.register(name, registration{check: checker})
}

func (h *Handler) register(name string, reg registration) {
	h.mu.Lock()
	h.checkers[name] = reg
	h.mu.Unlock()
}

// LivenessHandler answers 200 while the process runs.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, http.StatusOK, Response{Status: StatusUp, Timestamp: time.Now().UTC()})
	}
}

// ReadinessHandler runs every check concurrently under a shared timeout.
// A failing critical check yields 503; failing non-critical checks yield 200
// with status "degraded".
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		checks := h.run(ctx)
		overall := summarize(checks)

		code := http.StatusOK
		if overall == StatusDown {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, code, Response{Status: overall, Timestamp: time.Now().UTC(), Checks: checks})
	}
}

func (h *Handler) run(ctx context.Context) map[string]CheckResult {
	h.mu.RLock()
	regs := maps.Clone(h.checkers)
	h.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]CheckResult, len(regs))
		g       errgroup.Group
	)
	for name, reg := range regs {
		g.Go(func() error {
			res := CheckResult{Status: StatusUp, Critical: reg.critical}
			if err := reg.check(ctx); err != nil {
				res.Status, res.Error = StatusDown, err.Error()
			}
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func summarize(checks map[string]CheckResult) Status {
	overall := StatusUp
	for _, res := range checks {
		switch {
		case res.Status != StatusDown:
		case res.Critical:
			return StatusDown
		default:
			overall = StatusDegraded
		}
	}
	return overall
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
