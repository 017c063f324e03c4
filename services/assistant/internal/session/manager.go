// Package session keeps the live sessions of the assistant: one orchestrator
// per browser session, each with its own backend cookie jar.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/pkg/httpclient"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
	"github.com/utafrali/shopassist/services/assistant/internal/gateway"
	"github.com/utafrali/shopassist/services/assistant/internal/repository"
	"github.com/utafrali/shopassist/services/assistant/internal/service"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_active_sessions",
		Help: "Number of live assistant sessions",
	})

	reapedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_sessions_reaped_total",
		Help: "Sessions disposed after being idle",
	})
)

// GatewayFactory builds the backend gateway for a new session.
type GatewayFactory func(sessionID string) (gateway.RemoteGateway, error)

// CookieJarGateways returns a factory whose gateways share base's connection
// pool and the breaker, but each keep their own cookie jar so backend logins
// stay within one session.
func CookieJarGateways(base *httpclient.Client, breaker *httpclient.CircuitBreakerClient, baseURL string, logger *slog.Logger) GatewayFactory {
	return func(string) (gateway.RemoteGateway, error) {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		return gateway.NewHTTPGateway(breaker.WithClient(base.WithJar(jar)), baseURL, logger), nil
	}
}

// Config bounds the manager.
type Config struct {
	IdleTTL      time.Duration
	ReapInterval time.Duration
	MaxSessions  int
	SaveTimeout  time.Duration
}

// Session is a live session.
type Session struct {
	*service.Orchestrator

	lastSeen atomic.Int64
	done     chan struct{}
}

// Manager owns every live session.
type Manager struct {
	cfg        Config
	newGateway GatewayFactory
	events     service.EventPublisher
	repo       repository.SnapshotRepository
	logger     *slog.Logger
	nowFunc    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager creates a manager and starts its idle reaper. repo may be nil,
// in which case snapshots are not cached.
func NewManager(cfg Config, newGateway GatewayFactory, events service.EventPublisher, repo repository.SnapshotRepository, logger *slog.Logger) *Manager {
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 2 * time.Second
	}
	m := &Manager{
		cfg:        cfg,
		newGateway: newGateway,
		events:     events,
		repo:       repo,
		logger:     logger,
		nowFunc:    time.Now,
		sessions:   make(map[string]*Session),
		stop:       make(chan struct{}),
	}

	if cfg.ReapInterval > 0 && cfg.IdleTTL > 0 {
		m.wg.Add(1)
		go m.reapLoop()
	}
	return m
}

// Create starts a new session and bootstraps it.
func (m *Manager) Create(ctx context.Context) (*Session, domain.Snapshot, error) {
	id := uuid.NewString()

	gw, err := m.newGateway(id)
	if err != nil {
		return nil, domain.Snapshot{}, fmt.Errorf("create gateway: %w", err)
	}

	s := &Session{
		Orchestrator: service.NewOrchestrator(id, gw, m.events, m.logger),
		done:         make(chan struct{}),
	}
	s.lastSeen.Store(m.nowFunc().UnixNano())

	m.mu.Lock()
	select {
	case <-m.stop:
		m.mu.Unlock()
		return nil, domain.Snapshot{}, apperrors.ServiceUnavailable("the assistant is shutting down")
	default:
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, domain.Snapshot{}, apperrors.ServiceUnavailable("too many active sessions, try again later")
	}
	m.sessions[id] = s
	m.wg.Add(1)
	m.mu.Unlock()
	activeSessions.Inc()

	go m.persist(s)

	snap := s.Start(ctx)
	m.logger.InfoContext(ctx, "session created",
		slog.String("session_id", id),
		slog.Bool("logged_in", snap.LoggedIn()),
	)
	return s, snap, nil
}

// Get returns a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}
	s.lastSeen.Store(m.nowFunc().UnixNano())
	return s, nil
}

// Cached returns the last snapshot written for a session that may no longer
// be live.
func (m *Manager) Cached(ctx context.Context, id string) (*domain.Snapshot, error) {
	if m.repo == nil {
		return nil, apperrors.NotFound("session", id)
	}
	return m.repo.Get(ctx, id)
}

// Delete disposes a live session and drops its cached snapshot.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return apperrors.NotFound("session", id)
	}

	m.dispose(s)
	if m.repo != nil {
		if err := m.repo.Delete(ctx, id); err != nil {
			m.logger.WarnContext(ctx, "failed to delete cached snapshot",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	m.logger.InfoContext(ctx, "session deleted", slog.String("session_id", id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the reaper and disposes every session. Cached snapshots are
// kept.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)

		m.mu.Lock()
		sessions := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		for _, s := range sessions {
			m.dispose(s)
		}
		m.wg.Wait()
	})
}

func (m *Manager) dispose(s *Session) {
	s.Close()
	<-s.done
	activeSessions.Dec()
}

// persist writes every published snapshot through to the repository until
// the session is closed.
func (m *Manager) persist(s *Session) {
	defer m.wg.Done()
	defer close(s.done)

	ch, cancel := s.Subscribe()
	defer cancel()

	for snap := range ch {
		if m.repo == nil {
			continue
		}
		ctx, stop := context.WithTimeout(context.Background(), m.cfg.SaveTimeout)
		err := m.repo.Save(ctx, snap)
		stop()
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Warn("failed to cache snapshot",
				slog.String("session_id", snap.SessionID),
				slog.Uint64("version", snap.Version),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *Manager) reapLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.reapIdle(); n > 0 {
				m.logger.Info("reaped idle sessions", slog.Int("count", n))
			}
		}
	}
}

// reapIdle disposes sessions unused for longer than the idle TTL.
func (m *Manager) reapIdle() int {
	cutoff := m.nowFunc().Add(-m.cfg.IdleTTL).UnixNano()

	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.lastSeen.Load() < cutoff {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		m.dispose(s)
		reapedSessions.Inc()
	}
	return len(idle)
}
