// Package service turns user intents into backend calls and store mutations.
package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/utafrali/shopassist/pkg/logger"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
	"github.com/utafrali/shopassist/services/assistant/internal/event"
	"github.com/utafrali/shopassist/services/assistant/internal/gateway"
	"github.com/utafrali/shopassist/services/assistant/internal/searchctx"
	"github.com/utafrali/shopassist/services/assistant/internal/store"
)

// EventPublisher receives activity events. Publishing is best-effort: a
// failure is logged and never fails an intent.
type EventPublisher interface {
	PublishSearchCompleted(ctx context.Context, data event.SearchCompletedData) error
	PublishCollectionToggled(ctx context.Context, data event.CollectionToggledData) error
	PublishCheckoutCompleted(ctx context.Context, data event.CheckoutCompletedData) error
	PublishIdentityChanged(ctx context.Context, data event.IdentityChangedData) error
}

// Collection names a server-owned membership set.
type Collection string

const (
	CollectionCart     Collection = "cart"
	CollectionWishlist Collection = "wishlist"
)

// Orchestrator drives one session. It owns the session's store and search
// context; the gateway is expected to carry the session's backend cookies.
type Orchestrator struct {
	sessionID string
	gw        gateway.RemoteGateway
	store     *store.Store
	search    *searchctx.Context
	events    EventPublisher
	logger    *slog.Logger

	toggles keyedMutex

	// issued is bumped when a collection fetch starts. applied is only read
	// and written inside store.Apply, so the store lock guards it.
	issued  map[Collection]*atomic.Uint64
	applied map[Collection]uint64
}

// NewOrchestrator creates an orchestrator with a fresh store and search context.
func NewOrchestrator(sessionID string, gw gateway.RemoteGateway, events EventPublisher, log *slog.Logger) *Orchestrator {
	if events == nil {
		events = event.Nop{}
	}
	return &Orchestrator{
		sessionID: sessionID,
		gw:        gw,
		store:     store.New(sessionID),
		search:    searchctx.New(),
		events:    events,
		logger:    log.With(slog.String("session_id", sessionID)),
		toggles:   keyedMutex{locks: make(map[string]*keyedLock)},
		issued: map[Collection]*atomic.Uint64{
			CollectionCart:     new(atomic.Uint64),
			CollectionWishlist: new(atomic.Uint64),
		},
		applied: map[Collection]uint64{},
	}
}

// SessionID returns the id of the session this orchestrator drives.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// Snapshot returns the latest snapshot.
func (o *Orchestrator) Snapshot() domain.Snapshot { return o.store.Snapshot() }

// Subscribe streams snapshots, newest wins. See store.Store.Subscribe.
func (o *Orchestrator) Subscribe() (<-chan domain.Snapshot, func()) { return o.store.Subscribe() }

// SearchState reports the search context state.
func (o *Orchestrator) SearchState() searchctx.State { return o.search.State() }

// ComputeFlags returns current membership flags for productID.
func (o *Orchestrator) ComputeFlags(productID string) domain.Flags {
	return o.store.ComputeFlags(productID)
}

// Close ends all subscriptions.
func (o *Orchestrator) Close() { o.store.Close() }

// withSession decorates ctx with the session id and, when known, the username so
// downstream logs and events carry them.
func (o *Orchestrator) withSession(ctx context.Context) context.Context {
	ctx = logger.WithSessionID(ctx, o.sessionID)
	if id := o.store.Identity(); id != nil {
		ctx = logger.WithUsername(ctx, id.Username)
	}
	return ctx
}

func (o *Orchestrator) issue(c Collection) uint64 {
	return o.issued[c].Add(1)
}

// acceptFetch must be called inside store.Apply. It records token as the
// newest applied fetch for c, or reports false if a newer one already landed.
func (o *Orchestrator) acceptFetch(c Collection, token uint64) bool {
	if token <= o.applied[c] {
		return false
	}
	o.applied[c] = token
	return true
}

// invalidateFetches must be called inside store.Apply. Any fetch issued
// before it is discarded on arrival.
func (o *Orchestrator) invalidateFetches() {
	for c, counter := range o.issued {
		if n := counter.Load(); n > o.applied[c] {
			o.applied[c] = n
		}
	}
}

// keyedMutex serializes work per key. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
