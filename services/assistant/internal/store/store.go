// Package store owns a session's collections: recommendations, cart,
// wishlist and the detail selection. All mutations go through Apply, which
// runs under one lock and publishes a new immutable snapshot.
package store

import (
	"sync"
	"time"

	"github.com/utafrali/shopassist/services/assistant/internal/domain"
)

// Store is the single owner of a session's collections.
type Store struct {
	mu        sync.Mutex
	sessionID string
	tx        Tx
	index     ProductIndex
	version   uint64
	snap      domain.Snapshot
	subs      map[uint64]chan domain.Snapshot
	nextSub   uint64
	closed    bool
	nowFunc   func() time.Time
}

// New creates an empty store for a session.
func New(sessionID string) *Store {
	s := &Store{
		sessionID: sessionID,
		subs:      make(map[uint64]chan domain.Snapshot),
		nowFunc:   time.Now,
	}
	s.tx.insight = domain.AbsentInsight()
	s.tx.mode = domain.SearchModeNone
	s.index = s.tx.buildIndex()
	s.snap = s.tx.snapshot(s.sessionID, 0, s.nowFunc())
	return s
}

// Apply runs fn under the store lock. If fn returns true the mutation is
// committed: the version is bumped and a snapshot is published. If fn returns
// false any changes it made are still kept, so fn must only report false
// when it changed nothing.
func (s *Store) Apply(fn func(tx *Tx) bool) (domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !fn(&s.tx) {
		return s.snap, false
	}

	s.version++
	s.index = s.tx.buildIndex()
	s.snap = s.tx.snapshot(s.sessionID, s.version, s.nowFunc())
	s.publish(s.snap)
	return s.snap, true
}

// Snapshot returns the latest published snapshot.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// ReplaceRecommendations swaps the recommendation grid wholesale.
func (s *Store) ReplaceRecommendations(list []domain.Product) domain.Snapshot {
	snap, _ := s.Apply(func(tx *Tx) bool {
		tx.ReplaceRecommendations(list)
		return true
	})
	return snap
}

// SetCart replaces the cart from a server snapshot.
func (s *Store) SetCart(lines []domain.CartLine) domain.Snapshot {
	snap, _ := s.Apply(func(tx *Tx) bool { return tx.SetCart(lines) })
	return snap
}

// SetWishlist replaces the wishlist from a server snapshot.
func (s *Store) SetWishlist(list []domain.Product) domain.Snapshot {
	snap, _ := s.Apply(func(tx *Tx) bool { return tx.SetWishlist(list) })
	return snap
}

// SetDetail opens the detail view for p, or closes it when p is nil.
func (s *Store) SetDetail(p *domain.Product) domain.Snapshot {
	snap, _ := s.Apply(func(tx *Tx) bool {
		tx.SetDetail(p)
		return true
	})
	return snap
}

// SetIdentity records the logged-in user. A nil identity empties the cart
// and wishlist in the same snapshot.
func (s *Store) SetIdentity(id *domain.Identity) domain.Snapshot {
	snap, _ := s.Apply(func(tx *Tx) bool {
		tx.SetIdentity(id)
		return true
	})
	return snap
}

// SetInsight replaces the insight.
func (s *Store) SetInsight(in domain.Insight) domain.Snapshot {
	snap, _ := s.Apply(func(tx *Tx) bool {
		tx.SetInsight(in, "")
		return true
	})
	return snap
}

// SetSearchState records the mode, preview URL and prompt of the last search.
func (s *Store) SetSearchState(mode domain.SearchMode, previewURL, prompt string) domain.Snapshot {
	snap, _ := s.Apply(func(tx *Tx) bool {
		tx.SetSearchState(mode, previewURL, prompt)
		return true
	})
	return snap
}

// Identity returns the current identity, or nil.
func (s *Store) Identity() *domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx.Identity()
}

// ComputeFlags derives membership flags from the collections at call time.
func (s *Store) ComputeFlags(productID string) domain.Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx.Flags(productID)
}

// Resolve looks a product up across all collections.
func (s *Store) Resolve(productID string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Lookup(productID)
}

// CartLines returns a copy of the cart.
func (s *Store) CartLines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx.CartLines()
}

// Subscribe returns a channel that always holds the newest snapshot. A slow
// reader skips intermediate versions and never blocks a mutation. The
// channel is closed by cancel or by Close.
func (s *Store) Subscribe() (<-chan domain.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan domain.Snapshot, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.snap

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Close ends every subscription. Mutations after Close still apply but are
// no longer published.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// publish must be called with s.mu held.
func (s *Store) publish(snap domain.Snapshot) {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
