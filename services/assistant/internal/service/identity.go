package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/pkg/logger"
	"github.com/utafrali/shopassist/pkg/validator"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
	"github.com/utafrali/shopassist/services/assistant/internal/event"
	"github.com/utafrali/shopassist/services/assistant/internal/store"
)

// Start bootstraps a new session: it asks the backend for the identity, seeds the
// collections of a logged-in user, and runs the initial-load query. No step
// is fatal; failures are logged and reflected in the snapshot.
func (o *Orchestrator) Start(ctx context.Context) domain.Snapshot {
	ctx = o.withSession(ctx)

	id, err := o.gw.GetSessionIdentity(ctx)
	switch {
	case err != nil:
		o.logger.WarnContext(ctx, "identity lookup failed, continuing anonymously",
			slog.String("error", err.Error()),
		)
	case id != nil:
		o.store.SetIdentity(id)
		ctx = logger.WithUsername(ctx, id.Username)
		o.seed(ctx)
	}

	if _, err := o.ClearPrompt(ctx); err != nil {
		o.logger.WarnContext(ctx, "initial load failed", slog.String("error", err.Error()))
	}
	return o.store.Snapshot()
}

// Login authenticates against the backend and seeds cart and wishlist.
func (o *Orchestrator) Login(ctx context.Context, creds domain.Credentials) (domain.Snapshot, error) {
	if err := validator.Validate(creds); err != nil {
		return domain.Snapshot{}, apperrors.InvalidInput(err.Error())
	}
	return o.authenticate(ctx, "login", func(ctx context.Context) (*domain.Identity, error) {
		return o.gw.Login(ctx, creds)
	})
}

// Signup registers a user; the backend logs the new user in.
func (o *Orchestrator) Signup(ctx context.Context, reg domain.Registration) (domain.Snapshot, error) {
	if err := validator.Validate(reg); err != nil {
		return domain.Snapshot{}, apperrors.InvalidInput(err.Error())
	}
	return o.authenticate(ctx, "signup", func(ctx context.Context) (*domain.Identity, error) {
		return o.gw.Signup(ctx, reg)
	})
}

func (o *Orchestrator) authenticate(ctx context.Context, via string, call func(context.Context) (*domain.Identity, error)) (snap domain.Snapshot, err error) {
	ctx = o.withSession(ctx)
	defer func() { identityTransitionsTotal.WithLabelValues(via, resultLabel(err)).Inc() }()

	id, err := call(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, via+" failed", slog.String("error", err.Error()))
		return domain.Snapshot{}, err
	}

	// The status endpoint carries the email the login reply omits.
	if status, serr := o.gw.GetSessionIdentity(ctx); serr == nil && status != nil {
		id = status
	}

	o.store.Apply(func(tx *store.Tx) bool {
		o.invalidateFetches()
		tx.SetIdentity(id)
		return true
	})
	ctx = logger.WithUsername(ctx, id.Username)
	o.seed(ctx)

	o.logger.InfoContext(ctx, "session authenticated", slog.String("via", via))
	o.publishIdentity(ctx, via, id)
	return o.store.Snapshot(), nil
}

// Logout ends the backend session and clears identity, cart and wishlist in
// one snapshot. Collection fetches still in flight are discarded.
func (o *Orchestrator) Logout(ctx context.Context) (snap domain.Snapshot, err error) {
	ctx = o.withSession(ctx)
	defer func() { identityTransitionsTotal.WithLabelValues("logout", resultLabel(err)).Inc() }()

	if err := o.gw.Logout(ctx); err != nil {
		o.logger.WarnContext(ctx, "logout failed", slog.String("error", err.Error()))
		return domain.Snapshot{}, err
	}

	snap, _ = o.store.Apply(func(tx *store.Tx) bool {
		o.invalidateFetches()
		tx.SetIdentity(nil)
		return true
	})

	o.logger.InfoContext(ctx, "session logged out")
	o.publishIdentity(ctx, "logout", nil)
	return snap, nil
}

// seed fetches cart and wishlist in parallel and installs whatever arrived
// in a single snapshot. A failed fetch leaves its collection as it was.
func (o *Orchestrator) seed(ctx context.Context) {
	cartToken, wishToken := o.issue(CollectionCart), o.issue(CollectionWishlist)

	var (
		lines            []domain.CartLine
		list             []domain.Product
		cartErr, wishErr error
		g                errgroup.Group
	)
	g.Go(func() error {
		lines, cartErr = o.gw.GetCart(ctx)
		return cartErr
	})
	g.Go(func() error {
		list, wishErr = o.gw.GetWishlist(ctx)
		return wishErr
	})
	err := g.Wait()

	o.store.Apply(func(tx *store.Tx) bool {
		changed := false
		if cartErr == nil && o.acceptFetch(CollectionCart, cartToken) {
			changed = tx.SetCart(lines) || changed
		}
		if wishErr == nil && o.acceptFetch(CollectionWishlist, wishToken) {
			changed = tx.SetWishlist(list) || changed
		}
		return changed
	})

	if err != nil {
		o.logger.WarnContext(ctx, "collections partially seeded", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) publishIdentity(ctx context.Context, via string, id *domain.Identity) {
	data := event.IdentityChangedData{SessionID: o.sessionID, LoggedIn: id != nil, Via: via}
	if id != nil {
		data.Username = id.Username
	}
	if err := o.events.PublishIdentityChanged(ctx, data); err != nil {
		o.logger.WarnContext(ctx, "failed to publish identity event", slog.String("error", err.Error()))
	}
}
