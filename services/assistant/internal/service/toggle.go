package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
	"github.com/utafrali/shopassist/services/assistant/internal/event"
	"github.com/utafrali/shopassist/services/assistant/internal/store"
)

// ToggleOutcome reports a completed toggle.
type ToggleOutcome struct {
	Collection   Collection
	ProductID    string
	Added        bool
	DetailClosed bool
	Snapshot     domain.Snapshot
}

// ToggleCart adds productID to the cart if absent, removes it otherwise.
func (o *Orchestrator) ToggleCart(ctx context.Context, productID string) (ToggleOutcome, error) {
	return o.toggle(ctx, CollectionCart, productID)
}

// ToggleWishlist adds productID to the wishlist if absent, removes it otherwise.
func (o *Orchestrator) ToggleWishlist(ctx context.Context, productID string) (ToggleOutcome, error) {
	return o.toggle(ctx, CollectionWishlist, productID)
}

// toggle flips membership of productID in c. Toggles of the same product in
// the same collection run one at a time, so two toggles net to unchanged.
// On any failure the store is left as it was.
func (o *Orchestrator) toggle(ctx context.Context, c Collection, productID string) (out ToggleOutcome, err error) {
	ctx = o.withSession(ctx)
	defer func() { togglesTotal.WithLabelValues(string(c), resultLabel(err)).Inc() }()

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ToggleOutcome{}, apperrors.InvalidInput("product id is required")
	}

	identity := o.store.Identity()
	if identity == nil {
		return ToggleOutcome{}, apperrors.Unauthenticated(fmt.Sprintf("please log in to use your %s", c))
	}

	unlock := o.toggles.Lock(string(c) + "/" + productID)
	defer unlock()

	flags := o.store.ComputeFlags(productID)
	desired := !flags.InWishlist
	if c == CollectionCart {
		desired = !flags.InCart
	}

	ids, err := o.mutate(ctx, c, productID, desired)
	if err != nil {
		o.logger.WarnContext(ctx, "toggle failed",
			slog.String("collection", string(c)),
			slog.String("product_id", productID),
			slog.Bool("desired", desired),
			slog.String("error", err.Error()),
		)
		return ToggleOutcome{}, err
	}

	token := o.issue(c)
	refetch, err := o.fetchCollection(ctx, c)
	if err != nil {
		o.logger.WarnContext(ctx, "refetch after toggle failed",
			slog.String("collection", string(c)),
			slog.String("error", err.Error()),
		)
		return ToggleOutcome{}, err
	}

	closeDetail := false
	snap, _ := o.store.Apply(func(tx *store.Tx) bool {
		changed := false
		if o.acceptFetch(c, token) {
			changed = refetch(tx)
		}
		if c == CollectionCart && desired {
			if d := tx.Detail(); d != nil && d.ID == productID {
				tx.SetDetail(nil)
				closeDetail = true
				changed = true
			}
		}
		return changed
	})

	o.logger.InfoContext(ctx, "toggle applied",
		slog.String("collection", string(c)),
		slog.String("product_id", productID),
		slog.Bool("added", desired),
		slog.Int("server_members", len(ids)),
	)

	if perr := o.events.PublishCollectionToggled(ctx, event.CollectionToggledData{
		SessionID:  o.sessionID,
		Username:   identity.Username,
		Collection: string(c),
		ProductID:  productID,
		Added:      desired,
		Size:       len(ids),
	}); perr != nil {
		o.logger.WarnContext(ctx, "failed to publish toggle event", slog.String("error", perr.Error()))
	}

	return ToggleOutcome{
		Collection:   c,
		ProductID:    productID,
		Added:        desired,
		DetailClosed: closeDetail,
		Snapshot:     snap,
	}, nil
}

func (o *Orchestrator) mutate(ctx context.Context, c Collection, productID string, desired bool) ([]string, error) {
	if c == CollectionCart {
		return o.gw.MutateCart(ctx, productID, desired)
	}
	return o.gw.MutateWishlist(ctx, productID, desired)
}

// fetchCollection reads the authoritative collection and returns a function
// that installs it into a transaction.
func (o *Orchestrator) fetchCollection(ctx context.Context, c Collection) (func(tx *store.Tx) bool, error) {
	if c == CollectionCart {
		lines, err := o.gw.GetCart(ctx)
		if err != nil {
			return nil, err
		}
		return func(tx *store.Tx) bool { return tx.SetCart(lines) }, nil
	}

	list, err := o.gw.GetWishlist(ctx)
	if err != nil {
		return nil, err
	}
	return func(tx *store.Tx) bool { return tx.SetWishlist(list) }, nil
}
