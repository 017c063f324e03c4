package service

import (
	"context"
	"log/slog"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
	"github.com/utafrali/shopassist/services/assistant/internal/event"
	"github.com/utafrali/shopassist/services/assistant/internal/store"
)

// CheckoutOutcome is a placed order and the snapshot after the cart refresh.
type CheckoutOutcome struct {
	Receipt  domain.Receipt
	Snapshot domain.Snapshot
}

// Checkout places the cart as an order. An anonymous session or an empty
// cart is rejected without contacting the backend. After the order the cart
// is re-fetched; a failed refresh does not fail the checkout.
func (o *Orchestrator) Checkout(ctx context.Context) (out CheckoutOutcome, err error) {
	ctx = o.withSession(ctx)
	defer func() { checkoutsTotal.WithLabelValues(resultLabel(err)).Inc() }()

	identity := o.store.Identity()
	if identity == nil {
		return CheckoutOutcome{}, apperrors.Unauthenticated("please log in to check out")
	}

	cart := o.store.CartLines()
	if len(cart) == 0 {
		return CheckoutOutcome{}, apperrors.InvalidInput("your cart is empty")
	}

	lines := make([]domain.CheckoutLine, 0, len(cart))
	total := domain.Price{}
	count := 0
	for _, l := range cart {
		lines = append(lines, domain.CheckoutLine{ID: l.Product.ID, Name: l.Product.Name, Price: l.Product.Price})
		total = total.Add(l.Subtotal())
		count += l.Quantity
	}

	receipt, err := o.gw.Checkout(ctx, lines)
	if err != nil {
		o.logger.WarnContext(ctx, "checkout failed", slog.String("error", err.Error()))
		return CheckoutOutcome{}, err
	}
	o.logger.InfoContext(ctx, "checkout completed",
		slog.String("order_id", receipt.OrderID),
		slog.Int("items", count),
	)

	token := o.issue(CollectionCart)
	refetch, ferr := o.fetchCollection(ctx, CollectionCart)
	if ferr != nil {
		o.logger.WarnContext(ctx, "refetch after checkout failed", slog.String("error", ferr.Error()))
	} else {
		o.store.Apply(func(tx *store.Tx) bool {
			return o.acceptFetch(CollectionCart, token) && refetch(tx)
		})
	}

	if perr := o.events.PublishCheckoutCompleted(ctx, event.CheckoutCompletedData{
		SessionID: o.sessionID,
		Username:  identity.Username,
		OrderID:   receipt.OrderID,
		ItemCount: count,
		Total:     total.String(),
	}); perr != nil {
		o.logger.WarnContext(ctx, "failed to publish checkout event", slog.String("error", perr.Error()))
	}

	return CheckoutOutcome{Receipt: receipt, Snapshot: o.store.Snapshot()}, nil
}
