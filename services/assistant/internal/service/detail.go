package service

import (
	"context"
	"log/slog"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
)

// OpenDetail shows productID in the detail view. The product must be in one
// of the session's collections. For a logged-in user the product's category
// and first color are sent as preference signals; those calls are
// best-effort.
func (o *Orchestrator) OpenDetail(ctx context.Context, productID string) (domain.Snapshot, error) {
	ctx = o.withSession(ctx)

	p, ok := o.store.Resolve(productID)
	if !ok {
		return domain.Snapshot{}, apperrors.NotFound("product", productID)
	}
	snap := o.store.SetDetail(&p)

	if snap.LoggedIn() {
		o.sendPreferences(ctx, p)
	}
	return snap, nil
}

// CloseDetail hides the detail view.
func (o *Orchestrator) CloseDetail() domain.Snapshot {
	return o.store.SetDetail(nil)
}

func (o *Orchestrator) sendPreferences(ctx context.Context, p domain.Product) {
	var prefs []domain.Preference
	if p.Category != "" {
		prefs = append(prefs, domain.Preference{Action: domain.PreferenceInteractedCategory, Value: p.Category})
	}
	if len(p.ColorTags) > 0 {
		prefs = append(prefs, domain.Preference{Action: domain.PreferenceLikedColor, Value: p.ColorTags[0]})
	}

	for _, pref := range prefs {
		if err := o.gw.UpdatePreference(ctx, pref); err != nil {
			o.logger.WarnContext(ctx, "preference update failed",
				slog.String("action", pref.Action),
				slog.String("error", err.Error()),
			)
		}
	}
}
