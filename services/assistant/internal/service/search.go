package service

import (
	"context"
	"log/slog"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/services/assistant/internal/domain"
	"github.com/utafrali/shopassist/services/assistant/internal/event"
	"github.com/utafrali/shopassist/services/assistant/internal/searchctx"
	"github.com/utafrali/shopassist/services/assistant/internal/store"
)

// SearchRequest is a prompt submission, optionally with a new anchor image.
type SearchRequest struct {
	Prompt string
	Image  *domain.ImageUpload
}

// SearchOutcome reports what happened to a search. A superseded search had
// its response discarded; an applied search with no products is Empty, which
// is not an error.
type SearchOutcome struct {
	Token      uint64
	Payload    searchctx.Payload
	Applied    bool
	Superseded bool
	Empty      bool
	Snapshot   domain.Snapshot
}

// Search plans and runs a query. A failed query that is still the latest
// clears the recommendations, records a Failed insight, and returns the
// error. A superseded response, success or failure, returns no error.
func (o *Orchestrator) Search(ctx context.Context, req SearchRequest) (SearchOutcome, error) {
	ctx = o.withSession(ctx)

	if req.Image != nil {
		if err := req.Image.Validate(); err != nil {
			return SearchOutcome{}, err
		}
	}

	plan := o.search.Plan(req.Image, req.Prompt)
	if plan.Payload == searchctx.PayloadNone {
		return SearchOutcome{}, apperrors.InvalidInput("enter a prompt or upload an image")
	}
	return o.run(ctx, plan, plan.Prompt)
}

// ClearPrompt drops any anchor image and reloads the default recommendations.
func (o *Orchestrator) ClearPrompt(ctx context.Context) (SearchOutcome, error) {
	ctx = o.withSession(ctx)

	plan := o.search.Reset(domain.DefaultPrompt)
	return o.run(ctx, plan, "")
}

// run issues plan's query and applies the response only if no newer plan
// was made meanwhile. shown is the prompt recorded in
// the snapshot.
func (o *Orchestrator) run(ctx context.Context, plan searchctx.Plan, shown string) (SearchOutcome, error) {
	token := plan.Token
	out := SearchOutcome{Token: token, Payload: plan.Payload}

	var (
		res domain.SearchResult
		err error
	)
	switch plan.Payload {
	case searchctx.PayloadImage:
		res, err = o.gw.QueryByImage(ctx, *plan.Image, plan.Prompt)
	default:
		res, err = o.gw.QueryByText(ctx, plan.Prompt)
	}

	snap, applied := o.store.Apply(func(tx *store.Tx) bool {
		if !o.search.IsLatest(token) {
			return false
		}
		if err != nil {
			tx.ClearRecommendations()
			tx.SetInsight(domain.FailedInsight(apperrors.Message(err)), "")
			tx.SetSearchState(plan.Payload.Mode(), o.search.PreviewURL(), shown)
			return true
		}
		if plan.Payload == searchctx.PayloadImage {
			o.search.SetPreview(res.PreviewURL)
		}
		tx.ReplaceRecommendations(res.Recommendations)
		tx.SetInsight(res.Insight, res.ImageDescription)
		tx.SetSearchState(plan.Payload.Mode(), o.search.PreviewURL(), shown)
		return true
	})

	out.Applied = applied
	out.Superseded = !applied
	out.Snapshot = snap

	switch {
	case !applied:
		searchesTotal.WithLabelValues(plan.Payload.String(), "superseded").Inc()
		o.logger.DebugContext(ctx, "discarded superseded search response",
			slog.Uint64("token", token),
		)
		return out, nil
	case err != nil:
		searchesTotal.WithLabelValues(plan.Payload.String(), "failed").Inc()
		o.logger.WarnContext(ctx, "search failed",
			slog.String("payload", plan.Payload.String()),
			slog.String("kind", string(apperrors.KindOf(err))),
			slog.String("error", err.Error()),
		)
		o.publishSearch(ctx, token, plan, 0, domain.FailedInsight(""), err)
		return out, err
	}

	out.Empty = len(res.Recommendations) == 0
	outcome := "applied"
	if out.Empty {
		outcome = "empty"
	}
	searchesTotal.WithLabelValues(plan.Payload.String(), outcome).Inc()
	o.logger.InfoContext(ctx, "search applied",
		slog.String("payload", plan.Payload.String()),
		slog.Int("results", len(res.Recommendations)),
		slog.String("insight", string(res.Insight.Kind)),
	)
	o.publishSearch(ctx, token, plan, len(res.Recommendations), res.Insight, nil)
	return out, nil
}

func (o *Orchestrator) publishSearch(ctx context.Context, token uint64, plan searchctx.Plan, n int, in domain.Insight, err error) {
	data := event.SearchCompletedData{
		SessionID:   o.sessionID,
		Token:       token,
		Payload:     plan.Payload.String(),
		Prompt:      plan.Prompt,
		ResultCount: n,
		InsightKind: string(in.Kind),
	}
	if err != nil {
		data.ErrorKind = string(apperrors.KindOf(err))
	}
	if perr := o.events.PublishSearchCompleted(ctx, data); perr != nil {
		o.logger.WarnContext(ctx, "failed to publish search event", slog.String("error", perr.Error()))
	}
}
