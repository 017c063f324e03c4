package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
)

var (
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_searches_total",
			Help: "Searches by payload shape and outcome (applied, empty, failed, superseded)",
		},
		[]string{"payload", "outcome"},
	)

	togglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_toggles_total",
			Help: "Cart and wishlist toggles by result",
		},
		[]string{"collection", "result"},
	)

	checkoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_checkouts_total",
			Help: "Checkout attempts by result",
		},
		[]string{"result"},
	)

	identityTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_identity_transitions_total",
			Help: "Login, signup and logout attempts by result",
		},
		[]string{"via", "result"},
	)
)

// resultLabel maps an error to a low-cardinality label.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperrors.KindOf(err))
}
