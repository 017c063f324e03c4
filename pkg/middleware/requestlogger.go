package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/shopassist/pkg/logger"
)

// SessionHeader carries the assistant session ID for clients that prefer a
// header over the URL path.
const SessionHeader = "X-Session-ID"

// RequestLogger builds a request-scoped logger enriched with correlation_id,
// session_id, trace_id and span_id, and stores it in the request context.
// Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if id := r.Header.Get(SessionHeader); id != "" && logger.SessionIDFromContext(ctx) == "" {
				ctx = logger.WithSessionID(ctx, id)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
