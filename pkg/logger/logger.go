// Package logger builds the service's JSON slog logger and carries
// request-scoped fields through context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	sessionIDKey
	usernameKey
	loggerKey
)

// contextFields lists the string values WithContext copies onto a logger,
// in output order.
var contextFields = []struct {
	key  ctxKey
	attr string
}{
	{correlationIDKey, "correlation_id"},
	{sessionIDKey, "session_id"},
	{usernameKey, "username"},
}

// New returns a JSON logger on stdout tagged with serviceName.
func New(serviceName, level string) *slog.Logger {
	return NewWithWriter(serviceName, level, os.Stdout)
}

// NewWithWriter is New writing to w. Debug level adds source locations.
func NewWithWriter(serviceName, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug})
	return slog.New(h).With(slog.String("service", serviceName))
}

// ParseLevel maps debug, warn/warning and error to their slog levels.
// Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func withString(ctx context.Context, key ctxKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func stringFrom(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithCorrelationID stores the request's correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return withString(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, correlationIDKey)
}

// WithSessionID stores the assistant session the work belongs to.
func WithSessionID(ctx context.Context, id string) context.Context {
	return withString(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the assistant session ID, or "".
func SessionIDFromContext(ctx context.Context) string {
	return stringFrom(ctx, sessionIDKey)
}

// WithUsername stores the signed-in username. Anonymous sessions leave it unset.
func WithUsername(ctx context.Context, name string) context.Context {
	return withString(ctx, usernameKey, name)
}

func UsernameFromContext(ctx context.Context) string {
	return stringFrom(ctx, usernameKey)
}

// NewContext stores l as the request logger.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the request logger, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext decorates l with the context's request fields and, when a span
// is active, its trace and span IDs.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	var attrs []any
	for _, f := range contextFields {
		if v := stringFrom(ctx, f.key); v != "" {
			attrs = append(attrs, slog.String(f.attr, v))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}
