// Package httputil writes the JSON envelope every assistant endpoint uses:
// {"data": ...} on success and {"error": {...}} on failure.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
	"github.com/utafrali/shopassist/pkg/logger"
	"github.com/utafrali/shopassist/pkg/validator"
)

type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of the envelope. Kind is the taxonomy
// kind clients branch on; Code is finer grained.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Kind      apperrors.Kind    `json:"kind,omitempty"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// WriteError reports err in the envelope. Validation failures list their
// fields, AppErrors keep their code and message, and anything else is an
// internal error whose text is logged but never sent. The request logger in
// context is preferred over fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	status, body := describe(err)
	body.RequestID = logger.CorrelationIDFromContext(r.Context())

	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() {
			l = fallback
		}
		level, msg := slog.LevelWarn, "request failed"
		if body.Code == "INTERNAL_ERROR" {
			level, msg = slog.LevelError, "internal error"
		}
		l.LogAttrs(r.Context(), level, msg,
			slog.String("code", body.Code),
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{Error: &body})
}

func describe(err error) (int, ErrorResponse) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Kind:    apperrors.KindValidationRejected,
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		}
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Status, ErrorResponse{
			Code:    appErr.Code,
			Kind:    apperrors.KindOf(err),
			Message: appErr.Message,
		}
	}

	// A bare sentinel still carries a kind; anything else is internal.
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindInternal {
		return http.StatusInternalServerError, ErrorResponse{
			Code:    "INTERNAL_ERROR",
			Kind:    kind,
			Message: "an internal error occurred",
		}
	}
	return apperrors.HTTPStatus(err), ErrorResponse{
		Code:    strings.ToUpper(string(kind)),
		Kind:    kind,
		Message: apperrors.Message(err),
	}
}
