// Package errors defines the assistant's error taxonomy. Every failure that
// reaches a caller is one of a handful of kinds, each backed by a sentinel so
// errors.Is works through any amount of wrapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrUnreachable    = errors.New("backend unreachable")
	ErrServer         = errors.New("backend server error")
)

// Kind classifies an error into the assistant's failure taxonomy.
type Kind string

const (
	KindNone               Kind = ""
	KindUnauthenticated    Kind = "unauthenticated"
	KindValidationRejected Kind = "validation_rejected"
	KindUnreachable        Kind = "unreachable"
	KindServerError        Kind = "server_error"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// sentinels maps each sentinel to its kind and the status used when a bare
// sentinel, not an AppError, reaches the HTTP layer. Order matters: the first
// match wins.
var sentinels = []struct {
	err    error
	kind   Kind
	status int
}{
	{ErrUnauthorized, KindUnauthenticated, http.StatusUnauthorized},
	{ErrInvalidInput, KindValidationRejected, http.StatusBadRequest},
	{ErrUnreachable, KindUnreachable, http.StatusBadGateway},
	{ErrServiceUnavail, KindUnreachable, http.StatusServiceUnavailable},
	{ErrServer, KindServerError, http.StatusBadGateway},
	{ErrNotFound, KindNotFound, http.StatusNotFound},
}

// AppError is an error with a stable code, a caller-facing message and the
// HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newError(code string, status int, cause error, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: cause}
}

func NotFound(resource, id string) *AppError {
	return newError("NOT_FOUND", http.StatusNotFound, ErrNotFound,
		fmt.Sprintf("%s with id %s not found", resource, id))
}

// InvalidInput is input the assistant rejects without asking the backend.
func InvalidInput(message string) *AppError {
	return newError("INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput, message)
}

// ValidationRejected is a payload the backend declined. The backend's message
// is kept verbatim; statuses outside 4xx become 422.
func ValidationRejected(status int, message string) *AppError {
	if status < 400 || status >= 500 {
		status = http.StatusUnprocessableEntity
	}
	return newError("VALIDATION_REJECTED", status, ErrInvalidInput, message)
}

func Unauthenticated(message string) *AppError {
	return newError("UNAUTHENTICATED", http.StatusUnauthorized, ErrUnauthorized, message)
}

// Unreachable is a transport failure. The cause stays in the chain for logs
// and errors.Is but is never shown to callers.
func Unreachable(cause error) *AppError {
	return newError("UNREACHABLE", http.StatusBadGateway, errors.Join(ErrUnreachable, cause),
		"the recommendation service is unreachable")
}

// ServerError carries the backend's own message for a 5xx response.
func ServerError(status int, message string) *AppError {
	if message == "" {
		message = fmt.Sprintf("backend responded with status %d", status)
	}
	return newError("SERVER_ERROR", http.StatusBadGateway, ErrServer, message)
}

// ServiceUnavailable is the assistant itself refusing work, such as when it
// is shutting down or at its session limit. Backend replies never use it.
func ServiceUnavailable(message string) *AppError {
	return newError("SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail, message)
}

func Internal(err error) *AppError {
	return newError("INTERNAL_ERROR", http.StatusInternalServerError, err, "an internal error occurred")
}

// KindOf reports the taxonomy kind of err. A nil error has KindNone and
// anything unrecognised is KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindInternal
}

// Message returns the caller-facing message of err.
func Message(err error) string {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr.Message
	case err == nil:
		return ""
	}
	return err.Error()
}

// HTTPStatus returns the status err should be reported with.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}
