package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/shopassist/pkg/errors"
)

// maxErrorBody caps how much of an error body is read.
const maxErrorBody = 1 << 20

// errorBody accepts both error shapes seen on the wire:
//
//	{"error": "Prompt cannot be empty"}
//	{"error": {"code": "INVALID_INPUT", "message": "..."}}
//
// and falls back to a top-level "message".
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type structuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The backend's message is preserved verbatim. The
// response body is fully consumed and closed.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apperrors.ServerError(resp.StatusCode, "")
	}
	return ErrorFromBody(resp.StatusCode, body)
}

// ErrorFromBody maps a status code and raw error body to the error taxonomy.
func ErrorFromBody(status int, body []byte) error {
	message := extractMessage(body)

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		if message == "" {
			message = "authentication required"
		}
		return apperrors.Unauthenticated(message)
	case status >= 500:
		// The backend answered, so even a 503 is a server error, not an
		// unreachable backend.
		return apperrors.ServerError(status, message)
	case status >= 400:
		if message == "" {
			message = http.StatusText(status)
		}
		return apperrors.ValidationRejected(status, message)
	default:
		return apperrors.ServerError(status, message)
	}
}

func extractMessage(body []byte) string {
	var eb errorBody
	if json.Unmarshal(body, &eb) != nil {
		return strings.TrimSpace(string(body))
	}

	if len(eb.Error) > 0 {
		var text string
		if json.Unmarshal(eb.Error, &text) == nil && text != "" {
			return text
		}
		var se structuredError
		if json.Unmarshal(eb.Error, &se) == nil && se.Message != "" {
			return se.Message
		}
	}
	return eb.Message
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// Classify turns any error returned from Do into the error taxonomy.
// AppErrors pass through; everything else is a transport failure.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
		return apperrors.Unreachable(fmt.Errorf("circuit breaker: %w", err))
	}
	return apperrors.Unreachable(err)
}
