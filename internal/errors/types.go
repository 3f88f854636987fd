package errors

import (
	"fmt"
	"net/http"
)

// APIError is the single error currency of the HTTP surface. Every
// failure that reaches a client is one of these, rendered as
// {"error":{"code":..., "message":...}}.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.HTTPStatus, e.Message)
}

func New(httpStatus int, code, message string) *APIError {
	return &APIError{HTTPStatus: httpStatus, Code: code, Message: message}
}

func Unauthorized(message string) *APIError {
	return New(http.StatusUnauthorized, "authentication_error", message)
}

func BadRequest(message string) *APIError {
	return New(http.StatusBadRequest, "bad_request", message)
}

func NotFound(message string) *APIError {
	return New(http.StatusNotFound, "not_found", message)
}

func Conflict(message string) *APIError {
	return New(http.StatusConflict, "conflict", message)
}

// ServiceUnavailable covers transport failures that persisted through
// the per-credential retry budget; relayed to the client as 502.
func ServiceUnavailable(message string) *APIError {
	return New(http.StatusBadGateway, "service_unavailable", message)
}

// AllCredentialsFailed is returned when the rotation loop ran out of
// credentials without a single upstream success.
func AllCredentialsFailed() *APIError {
	return New(http.StatusServiceUnavailable, "service_unavailable",
		"All available API keys have failed. Please check key validity or add new keys.")
}

func Internal(message string) *APIError {
	return New(http.StatusInternalServerError, "internal_server_error", message)
}
