package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType defines the type of error
type ErrorType string

const (
	// ErrorTypeInvalidArgument represents malformed input: empty message
	// bodies, missing identities, unknown topics
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"

	// ErrorTypeNotFound represents a missing record
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypePersistence represents a durable store failure; propagated
	// to the caller, never retried internally
	ErrorTypePersistence ErrorType = "persistence"

	// ErrorTypeDelivery represents a best-effort transport send failure;
	// handled locally, never surfaced to the original caller
	ErrorTypeDelivery ErrorType = "delivery"

	// ErrorTypeListener represents a subscriber that panicked while
	// handling a published event; isolated per listener
	ErrorTypeListener ErrorType = "listener"

	// ErrorTypeInternal represents an unexpected internal error
	ErrorTypeInternal ErrorType = "internal"
)

// APIError represents a standardized error across the delivery core
type APIError struct {
	Type     ErrorType `json:"type"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Details  any       `json:"details,omitempty"`
	HTTPCode int       `json:"-"` // Not serialized
	cause    error
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As
func (e *APIError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

// WithCause records the underlying error
func (e *APIError) WithCause(err error) *APIError {
	e.cause = err
	return e
}

// InvalidArgument creates a new invalid argument error
func InvalidArgument(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypeInvalidArgument,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
	}
}

// NotFound creates a new not found error
func NotFound(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypeNotFound,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusNotFound,
	}
}

// Persistence creates a new persistence failure
func Persistence(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypePersistence,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusServiceUnavailable,
	}
}

// Delivery creates a new delivery failure
func Delivery(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypeDelivery,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusBadGateway,
	}
}

// Listener creates a new listener failure
func Listener(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypeListener,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
	}
}

// Internal creates a new internal error
func Internal(code string, message string) *APIError {
	return &APIError{
		Type:     ErrorTypeInternal,
		Code:     code,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
	}
}

// IsType reports whether err is an APIError of the given type
func IsType(err error, t ErrorType) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type == t
	}
	return false
}

// FromError creates a new API error from a Go error
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	// Default to an internal error
	return Internal("internal_error", err.Error()).WithCause(err)
}
