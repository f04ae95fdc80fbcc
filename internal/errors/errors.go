// Package errors defines the typed error taxonomy surfaced by the platform.
// Every operation failure is terminal and maps onto one of a small set of
// codes with a matching HTTP status; raw storage errors never leak to callers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code identifies the class of a service error.
type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeForbidden    Code = "FORBIDDEN"
	CodeConflict     Code = "CONFLICT"
	CodeInvalidState Code = "INVALID_STATE"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeInternal     Code = "INTERNAL"
)

// ServiceError is a typed failure with a human-readable reason.
type ServiceError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches service errors by code so sentinel-style comparisons work.
func (e *ServiceError) Is(target error) bool {
	var t *ServiceError
	if !stderrors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDetails attaches a key/value pair for diagnostics and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NotFound reports an absent entity or one the caller may not see.
func NotFound(message string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// Forbidden reports an authenticated caller lacking authority for the action.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// Conflict reports a uniqueness violation, e.g. double delivery acceptance.
func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// InvalidState reports an operation that is not valid for the current
// lifecycle state of the target entity.
func InvalidState(message string) *ServiceError {
	return &ServiceError{Code: CodeInvalidState, Message: message, HTTPStatus: http.StatusBadRequest}
}

// InvalidInput reports a malformed or incomplete request payload.
func InvalidInput(message string) *ServiceError {
	return &ServiceError{Code: CodeInvalidInput, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized reports a missing or unverifiable identity.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// InvalidToken reports a token that failed verification.
func InvalidToken(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// RateLimitExceeded reports that the caller exhausted their request budget.
func RateLimitExceeded(limit int, window string) *ServiceError {
	e := &ServiceError{Code: CodeRateLimited, Message: "rate limit exceeded", HTTPStatus: http.StatusTooManyRequests}
	return e.WithDetails("limit", limit).WithDetails("window", window)
}

// Internal wraps an unexpected failure.
func Internal(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// GetServiceError extracts a *ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// IsNotFound reports whether err carries the NotFound code.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsForbidden reports whether err carries the Forbidden code.
func IsForbidden(err error) bool { return hasCode(err, CodeForbidden) }

// IsConflict reports whether err carries the Conflict code.
func IsConflict(err error) bool { return hasCode(err, CodeConflict) }

// IsInvalidState reports whether err carries the InvalidState code.
func IsInvalidState(err error) bool { return hasCode(err, CodeInvalidState) }

func hasCode(err error, code Code) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
