// Package pat provides a Go client for the Pat conversation API.
package pat

import (
	"errors"
	"fmt"
)

// Error represents an error from the Pat API with the HTTP status code and
// the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pat: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401
	}
	return false
}

// IsForbidden returns true if the error is a 403.
func IsForbidden(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 403
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 429
	}
	return false
}

// IsUpstream returns true if the error is a 502 (the nutrition resolver or
// completion provider failed).
func IsUpstream(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 502
	}
	return false
}
