// Package retry wraps transient external-call failures with capped
// exponential backoff. Only errors explicitly marked transient are retried;
// contract violations (bad response shapes, invalid input) fail immediately.
package retry

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultTries is the total number of attempts, not the number of retries.
	DefaultTries = 3
	// DefaultBase is the delay before the second attempt; it doubles each time.
	DefaultBase = 600 * time.Millisecond
)

// transientError marks an error as retriable.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retriable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) was marked with
// Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Do runs fn up to tries times, sleeping base between attempts and doubling
// the delay after each failure. Non-transient errors and context cancellation
// stop immediately; exhausting all attempts returns the last error.
func Do(ctx context.Context, tries int, base time.Duration, fn func(ctx context.Context) error) error {
	if tries <= 0 {
		tries = DefaultTries
	}
	if base <= 0 {
		base = DefaultBase
	}

	var err error
	for attempt := 0; attempt < tries; attempt++ {
		err = fn(ctx)
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == tries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(base):
		}
		base *= 2
	}
	return err
}
