// Package services defines the check-in business logic. This file
// centralizes the service-level errors so that they can be consistently
// returned by service methods and checked by callers with errors.Is/As.
//
// Translation into HTTP status codes is performed at the handler layer.
package services

import (
	"errors"
	"fmt"
	"time"
)

// ErrStoreUnavailable is returned when the durable store fails its liveness
// probe before a commit is attempted.
var ErrStoreUnavailable = errors.New("durable store unavailable")

// ErrCheckInNotFound is returned when an idempotent replay points at a
// check-in that no longer exists.
var ErrCheckInNotFound = errors.New("check-in not found")

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitedError is returned when the identity already has an accepted
// check-in in the current window.
type RateLimitedError struct {
	NextAllowedAt time.Time
}

func (e *RateLimitedError) Error() string {
	return "rate limited until " + e.NextAllowedAt.UTC().Format(time.RFC3339)
}

// RetryAfter returns the wait until NextAllowedAt, at least one second.
func (e *RateLimitedError) RetryAfter(now time.Time) time.Duration {
	d := e.NextAllowedAt.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}

// PersistenceError wraps a failed durable commit. Transient failures are
// worth retrying by the client.
type PersistenceError struct {
	Transient bool
	Err       error
}

func (e *PersistenceError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("persist check-in (%s): %v", kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
