package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"
)

// transient is implemented by errors that know whether they are retryable.
type transient interface {
	Transient() bool
}

// IsTransient reports whether err is worth retrying: timeouts, dropped or
// refused connections, lock contention in SQLite, serialization failures in
// Postgres, and breaker rejections. Everything else is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrOpen) ||
		errors.Is(err, ErrTooManyRequests) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return strings.HasPrefix(code, "08") || // connection exception
			code == "40001" || // serialization_failure
			code == "40P01" || // deadlock_detected
			code == "57P03" // cannot_connect_now
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
