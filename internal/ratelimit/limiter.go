// Package ratelimit enforces one accepted check-in per identity per window.
//
// Reserve claims the slot with a single conditional write (SET NX with a TTL
// equal to the window), so two concurrent submissions for the same identity
// cannot both be allowed while the store is healthy. The orchestrator
// Commits the reservation after the durable write or Releases it when the
// write fails. When the store is unreachable the limiter falls back to a
// bounded in-process cache with the same window semantics, and when that is
// unusable too it fails open.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/stackcurious/worldvibe-sub000/internal/observability"
	"github.com/stackcurious/worldvibe-sub000/internal/resilience"
)

// Store is the part of the cache the limiter uses.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Decision is the outcome of Reserve or Check.
type Decision struct {
	Allowed       bool      `json:"allowed"`
	NextAllowedAt time.Time `json:"next_allowed_at,omitempty"`
	// Degraded is true when the decision was not made by the durable store.
	Degraded bool `json:"degraded"`
}

// Record is the stored value for an identity.
type Record struct {
	Count       int   `json:"count"`
	WindowStart int64 `json:"window_start"` // unix seconds
}

func (r Record) start() time.Time { return time.Unix(r.WindowStart, 0).UTC() }

// Key returns the cache key for identity.
func Key(identity string) string { return "ratelimit:" + identity }

// Limiter implements the one-per-window policy.
type Limiter struct {
	Store   Store
	Breaker *resilience.Breaker
	Window  time.Duration
	Timeout time.Duration
	Log     zerolog.Logger
	Now     func() time.Time

	mu       sync.Mutex // guards check-and-add on fallback
	fallback *expirable.LRU[string, Record]
}

// Options configures New.
type Options struct {
	Window       time.Duration // default 24h
	Timeout      time.Duration // per store call, default 500ms
	FallbackSize int           // default 10,000; negative disables the fallback
}

// New returns a Limiter over store. br may be nil.
func New(store Store, br *resilience.Breaker, opts Options, log zerolog.Logger) *Limiter {
	if opts.Window <= 0 {
		opts.Window = 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 500 * time.Millisecond
	}
	if opts.FallbackSize == 0 {
		opts.FallbackSize = 10000
	}
	l := &Limiter{
		Store:   store,
		Breaker: br,
		Window:  opts.Window,
		Timeout: opts.Timeout,
		Log:     log,
		Now:     time.Now,
	}
	if opts.FallbackSize > 0 {
		l.fallback = expirable.NewLRU[string, Record](opts.FallbackSize, nil, opts.Window)
	}
	return l
}

func (l *Limiter) now() time.Time {
	if l.Now == nil {
		return time.Now()
	}
	return l.Now()
}

// call runs op against the store with the per-call timeout, through the
// breaker when one is configured.
func (l *Limiter) call(ctx context.Context, op func(ctx context.Context) error) error {
	return l.callOr(ctx, op, nil)
}

// callOr is call with a fallback that receives the error of a rejected or
// failed store call, including a missing store.
func (l *Limiter) callOr(ctx context.Context, op func(ctx context.Context) error, fallback func(context.Context, error) error) error {
	if l.Store == nil {
		if fallback != nil {
			return fallback(ctx, errNoStore)
		}
		return errNoStore
	}
	run := func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, l.Timeout)
		defer cancel()
		return op(cctx)
	}
	if l.Breaker != nil {
		return l.Breaker.ExecuteWithFallback(ctx, run, fallback)
	}
	if err := run(ctx); err != nil {
		if fallback != nil {
			return fallback(ctx, err)
		}
		return err
	}
	return nil
}

var errNoStore = errors.New("ratelimit: no store configured")

// Reserve atomically claims identity's slot for the current window. When
// the store cannot answer the in-process fallback decides.
func (l *Limiter) Reserve(ctx context.Context, identity string) Decision {
	now := l.now()
	payload, _ := json.Marshal(Record{Count: 1, WindowStart: now.Unix()})

	var (
		claimed  bool
		fellBack bool
		dec      Decision
	)
	claim := func(ctx context.Context) error {
		var err error
		claimed, err = l.Store.SetNX(ctx, Key(identity), string(payload), l.Window)
		return err
	}
	local := func(_ context.Context, cause error) error {
		fellBack = true
		dec = l.reserveFallback(identity, now, cause)
		return nil
	}

	_ = l.callOr(ctx, claim, local)
	if fellBack {
		return dec
	}
	if claimed {
		return Decision{Allowed: true}
	}

	rec, found, err := l.read(ctx, identity)
	switch {
	case err != nil:
		// The slot is held but unreadable; deny with a conservative estimate.
		return Decision{NextAllowedAt: now.Add(l.Window)}
	case !found:
		// Expired between the two calls; one more claim attempt.
		_ = l.callOr(ctx, claim, local)
		if fellBack {
			return dec
		}
		if claimed {
			return Decision{Allowed: true}
		}
		return Decision{NextAllowedAt: now.Add(l.Window)}
	default:
		return Decision{NextAllowedAt: rec.start().Add(l.Window)}
	}
}

// Commit rewrites identity's record with the real acceptance time and
// refreshes its TTL. Failures are logged; the reservation already holds
// the slot.
func (l *Limiter) Commit(ctx context.Context, identity string, acceptedAt time.Time) {
	rec := Record{Count: 1, WindowStart: acceptedAt.Unix()}
	l.rememberFallback(identity, rec)

	ttl := acceptedAt.Add(l.Window).Sub(l.now())
	if ttl <= 0 {
		return
	}
	payload, _ := json.Marshal(rec)
	err := l.call(ctx, func(ctx context.Context) error {
		return l.Store.Set(ctx, Key(identity), string(payload), ttl)
	})
	if err != nil {
		l.degraded(identity, "commit", err)
	}
}

// Release drops a reservation whose check-in was never persisted.
func (l *Limiter) Release(ctx context.Context, identity string) {
	if l.fallback != nil {
		l.mu.Lock()
		l.fallback.Remove(identity)
		l.mu.Unlock()
	}
	err := l.call(ctx, func(ctx context.Context) error {
		return l.Store.Delete(ctx, Key(identity))
	})
	if err != nil {
		l.degraded(identity, "release", err)
	}
}

// Check reports whether identity could submit now without reserving.
func (l *Limiter) Check(ctx context.Context, identity string) Decision {
	rec, found, err := l.read(ctx, identity)
	if err != nil {
		if l.fallback == nil {
			return Decision{Allowed: true, Degraded: true}
		}
		l.mu.Lock()
		rec, found = l.fallback.Get(identity)
		l.mu.Unlock()
		if found && l.now().Before(rec.start().Add(l.Window)) {
			return Decision{NextAllowedAt: rec.start().Add(l.Window), Degraded: true}
		}
		return Decision{Allowed: true, Degraded: true}
	}
	if !found {
		return Decision{Allowed: true}
	}
	next := rec.start().Add(l.Window)
	if !l.now().Before(next) {
		return Decision{Allowed: true}
	}
	return Decision{NextAllowedAt: next}
}

func (l *Limiter) read(ctx context.Context, identity string) (Record, bool, error) {
	var (
		raw   string
		found bool
	)
	err := l.call(ctx, func(ctx context.Context) error {
		var err error
		raw, found, err = l.Store.Get(ctx, Key(identity))
		return err
	})
	if err != nil || !found {
		return Record{}, false, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (l *Limiter) reserveFallback(identity string, now time.Time, cause error) Decision {
	if l.fallback == nil {
		l.Log.Warn().Err(cause).
			Bool("degraded", true).
			Str("component", "ratelimit").
			Str("mode", "fail-open").
			Str("identity", observability.Fingerprint(identity)).
			Msg("rate limit store and fallback unavailable; allowing")
		observability.Degraded("ratelimit", "fail-open")
		return Decision{Allowed: true, Degraded: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.degraded(identity, "fallback", cause)
	if rec, ok := l.fallback.Get(identity); ok {
		if next := rec.start().Add(l.Window); now.Before(next) {
			return Decision{NextAllowedAt: next, Degraded: true}
		}
	}
	l.fallback.Add(identity, Record{Count: 1, WindowStart: now.Unix()})
	return Decision{Allowed: true, Degraded: true}
}

func (l *Limiter) rememberFallback(identity string, rec Record) {
	if l.fallback == nil {
		return
	}
	l.mu.Lock()
	l.fallback.Add(identity, rec)
	l.mu.Unlock()
}

func (l *Limiter) degraded(identity, op string, err error) {
	l.Log.Warn().Err(err).
		Bool("degraded", true).
		Str("component", "ratelimit").
		Str("op", op).
		Str("identity", observability.Fingerprint(identity)).
		Msg("rate limit store call failed")
	observability.Degraded("ratelimit", op)
}

// Len returns the number of entries in the in-process fallback.
func (l *Limiter) Len() int {
	if l.fallback == nil {
		return 0
	}
	return l.fallback.Len()
}
