// Package resilience provides the circuit breaker, retry helper, and
// transient-error classification used around every external dependency
// (durable store, cache, time-series store, event bus, live broadcast).
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the lower-case state name used in logs, metrics and the
// admin API.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen is returned without calling the protected function while the
	// breaker is open.
	ErrOpen = errors.New("resilience: circuit open")
	// ErrTooManyRequests is returned when the half-open probe budget is used up.
	ErrTooManyRequests = errors.New("resilience: too many half-open requests")
)

// Settings configure a Breaker. Zero values are replaced with defaults in
// NewBreaker.
type Settings struct {
	Name             string
	FailureThreshold int           // consecutive failures that open the circuit (default 5)
	SuccessThreshold int           // consecutive half-open successes that close it (default 2)
	OpenTimeout      time.Duration // initial cool-down (default 10s)
	MaxOpenTimeout   time.Duration // cap for the doubled cool-down (default 8x OpenTimeout)
	HalfOpenMaxCalls int           // concurrent probes allowed in half-open (default 1)

	// IsFailure decides whether a non-nil error counts against the breaker;
	// errors it rejects count as neither success nor failure. Defaults to
	// every error except context.Canceled.
	IsFailure func(error) bool
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(name string, from, to State)
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Counts is a snapshot of the breaker's counters for the current state.
type Counts struct {
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
	Rejected             uint64 `json:"rejected"`
}

// Breaker is a concurrency-safe circuit breaker.
type Breaker struct {
	s Settings

	mu          sync.Mutex
	state       State
	generation  uint64
	counts      Counts
	openedAt    time.Time
	openTimeout time.Duration
	lastErr     error // what opened the circuit; nil while closed
	inFlight    int  // half-open probes currently running
	forced      bool // ForceOpen pins the state until ForceClose or Reset
}

// NewBreaker returns a closed breaker.
func NewBreaker(s Settings) *Breaker {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 2
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 10 * time.Second
	}
	if s.MaxOpenTimeout < s.OpenTimeout {
		s.MaxOpenTimeout = 8 * s.OpenTimeout
	}
	if s.HalfOpenMaxCalls <= 0 {
		s.HalfOpenMaxCalls = 1
	}
	if s.IsFailure == nil {
		s.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Breaker{s: s, openTimeout: s.OpenTimeout}
}

// State returns the current state, advancing Open to Half-Open when the
// cool-down has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	st := b.currentLocked()
	b.mu.Unlock()
	b.notify(st)
	return st.to
}

// Counts returns a snapshot of the counters.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Execute runs fn when the breaker admits the call and records the outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	gen, halfOpen, err := b.before()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			b.after(gen, halfOpen, errPanic)
			panic(r)
		}
	}()
	err = fn(ctx)
	b.after(gen, halfOpen, err)
	return err
}

// ExecuteWithFallback is Execute plus a fallback that receives the error of
// a rejected or failed call. A nil fallback behaves like Execute.
func (b *Breaker) ExecuteWithFallback(ctx context.Context, fn func(context.Context) error, fallback func(context.Context, error) error) error {
	err := b.Execute(ctx, fn)
	if err != nil && fallback != nil {
		return fallback(ctx, err)
	}
	return err
}

// ForceOpen opens the circuit and keeps it open until ForceClose or Reset.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	t := b.setStateLocked(StateOpen)
	b.forced = true
	b.lastErr = errForcedOpen
	b.mu.Unlock()
	b.notify(t)
}

// ForceClose closes the circuit and clears the counters. Cool-down growth is
// kept so a relapse still backs off.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	b.forced = false
	t := b.setStateLocked(StateClosed)
	b.counts = Counts{Rejected: b.counts.Rejected}
	b.mu.Unlock()
	b.notify(t)
}

// Reset returns the breaker to its initial closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.forced = false
	b.openTimeout = b.s.OpenTimeout
	t := b.setStateLocked(StateClosed)
	b.counts = Counts{}
	b.mu.Unlock()
	b.notify(t)
}

var (
	errPanic      = errors.New("resilience: panic in protected call")
	errForcedOpen = errors.New("resilience: forced open")
)

type transition struct {
	from, to State
	changed  bool
}

func (b *Breaker) notify(t transition) {
	if t.changed && b.s.OnStateChange != nil {
		b.s.OnStateChange(b.s.Name, t.from, t.to)
	}
}

func (b *Breaker) currentLocked() transition {
	if b.state == StateOpen && !b.forced && !b.s.Now().Before(b.openedAt.Add(b.openTimeout)) {
		return b.setStateLocked(StateHalfOpen)
	}
	return transition{from: b.state, to: b.state}
}

func (b *Breaker) setStateLocked(to State) transition {
	from := b.state
	if from == to {
		return transition{from: from, to: to}
	}
	b.state = to
	b.generation++
	rejected := b.counts.Rejected
	b.counts = Counts{Rejected: rejected}
	b.inFlight = 0
	switch to {
	case StateOpen:
		b.openedAt = b.s.Now()
	case StateClosed:
		b.lastErr = nil
		if from == StateHalfOpen {
			b.openTimeout = b.s.OpenTimeout
		}
	}
	return transition{from: from, to: to, changed: true}
}

func (b *Breaker) before() (uint64, bool, error) {
	b.mu.Lock()
	t := b.currentLocked()
	var err error
	switch b.state {
	case StateOpen:
		err = ErrOpen
	case StateHalfOpen:
		if b.inFlight >= b.s.HalfOpenMaxCalls {
			err = ErrTooManyRequests
		} else {
			b.inFlight++
		}
	}
	if err != nil {
		b.counts.Rejected++
	} else {
		b.counts.Requests++
	}
	gen, halfOpen := b.generation, b.state == StateHalfOpen
	b.mu.Unlock()
	b.notify(t)
	return gen, halfOpen, err
}

func (b *Breaker) after(gen uint64, halfOpen bool, err error) {
	b.mu.Lock()
	if gen != b.generation {
		// The state changed while the call was running; its outcome belongs
		// to a previous period.
		b.mu.Unlock()
		return
	}
	if halfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	var t transition
	switch {
	case err != nil && !b.s.IsFailure(err):
		// ignored errors leave the counters alone
	case err != nil:
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		switch {
		case b.state == StateHalfOpen:
			b.openTimeout *= 2
			if b.openTimeout > b.s.MaxOpenTimeout {
				b.openTimeout = b.s.MaxOpenTimeout
			}
			b.lastErr = err
			t = b.setStateLocked(StateOpen)
		case b.state == StateClosed && int(b.counts.ConsecutiveFailures) >= b.s.FailureThreshold:
			b.lastErr = err
			t = b.setStateLocked(StateOpen)
		}
	default:
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if b.state == StateHalfOpen && int(b.counts.ConsecutiveSuccesses) >= b.s.SuccessThreshold {
			t = b.setStateLocked(StateClosed)
		}
	}
	b.mu.Unlock()
	b.notify(t)
}
