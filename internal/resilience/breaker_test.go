package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func newTestBreaker(clk *clock, transitions *[]string) *Breaker {
	return NewBreaker(Settings{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      time.Second,
		MaxOpenTimeout:   4 * time.Second,
		HalfOpenMaxCalls: 1,
		Now:              clk.Now,
		OnStateChange: func(_ string, from, to State) {
			if transitions != nil {
				*transitions = append(*transitions, from.String()+">"+to.String())
			}
		},
	})
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	b := newTestBreaker(clk, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = b.Execute(ctx, fail)
	}
	if b.State() != StateClosed {
		t.Fatalf("opened too early")
	}
	// a success resets the consecutive count
	_ = b.Execute(ctx, succeed)
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	if b.State() != StateClosed {
		t.Fatalf("success should reset the failure streak")
	}
	_ = b.Execute(ctx, fail)
	if b.State() != StateOpen {
		t.Fatalf("want open, got %v", b.State())
	}

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Fatalf("open breaker must reject without calling: err=%v called=%v", err, called)
	}
	if b.Counts().Rejected != 1 {
		t.Fatalf("rejected = %d", b.Counts().Rejected)
	}
}

func TestBreaker_HalfOpenRecoveryAndExponentialReopen(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	var tr []string
	b := newTestBreaker(clk, &tr)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	clk.Advance(time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("want half-open after cool-down, got %v", b.State())
	}

	// failed probe re-opens with a doubled cool-down
	_ = b.Execute(ctx, fail)
	if snap := b.Snapshot(); snap.State != "open" || snap.OpenTimeout != "2s" {
		t.Fatalf("snapshot = %+v", snap)
	}
	clk.Advance(time.Second)
	if b.State() != StateOpen {
		t.Fatalf("cool-down should be 2s now")
	}
	clk.Advance(time.Second)
	_ = b.Execute(ctx, fail)
	clk.Advance(4 * time.Second)
	_ = b.Execute(ctx, fail)
	if got := b.Snapshot().OpenTimeout; got != "4s" {
		t.Fatalf("cool-down must be capped at 4s, got %v", got)
	}

	clk.Advance(4 * time.Second)
	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("one success is below SuccessThreshold")
	}
	_ = b.Execute(ctx, succeed)
	if b.State() != StateClosed {
		t.Fatalf("want closed, got %v", b.State())
	}
	if got := b.Snapshot().OpenTimeout; got != "1s" {
		t.Fatalf("cool-down should reset on close, got %v", got)
	}
	if len(tr) == 0 || tr[0] != "closed>open" || tr[len(tr)-1] != "half-open>closed" {
		t.Fatalf("transitions = %v", tr)
	}
}

func TestBreaker_HalfOpenLimitsConcurrentProbes(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	b := newTestBreaker(clk, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	clk.Advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	if err := b.Execute(ctx, succeed); !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("want ErrTooManyRequests, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe err: %v", err)
	}
}

func TestBreaker_ForceOpenCloseReset(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	b := newTestBreaker(clk, nil)
	ctx := context.Background()

	b.ForceOpen()
	clk.Advance(time.Hour)
	if b.State() != StateOpen {
		t.Fatalf("forced open must not time out, got %v", b.State())
	}
	b.ForceClose()
	if b.State() != StateClosed {
		t.Fatalf("want closed")
	}
	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("closed call: %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	b.Reset()
	c := b.Counts()
	if b.State() != StateClosed || c.TotalFailures != 0 || c.Rejected != 0 {
		t.Fatalf("reset: state=%v counts=%+v", b.State(), c)
	}
}

func TestBreaker_FallbackAndCanceledIgnored(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	b := newTestBreaker(clk, nil)
	ctx := context.Background()

	err := b.ExecuteWithFallback(ctx, fail, func(_ context.Context, cause error) error {
		if !errors.Is(cause, errBoom) {
			t.Fatalf("fallback cause = %v", cause)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("fallback should absorb error, got %v", err)
	}

	for i := 0; i < 10; i++ {
		_ = b.Execute(ctx, func(context.Context) error { return context.Canceled })
	}
	if b.State() != StateClosed {
		t.Fatalf("caller cancellation must not trip the breaker")
	}
}

func TestBreaker_ConcurrentUse(t *testing.T) {
	b := NewBreaker(Settings{Name: "c", FailureThreshold: 1000})
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = b.Execute(ctx, fail)
			} else {
				_ = b.Execute(ctx, succeed)
			}
		}(i)
	}
	wg.Wait()
	c := b.Counts()
	if c.TotalFailures+c.TotalSuccesses != 50 {
		t.Fatalf("counts = %+v", c)
	}
}

func TestRegistry_GetAndSnapshots(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 1})
	a := r.Get("timeseries")
	if r.Get("timeseries") != a {
		t.Fatalf("Get must return the same breaker")
	}
	_ = r.Get("events").Execute(context.Background(), fail)

	if _, ok := r.Lookup("missing"); ok {
		t.Fatalf("Lookup should not create")
	}
	snaps := r.Snapshots()
	if len(snaps) != 2 || snaps[0].Name != "events" || snaps[0].State != "open" || snaps[1].State != "closed" {
		t.Fatalf("snapshots = %+v", snaps)
	}
}

func TestBreaker_SnapshotRecordsCauseAndRetryTime(t *testing.T) {
	clk := &clock{t: time.Unix(100, 0)}
	b := newTestBreaker(clk, nil)
	ctx := context.Background()

	if snap := b.Snapshot(); snap.LastError != "" || snap.RetryAt != nil {
		t.Fatalf("closed breaker snapshot = %+v", snap)
	}
	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, fail)
	}
	snap := b.Snapshot()
	if snap.State != "open" || snap.LastError != errBoom.Error() {
		t.Fatalf("open snapshot = %+v", snap)
	}
	if snap.RetryAt == nil || !snap.RetryAt.Equal(time.Unix(101, 0)) {
		t.Fatalf("retry_at = %v, want opened-at plus the 1s cool-down", snap.RetryAt)
	}

	// A failed half-open call doubles the cool-down and reschedules the retry.
	clk.Advance(time.Second)
	_ = b.Execute(ctx, func(context.Context) error { return errors.New("still down") })
	snap = b.Snapshot()
	if snap.LastError != "still down" || snap.RetryAt == nil || !snap.RetryAt.Equal(time.Unix(103, 0)) {
		t.Fatalf("reopened snapshot = %+v", snap)
	}

	b.ForceOpen()
	if snap := b.Snapshot(); snap.LastError != errForcedOpen.Error() || snap.RetryAt != nil {
		t.Fatalf("forced snapshot = %+v", snap)
	}
	b.Reset()
	if snap := b.Snapshot(); snap.State != "closed" || snap.LastError != "" || snap.RetryAt != nil {
		t.Fatalf("reset snapshot = %+v", snap)
	}
}
