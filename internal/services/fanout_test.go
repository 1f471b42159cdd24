package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackcurious/worldvibe-sub000/internal/resilience"
)

func TestFanout_RunsBranchesIndependently(t *testing.T) {
	f := &Fanout{Timeout: 50 * time.Millisecond, MaxWait: time.Second, Log: zerolog.Nop()}
	boom := errors.New("boom")
	var ran atomic.Int32

	fl := f.Go(context.Background(), nil,
		Branch{Name: "ok", Run: func(context.Context) error { ran.Add(1); return nil }},
		Branch{Name: "fails", Run: func(context.Context) error { ran.Add(1); return boom }},
		Branch{Name: "hangs", Run: func(ctx context.Context) error {
			ran.Add(1)
			<-ctx.Done()
			return ctx.Err()
		}},
		Branch{Name: "panics", Run: func(context.Context) error { ran.Add(1); panic("bad sink") }},
	)

	select {
	case <-fl.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("fan-out did not finish")
	}
	if ran.Load() != 4 {
		t.Fatalf("ran = %d, want 4", ran.Load())
	}

	got := map[string]error{}
	for _, r := range fl.Reports() {
		if !r.Done {
			t.Fatalf("branch %s not done", r.Name)
		}
		got[r.Name] = r.Err
	}
	if got["ok"] != nil || !errors.Is(got["fails"], boom) ||
		!errors.Is(got["hangs"], context.DeadlineExceeded) || !errors.Is(got["panics"], errBranchPanic) {
		t.Fatalf("reports = %v", got)
	}
}

func TestFanout_DetachedFromCallerCancellation(t *testing.T) {
	f := &Fanout{Timeout: time.Second, Log: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})

	fl := f.Go(ctx, map[string]string{"checkin_id": "c1"}, Branch{Name: "slow", Run: func(ctx context.Context) error {
		<-release
		return ctx.Err()
	}})
	cancel()
	close(release)

	done, err := fl.Wait("slow", 2*time.Second)
	if !done || err != nil {
		t.Fatalf("branch should survive caller cancel: done=%v err=%v", done, err)
	}
}

func TestFanout_WaitTimesOutAndUnknownBranch(t *testing.T) {
	f := &Fanout{Timeout: time.Second, Log: zerolog.Nop()}
	release := make(chan struct{})
	defer close(release)

	fl := f.Go(context.Background(), nil, Branch{Name: "slow", Run: func(context.Context) error {
		<-release
		return nil
	}})
	if done, _ := fl.Wait("slow", 10*time.Millisecond); done {
		t.Fatalf("Wait should time out")
	}
	if done, _ := fl.Wait("missing", time.Millisecond); done {
		t.Fatalf("unknown branch cannot be done")
	}
}

func TestFanout_BreakerPerBranch(t *testing.T) {
	reg := resilience.NewRegistry(resilience.Settings{FailureThreshold: 1, OpenTimeout: time.Hour})
	f := &Fanout{Timeout: time.Second, Log: zerolog.Nop()}
	boom := errors.New("down")

	run := func() map[string]error {
		fl := f.Go(context.Background(), nil,
			Branch{Name: "a", Breaker: reg.Get("a"), Run: func(context.Context) error { return boom }},
			Branch{Name: "b", Breaker: reg.Get("b"), Run: func(context.Context) error { return nil }},
		)
		<-fl.Done()
		out := map[string]error{}
		for _, r := range fl.Reports() {
			out[r.Name] = r.Err
		}
		return out
	}

	run()
	got := run()
	if !errors.Is(got["a"], resilience.ErrOpen) {
		t.Fatalf("branch a should be short-circuited, got %v", got["a"])
	}
	if got["b"] != nil || reg.Get("b").State() != resilience.StateClosed {
		t.Fatalf("branch b must be unaffected: %v", got["b"])
	}
}
