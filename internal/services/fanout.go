package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackcurious/worldvibe-sub000/internal/observability"
	"github.com/stackcurious/worldvibe-sub000/internal/resilience"
)

// Branch is one fan-out destination. Breaker may be nil.
type Branch struct {
	Name    string
	Breaker *resilience.Breaker
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// BranchReport is the outcome of one branch.
type BranchReport struct {
	Name     string
	Err      error
	Duration time.Duration
	Done     bool // false when the group stopped waiting first
}

// Fanout runs branches concurrently on a context detached from the
// caller's cancellation. Each branch has its own timeout and breaker.
type Fanout struct {
	Timeout time.Duration // per-branch default (2s)
	MaxWait time.Duration // how long the reporter waits for all branches (default Timeout + 1s)
	Log     zerolog.Logger
}

// Flight is a dispatched fan-out.
type Flight struct {
	mu      sync.Mutex
	reports map[string]*BranchReport
	done    map[string]chan struct{}
	order   []string
	all     chan struct{}
}

// Go dispatches branches and returns immediately. One aggregated log event
// is written once every branch finished or MaxWait elapsed. fields adds
// context to that event.
func (f *Fanout) Go(ctx context.Context, fields map[string]string, branches ...Branch) *Flight {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	maxWait := f.MaxWait
	if maxWait <= 0 {
		maxWait = timeout + time.Second
	}

	detached := context.WithoutCancel(ctx)
	fl := &Flight{
		reports: make(map[string]*BranchReport, len(branches)),
		done:    make(map[string]chan struct{}, len(branches)),
		all:     make(chan struct{}),
	}
	var wg sync.WaitGroup
	for _, b := range branches {
		b := b
		if b.Timeout <= 0 {
			b.Timeout = timeout
		}
		fl.reports[b.Name] = &BranchReport{Name: b.Name}
		fl.done[b.Name] = make(chan struct{})
		fl.order = append(fl.order, b.Name)

		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := runBranch(detached, b)
			d := time.Since(start)
			observability.FanoutBranch(b.Name, d, err)

			fl.mu.Lock()
			r := fl.reports[b.Name]
			r.Err, r.Duration, r.Done = err, d, true
			fl.mu.Unlock()
			close(fl.done[b.Name])
		}()
	}
	go func() {
		wg.Wait()
		close(fl.all)
	}()
	go f.report(fl, maxWait, fields)
	return fl
}

func runBranch(ctx context.Context, b Branch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errBranchPanic
		}
	}()
	run := func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, b.Timeout)
		defer cancel()
		return b.Run(cctx)
	}
	if b.Breaker != nil {
		return b.Breaker.Execute(ctx, run)
	}
	return run(ctx)
}

var errBranchPanic = errors.New("fan-out branch panicked")

// Wait blocks until the named branch finished or d elapsed. It reports
// whether the branch finished in time and its error.
func (fl *Flight) Wait(name string, d time.Duration) (bool, error) {
	ch, ok := fl.done[name]
	if !ok {
		return false, nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		fl.mu.Lock()
		defer fl.mu.Unlock()
		return true, fl.reports[name].Err
	case <-t.C:
		return false, nil
	}
}

// Done is closed after every branch returned.
func (fl *Flight) Done() <-chan struct{} { return fl.all }

// Reports returns a snapshot in dispatch order.
func (fl *Flight) Reports() []BranchReport {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	out := make([]BranchReport, 0, len(fl.order))
	for _, n := range fl.order {
		out = append(out, *fl.reports[n])
	}
	return out
}

func (f *Fanout) report(fl *Flight, maxWait time.Duration, fields map[string]string) {
	t := time.NewTimer(maxWait)
	defer t.Stop()
	select {
	case <-fl.all:
	case <-t.C:
	}

	reports := fl.Reports()
	failed := 0
	branches := zerolog.Dict()
	for _, r := range reports {
		switch {
		case !r.Done:
			failed++
			branches.Str(r.Name, "pending")
		case r.Err != nil:
			failed++
			branches.Str(r.Name, r.Err.Error())
			observability.Degraded("fanout", r.Name)
		default:
			branches.Str(r.Name, "ok")
		}
	}

	ev := f.Log.Info()
	if failed > 0 {
		ev = f.Log.Warn().Bool("degraded", true)
	}
	for k, v := range fields {
		ev = ev.Str(k, v)
	}
	ev.Str("component", "fanout").
		Int("branches", len(reports)).
		Int("failed", failed).
		Dict("results", branches).
		Msg("check-in fan-out finished")
}
