package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
	"github.com/stackcurious/worldvibe-sub000/internal/observability"
	"github.com/stackcurious/worldvibe-sub000/internal/resilience"
)

// BatcherOptions tunes a Batcher. Zero values take the defaults.
type BatcherOptions struct {
	MaxBatch      int           // flush when this many points are buffered (default 100)
	MaxBuffered   int           // points beyond this are dropped (default 10000)
	FlushInterval time.Duration // periodic flush (default 2s)
	WriteTimeout  time.Duration // per flush (default 5s)

	// Breaker, when set, guards every Sink.Write. While it is open Add
	// rejects points instead of buffering them.
	Breaker *resilience.Breaker
}

// Batcher buffers points in memory and writes them to a Sink in batches.
// Add never blocks on the sink: when the buffer is full the point is
// dropped and counted.
type Batcher struct {
	sink Sink
	opts BatcherOptions
	log  zerolog.Logger

	mu     sync.Mutex
	buf    []domain.CheckInPoint
	closed bool

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewBatcher starts the background flusher. Call Close to stop it.
func NewBatcher(sink Sink, opts BatcherOptions, log zerolog.Logger) *Batcher {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 100
	}
	if opts.MaxBuffered <= 0 {
		opts.MaxBuffered = 10000
	}
	if opts.MaxBuffered < opts.MaxBatch {
		opts.MaxBuffered = opts.MaxBatch
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	b := &Batcher{
		sink: sink,
		opts: opts,
		log:  log,
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Add buffers p. It returns ErrClosed after Close and an error wrapping
// resilience.ErrOpen while the sink breaker is open.
func (b *Batcher) Add(_ context.Context, p domain.CheckInPoint) error {
	if br := b.opts.Breaker; br != nil && br.State() == resilience.StateOpen {
		observability.AnalyticsPoints("rejected", 1)
		return fmt.Errorf("analytics sink: %w", resilience.ErrOpen)
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if len(b.buf) >= b.opts.MaxBuffered {
		b.mu.Unlock()
		observability.AnalyticsPoints("dropped", 1)
		return nil
	}
	b.buf = append(b.buf, p)
	full := len(b.buf) >= b.opts.MaxBatch
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of buffered points.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Flush writes everything buffered so far.
func (b *Batcher) Flush(ctx context.Context) error {
	for {
		batch := b.take()
		if len(batch) == 0 {
			return nil
		}
		if err := b.write(ctx, batch); err != nil {
			return err
		}
	}
}

// Close stops the flusher and writes the remaining points.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
	return b.Flush(ctx)
}

func (b *Batcher) loop() {
	defer b.wg.Done()
	t := time.NewTicker(b.opts.FlushInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
		case <-b.kick:
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.opts.WriteTimeout)
		if err := b.Flush(ctx); err != nil {
			b.log.Warn().Err(err).
				Bool("degraded", true).
				Str("component", "analytics").
				Msg("analytics flush failed")
			observability.Degraded("analytics", "timeseries")
		}
		cancel()
	}
}

func (b *Batcher) take() []domain.CheckInPoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.buf)
	if n == 0 {
		return nil
	}
	if n > b.opts.MaxBatch {
		n = b.opts.MaxBatch
	}
	batch := make([]domain.CheckInPoint, n)
	copy(batch, b.buf[:n])
	b.buf = append(b.buf[:0], b.buf[n:]...)
	return batch
}

// write drops the batch on failure; points are a derived projection that
// can be rebuilt from check_ins.
func (b *Batcher) write(ctx context.Context, batch []domain.CheckInPoint) error {
	write := func(ctx context.Context) error { return b.sink.Write(ctx, batch) }
	var err error
	if b.opts.Breaker != nil {
		err = b.opts.Breaker.Execute(ctx, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		observability.AnalyticsPoints("failed", len(batch))
		return err
	}
	observability.AnalyticsPoints("written", len(batch))
	return nil
}
