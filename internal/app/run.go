package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/stackcurious/worldvibe-sub000/internal/repo"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server and sinks.
const shutdownTimeout = 10 * time.Second

// Run serves HTTP and runs background maintenance until ctx is cancelled or
// the server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           a.Handler(),
		ReadTimeout:       a.cfg.ReadTimeout,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	a.startMaintenance(bgCtx, &wg)

	httpErrCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Str("base_path", a.cfg.APIBasePath).Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErrCh <- fmt.Errorf("http server: %w", err)
		}
		close(httpErrCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-httpErrCh:
		if ok {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("http server shutdown")
	} else {
		a.log.Info().Msg("http server stopped")
	}
	stopBackground()
	wg.Wait()

	if err := a.Close(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("component shutdown")
	}
	return runErr
}

// startMaintenance launches the cache sweeper (SQL backend only) and the
// idempotency purge loop.
func (a *App) startMaintenance(ctx context.Context, wg *sync.WaitGroup) {
	if a.sweeper != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.sweeper(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(purgeInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				n, err := repo.PurgeIdempotency(ctx, a.DB, now.UTC())
				if err != nil {
					a.log.Warn().Err(err).Msg("idempotency purge failed")
					continue
				}
				if n > 0 {
					a.log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
				}
			}
		}
	}()
}
