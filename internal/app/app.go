// Package app wires the WorldVibe components together and manages their
// lifecycle: the durable store, the cache backend, breakers, the check-in
// orchestrator and its fan-out sinks, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/stackcurious/worldvibe-sub000/internal/analytics"
	"github.com/stackcurious/worldvibe-sub000/internal/cache"
	"github.com/stackcurious/worldvibe-sub000/internal/config"
	"github.com/stackcurious/worldvibe-sub000/internal/events"
	httpapi "github.com/stackcurious/worldvibe-sub000/internal/http"
	"github.com/stackcurious/worldvibe-sub000/internal/http/handlers"
	"github.com/stackcurious/worldvibe-sub000/internal/identity"
	"github.com/stackcurious/worldvibe-sub000/internal/live"
	"github.com/stackcurious/worldvibe-sub000/internal/observability"
	"github.com/stackcurious/worldvibe-sub000/internal/ratelimit"
	"github.com/stackcurious/worldvibe-sub000/internal/repo"
	"github.com/stackcurious/worldvibe-sub000/internal/resilience"
	"github.com/stackcurious/worldvibe-sub000/internal/services"
	"github.com/stackcurious/worldvibe-sub000/internal/streak"
	"github.com/stackcurious/worldvibe-sub000/internal/trending"
)

// Breaker names that are not fan-out branches.
const (
	BreakerRateLimitStore = "ratelimit-store"
)

const (
	sweepInterval = time.Minute
	purgeInterval = 10 * time.Minute
	liveQueueSize = 32
)

// App holds the wired components.
type App struct {
	cfg config.Config
	log zerolog.Logger

	DB        *gorm.DB
	Cache     cache.Store
	Breakers  *resilience.Registry
	Limiter   *ratelimit.Limiter
	Resolver  *identity.Resolver
	Streaks   *streak.Tracker
	Trending  *trending.Engine
	Analytics *analytics.Batcher
	Events    events.Publisher
	Hub       *live.Hub
	CheckIns  *services.CheckInService
	Stats     *services.StatsService

	sweeper func(ctx context.Context)
	closers []func(ctx context.Context) error
}

// New opens the stores and builds every component. Optional backends (Redis,
// TimescaleDB, MQTT) that cannot be reached are logged and replaced with
// their local counterparts; only the durable store is fatal.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}

	db, err := repo.OpenSQLite(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate durable store: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	a.Breakers = resilience.NewRegistry(resilience.Settings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
		OnStateChange: func(name string, from, to resilience.State) {
			observability.BreakerState(name, to.String())
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker state changed")
		},
	})
	// Register every breaker up front so the admin API lists them all.
	for _, name := range []string{
		services.BreakerDurable, BreakerRateLimitStore,
		services.BranchTimeseries, services.BranchStreak, services.BranchEvents,
		services.BranchBroadcast, services.BranchTrending, services.BranchRegionPref,
	} {
		a.Breakers.Get(name)
	}

	a.Cache = a.openCache()

	a.Limiter = ratelimit.New(a.Cache, a.Breakers.Get(BreakerRateLimitStore), ratelimit.Options{
		Window:       cfg.CheckIn.Window,
		Timeout:      cfg.Timeouts.Cache,
		FallbackSize: cfg.CheckIn.FallbackSize,
	}, log.With().Str("component", "ratelimit").Logger())

	geo, err := identity.DefaultGeo()
	if err != nil {
		return nil, fmt.Errorf("load region polygons: %w", err)
	}
	a.Resolver = &identity.Resolver{
		Geo:     geo,
		Prefs:   a.Cache,
		Breaker: a.Breakers.Get(services.BranchRegionPref),
		Timeout: cfg.Timeouts.Cache,
		Log:     log.With().Str("component", "identity").Logger(),
	}
	if cfg.CheckIn.DeviceSecret != "" {
		a.Resolver.Tokens = identity.NewTokens(cfg.CheckIn.DeviceSecret, cfg.CheckIn.DeviceTokenTT)
	}

	loc, err := time.LoadLocation(cfg.CheckIn.StreakTZ)
	if err != nil {
		return nil, fmt.Errorf("streak timezone: %w", err)
	}
	a.Streaks = streak.New(a.Cache, loc, cfg.CheckIn.HistorySize, cfg.CheckIn.StreakTTL)
	a.Trending = trending.New(a.Cache, log.With().Str("component", "trending").Logger())

	a.Analytics = analytics.NewBatcher(a.openSink(ctx), analytics.BatcherOptions{
		Breaker: a.Breakers.Get(services.BranchTimeseries),
	},
		log.With().Str("component", "analytics").Logger())
	a.closers = append(a.closers, a.Analytics.Close)

	a.Events = a.openEvents(ctx)

	a.Hub = live.NewHub(liveQueueSize, originChecker(cfg.CORS.AllowedOrigins), log.With().Str("component", "live").Logger())
	a.closers = append(a.closers, func(context.Context) error { a.Hub.Close(); return nil })

	a.CheckIns = &services.CheckInService{
		DB:       db,
		Limiter:  a.Limiter,
		Breakers: a.Breakers,
		Retry: resilience.RetryPolicy{
			Attempts:       cfg.Breaker.RetryAttempts,
			AttemptTimeout: cfg.Timeouts.Durable,
		},
		Window:         cfg.CheckIn.Window,
		NoteMaxRunes:   cfg.CheckIn.NoteMaxRunes,
		DurableTimeout: cfg.Timeouts.Durable,
		StreakWait:     cfg.CheckIn.StreakWait,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Fanout: &services.Fanout{
			Timeout: cfg.Timeouts.FanOut,
			Log:     log.With().Str("component", "fanout").Logger(),
		},
		Streaks:   a.Streaks,
		Trending:  a.Trending,
		Analytics: a.Analytics,
		Events:    a.Events,
		Live:      a.Hub,
		Prefs:     a.Cache,
		Log:       log.With().Str("component", "checkin").Logger(),
	}
	a.Stats = &services.StatsService{DB: db}

	return a, nil
}

// openCache returns the configured cache backend.
func (a *App) openCache() cache.Store {
	if a.cfg.Storage.CacheBackend == "redis" {
		rs := cache.NewRedisStore(a.cfg.Storage.RedisAddr, a.cfg.Storage.RedisPassword, a.cfg.Storage.RedisDB)
		a.closers = append(a.closers, func(context.Context) error { return rs.Close() })
		pctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeouts.Cache)
		defer cancel()
		if err := rs.Ping(pctx); err != nil {
			// Redis may come up later; breakers and the in-process fallback cover the gap.
			a.log.Warn().Err(err).Str("addr", a.cfg.Storage.RedisAddr).Msg("redis unreachable at startup")
		}
		return rs
	}
	ss := cache.NewSQLStore(a.DB)
	a.sweeper = func(ctx context.Context) {
		ss.RunSweeper(ctx, sweepInterval, func(err error) {
			a.log.Warn().Err(err).Msg("cache sweep failed")
		})
	}
	return ss
}

// openSink returns the time-series sink: TimescaleDB when configured and
// reachable, otherwise the durable SQLite store.
func (a *App) openSink(ctx context.Context) analytics.Sink {
	if dsn := a.cfg.Storage.TimeseriesDSN; dsn != "" {
		pg, err := analytics.OpenPostgres(ctx, dsn)
		if err == nil {
			if err = pg.Migrate(ctx); err == nil {
				a.closers = append(a.closers, func(context.Context) error { return pg.Close() })
				return pg
			}
			_ = pg.Close()
		}
		a.log.Warn().Err(err).Msg("timeseries store unavailable, writing points to the durable store")
	}
	return &analytics.GormSink{DB: a.DB}
}

// openEvents returns the MQTT publisher when enabled and reachable,
// otherwise a publisher that only logs.
func (a *App) openEvents(ctx context.Context) events.Publisher {
	fallback := events.LogPublisher{Log: a.log.With().Str("component", "events").Logger()}
	if !a.cfg.MQTT.Enabled {
		return fallback
	}
	p, err := events.DialMQTT(ctx, a.cfg.MQTT.Broker, a.cfg.MQTT.ClientID, a.cfg.MQTT.TopicPrefix,
		a.log.With().Str("component", "events").Logger())
	if err != nil {
		a.log.Warn().Err(err).Str("broker", a.cfg.MQTT.Broker).Msg("mqtt unavailable, logging events only")
		return fallback
	}
	a.closers = append(a.closers, func(context.Context) error { p.Close(); return nil })
	return p
}

// Handler builds the Gin engine with every route mounted.
func (a *App) Handler() http.Handler {
	gin.SetMode(a.cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       a.DB,
		Identity: a.Resolver,
		Handlers: handlers.Deps{
			CheckIns: a.CheckIns,
			Regions:  a.Resolver,
			Trending: a.Trending,
			Streaks:  a.Streaks,
			Status:   a.Limiter,
			Stats:    a.Stats,
			Breakers: a.Breakers,
			Ready: map[string]handlers.ReadinessProbe{
				"durable-store": func(ctx context.Context) error { return repo.Ping(ctx, a.DB) },
			},
		},
		Live: a.Hub,
	}, a.cfg)
	return r
}

// Close releases every component in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Migrate creates or updates the durable schema and, when TIMESERIES_DSN is
// set, the time-series table.
func Migrate(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	db, err := repo.OpenSQLite(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("open durable store: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate durable store: %w", err)
	}
	log.Info().Str("path", cfg.Storage.DBPath).Msg("durable store migrated")

	if cfg.Storage.TimeseriesDSN == "" {
		return nil
	}
	pg, err := analytics.OpenPostgres(ctx, cfg.Storage.TimeseriesDSN)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	log.Info().Msg("timeseries store migrated")
	return nil
}

// originChecker mirrors the CORS allowlist for websocket upgrades. An empty
// list accepts every origin.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
