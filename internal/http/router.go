// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// device identity, idempotency, rate limiting, CORS and security headers.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Probes and /metrics never mint device identities
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/stackcurious/worldvibe-sub000/docs"
	"github.com/stackcurious/worldvibe-sub000/internal/config"
	"github.com/stackcurious/worldvibe-sub000/internal/http/handlers"
	"github.com/stackcurious/worldvibe-sub000/internal/http/middleware"
	"github.com/stackcurious/worldvibe-sub000/internal/repo"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 64 << 10

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	// DB backs Idempotency-Key lookups.
	DB *gorm.DB
	// Identity resolves X-Device-ID / X-Device-Token.
	Identity middleware.Identifier
	// Handlers are the endpoint collaborators.
	Handlers handlers.Deps
	// Live serves the /ws/live feed; nil leaves the route unmounted.
	Live http.Handler
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with header masking
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics (then /metrics and the health probes are mounted)
//  7. DeviceIdentity
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Edge rate limiter (per device/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Admin-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.New(d.Handlers)
	r.GET("/health", h.Health)
	r.GET("/health/ready", h.Ready)

	// 7) Device identity for everything below
	r.Use(middleware.DeviceIdentity(d.Identity))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, identityID, key string, now time.Time) (bool, error) {
			if d.DB == nil {
				return false, nil
			}
			_, err := repo.GetIdempotency(ctx, d.DB, identityID, key, now)
			switch {
			case err == nil:
				return true, nil
			case errors.Is(err, repo.ErrNotFound):
				return false, nil
			}
			return false, err
		},
	))

	// 9) Token-bucket rate limiter per device/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByDeviceOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	base := apiBase
	if base == "/" {
		base = ""
	}
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{base + "/me", base + "/admin", base + "/check-ins"},
		EnablePolicy:    true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, apiBase)
	{
		// Write path
		api.POST("/check-ins", h.SubmitCheckIn)

		// Per-device reads
		me := api.Group("/me")
		me.GET("/streak", h.GetStreak)
		me.GET("/history", h.GetHistory)
		me.GET("/status", h.GetStatus)

		// Aggregate reads
		reads := api.Group("", gzip.Gzip(gzip.DefaultCompression))
		reads.GET("/trending", h.GetTrending)
		reads.GET("/emotions", h.ListEmotions)
		reads.GET("/stats/regions", h.RegionStats)

		// Live feed (websocket upgrade; never gzipped)
		if d.Live != nil {
			api.GET("/ws/live", gin.WrapH(d.Live))
		}

		// Operator controls
		admin := api.Group("/admin", middleware.AdminAuth(cfg.AdminToken))
		admin.GET("/breakers", h.ListBreakers)
		admin.POST("/breakers/:name/:action", h.ControlBreaker)
	}
}

// corsMiddleware returns the CORS chain. Without an allowlist every origin
// is accepted (and ACAO: * is forced even without an Origin header);
// otherwise allowed origins are echoed back.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization",
		middleware.HeaderDeviceID, middleware.HeaderDeviceToken,
		middleware.HeaderIdempotencyKey, "X-Timezone",
	}
	expose := append([]string{"Content-Length"}, middleware.DefaultExposeHeaders...)
	methods := []string{"GET", "POST", "OPTIONS"}

	if len(origins) == 0 {
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(cors.Config{
				AllowAllOrigins:  true,
				AllowMethods:     methods,
				AllowHeaders:     allowHeaders,
				ExposeHeaders:    expose,
				AllowCredentials: false, // must remain false with AllowAllOrigins
				MaxAge:           12 * time.Hour,
			}),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    expose,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
