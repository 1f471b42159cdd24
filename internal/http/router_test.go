package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stackcurious/worldvibe-sub000/internal/config"
	"github.com/stackcurious/worldvibe-sub000/internal/domain"
	"github.com/stackcurious/worldvibe-sub000/internal/http/handlers"
	"github.com/stackcurious/worldvibe-sub000/internal/http/middleware"
	"github.com/stackcurious/worldvibe-sub000/internal/identity"
	"github.com/stackcurious/worldvibe-sub000/internal/ratelimit"
	"github.com/stackcurious/worldvibe-sub000/internal/repo"
	"github.com/stackcurious/worldvibe-sub000/internal/services"
)

type allowAll struct{}

func (allowAll) Check(context.Context, string) ratelimit.Decision {
	return ratelimit.Decision{Allowed: true}
}

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		AdminToken:  "s3cret",
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newEngine(t *testing.T, cfg config.Config) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, Deps{
		DB:       db,
		Identity: &identity.Resolver{},
		Handlers: handlers.Deps{
			Status: allowAll{},
			Ready:  map[string]handlers.ReadinessProbe{"db": func(ctx context.Context) error { return repo.Ping(ctx, db) }},
		},
	}, cfg)
	return r, db
}

func serve(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newEngine(t, testConfig())

	w := serve(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get(middleware.HeaderDeviceID); got != "" {
		t.Fatalf("probes must not mint identities, got %q", got)
	}
	if w := serve(r, http.MethodGet, "/health/ready", nil); w.Code != http.StatusOK {
		t.Fatalf("GET /health/ready = %d body=%s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w := serve(r, http.MethodGet, "/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/api/v1/emotions", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /emotions expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORS(t *testing.T) {
	r, _ := newEngine(t, testConfig())
	w := serve(r, http.MethodGet, "/api/v1/emotions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /emotions = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	r, _ = newEngine(t, cfg)
	w = serve(r, http.MethodGet, "/api/v1/emotions", map[string]string{"Origin": "http://example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestPipeline_IdentityAndCacheHeaders(t *testing.T) {
	r, _ := newEngine(t, testConfig())

	w := serve(r, http.MethodGet, "/api/v1/me/status", map[string]string{middleware.HeaderDeviceID: "device-0001"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /me/status = %d body=%s", w.Code, w.Body.String())
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if got := w.Header().Get(middleware.HeaderDeviceID); got != "device-0001" {
		t.Fatalf("X-Device-ID=%q", got)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("per-device reads must be no-store, got %q", cc)
	}

	// No identity: one is minted and echoed.
	w = serve(r, http.MethodGet, "/api/v1/emotions", nil)
	if got := w.Header().Get(middleware.HeaderDeviceID); got == "" {
		t.Fatalf("expected a minted X-Device-ID")
	}
	if cc := w.Header().Get("Cache-Control"); cc == "no-store" {
		t.Fatalf("public reads must stay cacheable")
	}
}

func TestPipeline_AdminAuth(t *testing.T) {
	r, _ := newEngine(t, testConfig())

	if w := serve(r, http.MethodGet, "/api/v1/admin/breakers", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated admin = %d", w.Code)
	}
	w := serve(r, http.MethodGet, "/api/v1/admin/breakers", map[string]string{"Authorization": "Bearer s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("admin = %d body=%s", w.Code, w.Body.String())
	}
}

// replaySubmitter accepts every submission and reports a replay for the
// seeded idempotency key.
type replaySubmitter struct{}

func (replaySubmitter) Submit(_ context.Context, sub services.Submission) (*services.Result, error) {
	now := time.Now().UTC()
	return &services.Result{
		CheckIn: &domain.CheckIn{
			ID: "ci-1", IdentityID: sub.IdentityID, Emotion: domain.EmotionJoy, Intensity: 3,
			RegionBucket: domain.RegionGlobal, OccurredAt: now, AcceptedAt: now,
		},
		Streak:        1,
		NextAllowedAt: now.Add(24 * time.Hour),
		Replayed:      sub.IdempotencyKey == "key-hit",
	}, nil
}

type globalRegion struct{}

func (globalRegion) ResolveRegion(context.Context, string, identity.Request) identity.Region {
	return identity.Region{Bucket: domain.RegionGlobal, Source: identity.SourceFallback}
}

func TestPipeline_ReplayBypassesEdgeLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.RateRPS = 0.0001
	cfg.RateBurst = 1

	db := newTestDB(t)
	r := gin.New()
	RegisterRoutes(r, Deps{
		DB:       db,
		Identity: &identity.Resolver{},
		Handlers: handlers.Deps{CheckIns: replaySubmitter{}, Regions: globalRegion{}},
	}, cfg)

	const device = "device-0001"
	post := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/check-ins",
			bytes.NewBufferString(`{"emotion":"joy","intensity":3}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderDeviceID, device)
		if key != "" {
			req.Header.Set(middleware.HeaderIdempotencyKey, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := post(""); code != http.StatusCreated {
		t.Fatalf("first check-in = %d", code)
	}
	if code := post(""); code != http.StatusTooManyRequests {
		t.Fatalf("second check-in expected 429, got %d", code)
	}

	seed := &domain.Idempotency{
		ID:         "idem-seed-1",
		IdentityID: device,
		Key:        "key-hit",
		CheckInID:  "ci-1",
		Status:     http.StatusCreated,
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	if err := db.Create(seed).Error; err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}

	if code := post("key-hit"); code != http.StatusOK {
		t.Fatalf("replay expected to bypass limiter with 200, got %d", code)
	}
	if code := post("key-miss"); code != http.StatusTooManyRequests {
		t.Fatalf("unknown key must still be limited, got %d", code)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		rec := serve(r, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}
