package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stackcurious/worldvibe-sub000/internal/config"
	"github.com/stackcurious/worldvibe-sub000/internal/services"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("DB_PATH", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	t.Setenv("CACHE_BACKEND", "sql")
	t.Setenv("GIN_MODE", "test")
	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("RATE_RPS", "100")
	t.Setenv("RATE_BURST", "100")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func newApp(t *testing.T) *App {
	t.Helper()
	a, err := New(context.Background(), testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func post(h http.Handler, path, device string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Device-ID", device)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, path, device string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if device != "" {
		req.Header.Set("X-Device-ID", device)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_RegistersAllBreakers(t *testing.T) {
	a := newApp(t)
	for _, name := range []string{
		services.BreakerDurable, BreakerRateLimitStore, services.BranchTimeseries,
		services.BranchStreak, services.BranchEvents, services.BranchBroadcast,
		services.BranchTrending, services.BranchRegionPref,
	} {
		if _, ok := a.Breakers.Lookup(name); !ok {
			t.Fatalf("breaker %q not registered", name)
		}
	}
	if a.sweeper == nil {
		t.Fatalf("sql cache backend must install a sweeper")
	}
}

func TestHandler_SubmitThenRateLimited(t *testing.T) {
	a := newApp(t)
	h := a.Handler()
	const device = "device-e2e-0001"

	w := post(h, "/api/v1/check-ins", device, map[string]any{
		"emotion": "happy", "intensity": 4, "note": "finally got the job offer", "region": "US-CA",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("first submit = %d body=%s", w.Code, w.Body.String())
	}
	var created struct {
		ID      string `json:"id"`
		Emotion string `json:"emotion"`
		Region  string `json:"region"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("json: %v", err)
	}
	if created.ID == "" || created.Emotion != "joy" || created.Region != "US-CA" {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}

	w = post(h, "/api/v1/check-ins", device, map[string]any{"emotion": "calm", "intensity": 2})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit = %d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}

	w = get(h, "/api/v1/me/status", device, nil)
	var status struct {
		CanSubmit bool `json:"can_submit"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &status)
	if w.Code != http.StatusOK || status.CanSubmit {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestHandler_ProbesAndAdmin(t *testing.T) {
	a := newApp(t)
	h := a.Handler()

	if w := get(h, "/health/ready", "", nil); w.Code != http.StatusOK {
		t.Fatalf("ready = %d body=%s", w.Code, w.Body.String())
	}
	w := get(h, "/api/v1/admin/breakers", "", map[string]string{"Authorization": "Bearer s3cret"})
	if w.Code != http.StatusOK {
		t.Fatalf("admin = %d", w.Code)
	}
	var list struct {
		Breakers []struct {
			Name string `json:"name"`
		} `json:"breakers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list.Breakers) != 8 {
		t.Fatalf("breakers=%s err=%v", w.Body.String(), err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Port = "0"
	a, err := New(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestOriginChecker(t *testing.T) {
	if originChecker(nil) != nil {
		t.Fatalf("empty allowlist must accept everything")
	}
	check := originChecker([]string{"https://worldvibe.app"})
	req := httptest.NewRequest(http.MethodGet, "/ws/live", nil)
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatalf("foreign origin accepted")
	}
	req.Header.Set("Origin", "https://worldvibe.app")
	if !check(req) {
		t.Fatalf("allowed origin rejected")
	}
}

func TestMigrate_SQLiteOnly(t *testing.T) {
	if err := Migrate(context.Background(), testConfig(t), zerolog.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}
