package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stackcurious/worldvibe-sub000/internal/cache"
	"github.com/stackcurious/worldvibe-sub000/internal/domain"
	"github.com/stackcurious/worldvibe-sub000/internal/ratelimit"
	"github.com/stackcurious/worldvibe-sub000/internal/resilience"
	"github.com/stackcurious/worldvibe-sub000/internal/services"
	"github.com/stackcurious/worldvibe-sub000/internal/streak"
	"github.com/stackcurious/worldvibe-sub000/internal/trending"
)

func clock() time.Time { return fixedNow }

func TestGetTrending(t *testing.T) {
	t.Run("emotion dimension", func(t *testing.T) {
		tr := &stubTrending{terms: []cache.Member{{Member: "job", Score: 3}, {Member: "offer", Score: 2}}}
		r := newRouter(New(Deps{Trending: tr, Now: clock}), "device-1")

		w := do(t, r, http.MethodGet, "/trending?type=EMOTION&emotion=joy&limit=2", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
		}
		resp := decode[TrendingResponse](t, w)
		if resp.Type != "emotion" || resp.Key != "joy" || len(resp.Keywords) != 2 ||
			resp.Keywords[0] != (TrendingKeyword{Keyword: "job", Weight: 3}) {
			t.Fatalf("unexpected body: %+v", resp)
		}
		if tr.got.Dimension != trending.DimensionEmotion || tr.got.Limit != 2 {
			t.Fatalf("query: %+v", tr.got)
		}
	})

	t.Run("hourly defaults to now", func(t *testing.T) {
		tr := &stubTrending{}
		r := newRouter(New(Deps{Trending: tr, Now: clock}), "device-1")

		w := do(t, r, http.MethodGet, "/trending?type=hourly", nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status=%d", w.Code)
		}
		if !tr.got.Hour.Equal(fixedNow) {
			t.Fatalf("hour=%v", tr.got.Hour)
		}
		if resp := decode[TrendingResponse](t, w); resp.Keywords == nil {
			t.Fatalf("keywords must be an empty array, not null")
		}
	})

	t.Run("hourly explicit", func(t *testing.T) {
		tr := &stubTrending{}
		r := newRouter(New(Deps{Trending: tr, Now: clock}), "device-1")

		do(t, r, http.MethodGet, "/trending?type=hourly&hour=2026022813", nil, nil)
		if want := time.Date(2026, 2, 28, 13, 0, 0, 0, time.UTC); !tr.got.Hour.Equal(want) {
			t.Fatalf("hour=%v want %v", tr.got.Hour, want)
		}
	})

	t.Run("bad hour", func(t *testing.T) {
		r := newRouter(New(Deps{Trending: &stubTrending{}, Now: clock}), "device-1")
		if w := do(t, r, http.MethodGet, "/trending?type=hourly&hour=yesterday", nil, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", w.Code)
		}
	})

	t.Run("invalid query", func(t *testing.T) {
		tr := &stubTrending{err: fmt.Errorf("%w: unknown dimension", trending.ErrInvalidQuery)}
		r := newRouter(New(Deps{Trending: tr, Now: clock}), "device-1")
		w := do(t, r, http.MethodGet, "/trending?type=weekly", nil, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", w.Code)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		tr := &stubTrending{err: errors.New("redis down")}
		r := newRouter(New(Deps{Trending: tr, Now: clock}), "device-1")
		w := do(t, r, http.MethodGet, "/trending", nil, nil)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status=%d", w.Code)
		}
		if resp := decode[ErrorResponse](t, w); resp.Code != ErrCodeTrendingFailed {
			t.Fatalf("code=%q", resp.Code)
		}
	})
}

func TestGetStreak(t *testing.T) {
	r := newRouter(New(Deps{Streaks: &stubStreaks{streak: 4}, Now: clock}), "device-1")
	w := do(t, r, http.MethodGet, "/me/streak", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decode[StreakResponse](t, w)
	if resp.Streak != 4 || resp.Day != "2026-03-01" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	r = newRouter(New(Deps{Streaks: &stubStreaks{err: errors.New("boom")}, Now: clock}), "device-1")
	if w := do(t, r, http.MethodGet, "/me/streak", nil, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestGetHistory_Paging(t *testing.T) {
	entries := []streak.Entry{
		{CheckInID: "a", Emotion: domain.EmotionJoy, Day: "2026-03-01"},
		{CheckInID: "b", Emotion: domain.EmotionCalm, Day: "2026-02-28"},
	}
	st := &stubStreaks{entries: entries}
	r := newRouter(New(Deps{Streaks: st, Now: clock}), "device-1")

	w := do(t, r, http.MethodGet, "/me/history?offset=4&limit=2", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decode[HistoryResponse](t, w)
	if len(resp.Entries) != 2 || resp.Offset != 4 || resp.Limit != 2 {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if resp.NextOffset == nil || *resp.NextOffset != 6 {
		t.Fatalf("next_offset=%v", resp.NextOffset)
	}

	// Out-of-range parameters are clamped; a short page has no next offset.
	w = do(t, r, http.MethodGet, "/me/history?offset=-3&limit=1000", nil, nil)
	resp = decode[HistoryResponse](t, w)
	if st.offset != 0 || st.limit != 100 {
		t.Fatalf("clamped offset=%d limit=%d", st.offset, st.limit)
	}
	if resp.NextOffset != nil {
		t.Fatalf("unexpected next_offset=%d", *resp.NextOffset)
	}
}

func TestGetStatus(t *testing.T) {
	next := fixedNow.Add(2 * time.Hour)
	r := newRouter(New(Deps{Status: stubStatus{dec: ratelimit.Decision{Allowed: false, NextAllowedAt: next}}, Now: clock}), "device-1")
	resp := decode[StatusResponse](t, do(t, r, http.MethodGet, "/me/status", nil, nil))
	if resp.CanSubmit || resp.NextAllowedAt == nil || !resp.NextAllowedAt.Equal(next) {
		t.Fatalf("unexpected body: %+v", resp)
	}

	r = newRouter(New(Deps{Status: stubStatus{dec: ratelimit.Decision{Allowed: true}}, Now: clock}), "device-1")
	resp = decode[StatusResponse](t, do(t, r, http.MethodGet, "/me/status", nil, nil))
	if !resp.CanSubmit || resp.NextAllowedAt != nil {
		t.Fatalf("unexpected body: %+v", resp)
	}
}

func TestListEmotions(t *testing.T) {
	r := newRouter(New(Deps{}), "")
	w := do(t, r, http.MethodGet, "/emotions", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	list := decode[[]EmotionInfo](t, w)
	if len(list) != len(domain.Emotions) {
		t.Fatalf("got %d emotions", len(list))
	}
	if list[0].Value != domain.EmotionJoy || list[0].Label == "" {
		t.Fatalf("first entry: %+v", list[0])
	}
}

func TestRegionStats(t *testing.T) {
	st := &stubStats{grid: []services.RegionSummary{{Region: "FR", Total: 2, Dominant: "hope"}}}
	r := newRouter(New(Deps{Stats: st}), "")

	resp := decode[RegionStatsResponse](t, do(t, r, http.MethodGet, "/stats/regions?hours=500", nil, nil))
	if st.hours != services.MaxGridHours || resp.Hours != services.MaxGridHours {
		t.Fatalf("hours not clamped: %d", st.hours)
	}
	if len(resp.Regions) != 1 || resp.Regions[0].Region != "FR" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	do(t, r, http.MethodGet, "/stats/regions?hours=0", nil, nil)
	if st.hours != services.DefaultGridHours {
		t.Fatalf("hours=%d", st.hours)
	}

	st.err = errors.New("db down")
	if w := do(t, r, http.MethodGet, "/stats/regions", nil, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestBreakers_ListAndControl(t *testing.T) {
	reg := resilience.NewRegistry(resilience.Settings{})
	reg.Get("durable-store")
	reg.Get("trending")
	r := newRouter(New(Deps{Breakers: reg}), "")

	list := decode[BreakersResponse](t, do(t, r, http.MethodGet, "/admin/breakers", nil, nil))
	if len(list.Breakers) != 2 || list.Breakers[0].Name != "durable-store" || list.Breakers[0].State != "closed" {
		t.Fatalf("unexpected list: %+v", list)
	}

	w := do(t, r, http.MethodPost, "/admin/breakers/trending/open", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if snap := decode[resilience.Snapshot](t, w); snap.State != "open" || snap.LastError == "" || snap.RetryAt != nil {
		t.Fatalf("forced snapshot = %+v", snap)
	}
	if b, _ := reg.Lookup("trending"); b.State() != resilience.StateOpen {
		t.Fatalf("breaker not forced open")
	}

	if snap := decode[resilience.Snapshot](t, do(t, r, http.MethodPost, "/admin/breakers/trending/reset", nil, nil)); snap.State != "closed" || snap.LastError != "" {
		t.Fatalf("snapshot after reset = %+v", snap)
	}
	if w := do(t, r, http.MethodPost, "/admin/breakers/nope/open", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown breaker status=%d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/admin/breakers/trending/explode", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown action status=%d", w.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	h := New(Deps{Ready: map[string]ReadinessProbe{
		"db":    func(context.Context) error { return nil },
		"cache": func(context.Context) error { return errors.New("dial tcp: refused") },
	}})
	r := newRouter(h, "")

	if w := do(t, r, http.MethodGet, "/health", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("health status=%d", w.Code)
	}
	w := do(t, r, http.MethodGet, "/health/ready", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status=%d", w.Code)
	}
	resp := decode[ReadinessResponse](t, w)
	if resp.Status != "unavailable" || resp.Checks["db"] != "ok" || resp.Checks["cache"] == "ok" {
		t.Fatalf("unexpected body: %+v", resp)
	}

	h.d.Ready = map[string]ReadinessProbe{"db": func(context.Context) error { return nil }}
	if w := do(t, r, http.MethodGet, "/health/ready", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("ready status=%d", w.Code)
	}
}
