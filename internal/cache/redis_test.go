package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_StringsAndTTL(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if d, _ := s.TTL(ctx, "missing"); d != Missing {
		t.Fatalf("TTL missing = %v", d)
	}
	ok, err := s.SetNX(ctx, "k", "v", time.Minute)
	if err != nil || !ok {
		t.Fatalf("SetNX = (%v,%v)", ok, err)
	}
	if ok, _ := s.SetNX(ctx, "k", "w", time.Minute); ok {
		t.Fatalf("second SetNX succeeded")
	}
	if d, _ := s.TTL(ctx, "k"); d <= 0 || d > time.Minute {
		t.Fatalf("TTL = %v", d)
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected expiry")
	}

	_ = s.Set(ctx, "p", "v", 0)
	if d, _ := s.TTL(ctx, "p"); d != NoExpiry {
		t.Fatalf("TTL persistent = %v", d)
	}
}

func TestRedisStore_CollectionsAndWrongType(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	_ = s.HSet(ctx, "h", "a", "1")
	if m, _ := s.HGetAll(ctx, "h"); m["a"] != "1" {
		t.Fatalf("HGetAll = %v", m)
	}

	for i := 1; i <= 4; i++ {
		_ = s.LPushTrim(ctx, "l", fmt.Sprint(i), 2)
	}
	got, _ := s.LRange(ctx, "l", 0, -1)
	if fmt.Sprint(got) != "[4 3]" {
		t.Fatalf("LRange = %v", got)
	}

	_, _ = s.ZIncrBy(ctx, "z", "b", 1)
	_, _ = s.ZIncrBy(ctx, "z", "a", 1)
	_, _ = s.ZIncrBy(ctx, "z", "c", 3)
	top, err := s.ZTop(ctx, "z", 3)
	if err != nil {
		t.Fatalf("ZTop: %v", err)
	}
	if top[0].Member != "c" || top[1].Member != "a" || top[2].Member != "b" {
		t.Fatalf("ZTop order = %+v", top)
	}

	if _, err := s.ZIncrBy(ctx, "h", "x", 1); !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
}

func TestRedisStore_ZTopTiesAcrossTheCut(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	for _, m := range []string{"d", "b", "c", "a"} {
		_, _ = s.ZIncrBy(ctx, "z", m, 1)
	}
	_, _ = s.ZIncrBy(ctx, "z", "z", 2)

	top, err := s.ZTop(ctx, "z", 3)
	if err != nil {
		t.Fatalf("ZTop: %v", err)
	}
	if got := fmt.Sprint(top); got != "[{z 2} {a 1} {b 1}]" {
		t.Fatalf("ZTop = %s, want the lowest tied members", got)
	}
	if top, _ := s.ZTop(ctx, "z", 10); len(top) != 5 {
		t.Fatalf("ZTop over size = %+v", top)
	}
	if top, _ := s.ZTop(ctx, "missing", 3); top == nil || len(top) != 0 {
		t.Fatalf("ZTop missing = %#v", top)
	}
}

func TestRedisStore_DownReturnsError(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := s.Ping(ctx); err == nil {
		t.Fatalf("expected Ping to fail after server close")
	}
}
