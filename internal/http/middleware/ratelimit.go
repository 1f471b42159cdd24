package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Edge limiter defaults. The one-check-in-per-window policy is separate
// (internal/ratelimit); this only absorbs request floods.
const (
	defaultEdgeKeys    = 100_000
	defaultEdgeIdleTTL = 10 * time.Minute
	maxRetryAfter      = time.Hour
)

// keyFunc selects the bucket for a request.
type keyFunc func(*gin.Context) string

// KeyByDeviceOrIP keys by device identity, or by client IP when the identity
// was minted for this very request (minting is free, so it cannot be trusted
// to separate callers).
func KeyByDeviceOrIP() keyFunc {
	return func(c *gin.Context) string {
		if id := IdentityFrom(c); id != "" && !IsMinted(c) {
			return "device:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter is a process-local token bucket per key. Buckets live in a
// bounded LRU and are dropped after sitting idle for the TTL; a dropped key
// starts again with a full burst.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc
	now   func() time.Time

	mu      sync.Mutex // serializes get-or-create
	buckets *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter builds a limiter with rps tokens per second and the given
// burst (values <= 0 become 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return newRateLimiter(rps, burst, keyFn, defaultEdgeKeys, defaultEdgeIdleTTL)
}

func newRateLimiter(rps float64, burst int, keyFn keyFunc, size int, idle time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		now:     time.Now,
		buckets: expirable.NewLRU[string, *rate.Limiter](size, nil, idle),
	}
}

// bucket returns the limiter for key, creating it when absent. Every access
// re-adds the entry so the idle TTL restarts.
func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, found := rl.buckets.Get(key)
	if !found {
		lim = rate.NewLimiter(rl.rps, rl.burst)
	}
	rl.buckets.Add(key, lim)
	return lim
}

// IsRateBypass reports whether IdempotencyValidator flagged the request as a
// replay.
func IsRateBypass(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyRateBypass)
	b, _ := v.(bool)
	return b
}

// Handler enforces the per-key limit. Denied requests get 429 with a
// Retry-After derived from the bucket's refill time. Replays skip the
// bucket entirely.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		now := rl.now()
		res := rl.bucket(rl.keyFn(c)).ReserveN(now, 1)
		if !res.OK() {
			denyRate(c, maxRetryAfter)
			return
		}
		if wait := res.DelayFrom(now); wait > 0 {
			res.CancelAt(now)
			denyRate(c, wait)
			return
		}
		c.Next()
	}
}

func denyRate(c *gin.Context, wait time.Duration) {
	c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
	abortJSON(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
}

// retryAfterSeconds rounds up to whole seconds within [1, maxRetryAfter].
func retryAfterSeconds(d time.Duration) int {
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}
