// Package handlers exposes the public WorldVibe HTTP API.
//
// Handlers are transport-thin: they bind and validate input, resolve the
// request's region, call application services, and translate results and
// typed service errors into HTTP responses. The device identity is resolved
// upstream by middleware.DeviceIdentity.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackcurious/worldvibe-sub000/internal/cache"
	"github.com/stackcurious/worldvibe-sub000/internal/http/middleware"
	"github.com/stackcurious/worldvibe-sub000/internal/identity"
	"github.com/stackcurious/worldvibe-sub000/internal/ratelimit"
	"github.com/stackcurious/worldvibe-sub000/internal/resilience"
	"github.com/stackcurious/worldvibe-sub000/internal/services"
	"github.com/stackcurious/worldvibe-sub000/internal/streak"
	"github.com/stackcurious/worldvibe-sub000/internal/trending"
)

//
// Service contracts (context-aware)
//

// CheckInSubmitter runs the check-in state machine.
type CheckInSubmitter interface {
	Submit(ctx context.Context, sub services.Submission) (*services.Result, error)
}

// RegionResolver maps request signals to a coarse region bucket.
type RegionResolver interface {
	ResolveRegion(ctx context.Context, identityID string, req identity.Request) identity.Region
}

// TrendingReader serves ranked keyword sets.
type TrendingReader interface {
	Top(ctx context.Context, q trending.Query) ([]cache.Member, error)
}

// StreakReader serves streaks and history.
type StreakReader interface {
	Streak(ctx context.Context, identityID string, today time.Time) (int, error)
	History(ctx context.Context, identityID string, offset, limit int) ([]streak.Entry, error)
	DayKey(ts time.Time) string
}

// StatusChecker reports whether an identity may submit now.
type StatusChecker interface {
	Check(ctx context.Context, identityID string) ratelimit.Decision
}

// RegionStats aggregates check-ins for the region grid.
type RegionStats interface {
	RegionGrid(ctx context.Context, hours int) ([]services.RegionSummary, error)
}

// ReadinessProbe checks a hard dependency for /health/ready.
type ReadinessProbe func(ctx context.Context) error

//
// Handler wiring
//

// Deps are the collaborators of Handlers. CheckIns and Regions are required
// for POST /check-ins; every read endpoint only needs its own reader.
type Deps struct {
	CheckIns CheckInSubmitter
	Regions  RegionResolver
	Trending TrendingReader
	Streaks  StreakReader
	Status   StatusChecker
	Stats    RegionStats
	Breakers *resilience.Registry
	Ready    map[string]ReadinessProbe
	Now      func() time.Time
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	d Deps
}

// New constructs Handlers bound to deps.
func New(deps Deps) *Handlers {
	return &Handlers{d: deps}
}

func (h *Handlers) now() time.Time {
	if h.d.Now != nil {
		return h.d.Now().UTC()
	}
	return time.Now().UTC()
}

// identityOf returns the device identity resolved by middleware, failing
// the request when none is present.
func identityOf(c *gin.Context) (string, bool) {
	id := middleware.IdentityFrom(c)
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "device identity required")
		return "", false
	}
	return id, true
}

// locale returns the primary tag of Accept-Language ("fr-CA;q=0.9, en" → "fr-CA").
func locale(c *gin.Context) string {
	al := c.GetHeader("Accept-Language")
	if i := strings.IndexAny(al, ",;"); i >= 0 {
		al = al[:i]
	}
	return strings.TrimSpace(al)
}
