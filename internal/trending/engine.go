// Package trending extracts keywords from check-in notes and accumulates
// recency-weighted scores in ranked sets (global, per emotion, per region,
// per hour). Scores only grow; sets expire wholesale through their TTLs.
package trending

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackcurious/worldvibe-sub000/internal/cache"
	"github.com/stackcurious/worldvibe-sub000/internal/domain"
	"github.com/stackcurious/worldvibe-sub000/internal/observability"
)

// Decay time constant in hours for w = exp(-age/6).
const decayHours = 6.0

// Set lifetimes.
const (
	LongTTL   = 24 * time.Hour // global, emotion, region
	HourlyTTL = 6 * time.Hour
)

const hourLayout = "2006010215"

// Dimension selects the ranked set Top reads.
type Dimension string

const (
	DimensionGlobal  Dimension = "global"
	DimensionEmotion Dimension = "emotion"
	DimensionRegion  Dimension = "region"
	DimensionHourly  Dimension = "hourly"
)

// ErrInvalidQuery is returned by Top for an unknown dimension or missing key.
var ErrInvalidQuery = errors.New("trending: invalid query")

// Store is the part of the cache the engine uses.
type Store interface {
	ZIncrBy(ctx context.Context, key, member string, delta float64) (float64, error)
	ZTop(ctx context.Context, key string, n int) ([]cache.Member, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Keys for the four set families.
func GlobalKey() string                  { return "trending:global" }
func EmotionKey(e domain.Emotion) string { return "trending:emotion:" + string(e) }
func RegionKey(region string) string     { return "trending:region:" + region }
func HourKey(ts time.Time) string        { return "trending:hour:" + ts.UTC().Format(hourLayout) }

type rankedSet struct {
	key string
	ttl time.Duration
}

// Weight returns exp(-ageHours/6) for a note written at ts and processed at
// now. Future timestamps count as age zero.
func Weight(ts, now time.Time) float64 {
	age := now.Sub(ts).Hours()
	if age < 0 {
		age = 0
	}
	return math.Exp(-age / decayHours)
}

// Engine implements note processing and ranking reads.
type Engine struct {
	Store Store
	Log   zerolog.Logger
	Now   func() time.Time
}

// New returns an Engine over store.
func New(store Store, log zerolog.Logger) *Engine {
	return &Engine{Store: store, Log: log, Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// ProcessNote tokenizes note and adds its weight to every applicable set.
// It keeps going past storage errors, logs them, and returns one error
// wrapping the first. The count of terms is returned either way.
func (e *Engine) ProcessNote(ctx context.Context, note string, emotion domain.Emotion, region string, ts time.Time) (int, error) {
	terms := Terms(note)
	if len(terms) == 0 {
		return 0, nil
	}
	w := Weight(ts, e.now())

	keys := []rankedSet{
		{GlobalKey(), LongTTL},
		{EmotionKey(emotion), LongTTL},
		{HourKey(ts), HourlyTTL},
	}
	if region != "" && region != domain.RegionGlobal {
		keys = append(keys, rankedSet{RegionKey(region), LongTTL})
	}

	writes, failures := 0, 0
	var firstErr error
	for _, k := range keys {
		wrote := false
		for _, term := range terms {
			writes++
			if _, err := e.Store.ZIncrBy(ctx, k.key, term, w); err != nil {
				failures++
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			wrote = true
		}
		if wrote {
			writes++
			if err := e.Store.Expire(ctx, k.key, k.ttl); err != nil {
				failures++
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	observability.TrendingTerms(len(terms))
	if failures == 0 {
		return len(terms), nil
	}
	e.Log.Warn().Err(firstErr).
		Bool("degraded", true).
		Str("component", "trending").
		Int("failures", failures).
		Int("writes", writes).
		Msg("trending update failed")
	observability.Degraded("trending", "store")
	return len(terms), fmt.Errorf("trending: %d of %d writes failed: %w", failures, writes, firstErr)
}

// Query selects a ranked set.
type Query struct {
	Dimension Dimension
	Key       string    // emotion or region for those dimensions
	Hour      time.Time // hourly; zero means the current hour
	Limit     int       // default 10, max 100
}

// Top returns the highest-scoring terms, descending by score with ties
// ordered by term ascending.
func (e *Engine) Top(ctx context.Context, q Query) ([]cache.Member, error) {
	key, err := e.keyFor(q)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	out, err := e.Store.ZTop(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("trending top %s: %w", key, err)
	}
	return out, nil
}

func (e *Engine) keyFor(q Query) (string, error) {
	switch q.Dimension {
	case DimensionGlobal, "":
		return GlobalKey(), nil
	case DimensionEmotion:
		em, ok := domain.ParseEmotion(q.Key)
		if !ok {
			return "", fmt.Errorf("%w: unknown emotion %q", ErrInvalidQuery, q.Key)
		}
		return EmotionKey(em), nil
	case DimensionRegion:
		r := strings.ToUpper(strings.TrimSpace(q.Key))
		if r == "" {
			return "", fmt.Errorf("%w: region required", ErrInvalidQuery)
		}
		return RegionKey(r), nil
	case DimensionHourly:
		h := q.Hour
		if h.IsZero() {
			h = e.now()
		}
		return HourKey(h), nil
	default:
		return "", fmt.Errorf("%w: unknown dimension %q", ErrInvalidQuery, q.Dimension)
	}
}
