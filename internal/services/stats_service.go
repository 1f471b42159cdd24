// Package services – StatsService
//
// StatsService serves the region grid read path: check-in counts per region
// and emotion over a trailing window, straight from the durable store.
package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/stackcurious/worldvibe-sub000/internal/observability"
	"github.com/stackcurious/worldvibe-sub000/internal/repo"
)

// Region grid window bounds, in hours.
const (
	DefaultGridHours = 24
	MaxGridHours     = 24 * 7
)

// RegionSummary groups the emotion cells of one region.
type RegionSummary struct {
	Region   string                    `json:"region"`
	Total    int64                     `json:"total"`
	Dominant string                    `json:"dominant"`
	Emotions []repo.RegionEmotionCount `json:"emotions"`
}

// StatsService aggregates check-ins for the region grid.
type StatsService struct {
	DB  *gorm.DB
	Now func() time.Time
}

// RegionGrid returns one summary per region for the last hours hours
// (clamped to [1, MaxGridHours], 0 means DefaultGridHours). Regions are
// ordered by code; Dominant is the emotion with the most check-ins.
func (s *StatsService) RegionGrid(ctx context.Context, hours int) ([]RegionSummary, error) {
	ctx, span := observability.Tracer("services").Start(ctx, "StatsService.RegionGrid",
		trace.WithAttributes(attribute.Int("hours", hours)),
	)
	defer span.End()

	switch {
	case hours <= 0:
		hours = DefaultGridHours
	case hours > MaxGridHours:
		hours = MaxGridHours
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	since := now().UTC().Add(-time.Duration(hours) * time.Hour)

	cells, err := repo.RegionEmotionCounts(ctx, s.DB, since)
	if err != nil {
		return nil, err
	}

	out := make([]RegionSummary, 0)
	for _, c := range cells {
		if n := len(out); n == 0 || out[n-1].Region != c.Region {
			// cells arrive ordered by region then count desc, so the first
			// cell of a region is its dominant emotion
			out = append(out, RegionSummary{Region: c.Region, Dominant: string(c.Emotion)})
		}
		cur := &out[len(out)-1]
		cur.Total += c.Count
		cur.Emotions = append(cur.Emotions, c)
	}
	return out, nil
}
