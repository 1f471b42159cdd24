// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate queries behind the
// region grid: check-in counts per region and emotion over a trailing
// window.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
)

// RegionEmotionCount is one cell of the region grid.
type RegionEmotionCount struct {
	Region       string         `json:"region"`
	Emotion      domain.Emotion `json:"emotion"`
	Count        int64          `json:"count"`
	AvgIntensity float64        `json:"avg_intensity"`
}

// RegionEmotionCounts aggregates check-ins accepted at or after since,
// ordered by region then count descending then emotion.
func RegionEmotionCounts(ctx context.Context, db *gorm.DB, since time.Time) ([]RegionEmotionCount, error) {
	var rows []RegionEmotionCount
	err := db.WithContext(ctx).
		Model(&domain.CheckIn{}).
		Select("region_bucket AS region, emotion, COUNT(*) AS count, AVG(intensity) AS avg_intensity").
		Where("accepted_at >= ?", since).
		Group("region_bucket, emotion").
		Order("region_bucket ASC, count DESC, emotion ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// CheckInsStats returns how many check-ins identityID has and the accept
// time of the latest one (nil when there are none).
func CheckInsStats(ctx context.Context, db *gorm.DB, identityID string) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.CheckIn{}).Where("identity_id = ?", identityID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest accepted_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		AcceptedAt time.Time
	}
	if err = q.Select("accepted_at").Order("accepted_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.AcceptedAt, nil
}
