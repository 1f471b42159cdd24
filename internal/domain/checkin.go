// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository, cache, and service layers.
package domain

import "time"

// RegionGlobal is the sentinel bucket used when no region could be resolved.
const RegionGlobal = "GLOBAL"

// CheckIn is the canonical, immutable record of one accepted emotional
// check-in. It is the source of truth; every derived effect (streaks,
// trending, analytics) can be rebuilt from these rows.
//
// Fields:
//   - ID: UUID primary key generated at acceptance time.
//   - IdentityID: opaque anonymous device identifier (indexed with AcceptedAt).
//   - Emotion: canonical emotion value (see Emotions).
//   - Intensity: 1..5, enforced by a CHECK constraint.
//   - Note: optional free text used only for trending extraction.
//   - RegionBucket: coarse region ("US", "US-CA" or "GLOBAL").
//   - Latitude / Longitude: optional map-display coordinates.
//   - OccurredAt: caller-supplied event time (defaults to acceptance time).
//   - AcceptedAt: server time of the durable commit.
type CheckIn struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	IdentityID   string    `json:"-"             gorm:"type:varchar(64);not null;index:idx_checkins_identity,priority:1"`
	Emotion      Emotion   `json:"emotion"       gorm:"type:varchar(16);not null;index:idx_checkins_emotion"`
	Intensity    int       `json:"intensity"     gorm:"not null;check:intensity BETWEEN 1 AND 5"`
	Note         string    `json:"note,omitempty" gorm:"type:varchar(1024)"`
	RegionBucket string    `json:"region"        gorm:"type:varchar(16);not null;default:'GLOBAL';index:idx_checkins_region"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"   gorm:"not null"`
	AcceptedAt   time.Time `json:"accepted_at"   gorm:"not null;index:idx_checkins_identity,priority:2;index:idx_checkins_accepted"`
}

// TableName returns the database table name for CheckIn.
func (CheckIn) TableName() string { return "check_ins" }

// CheckInPoint is the time-series projection of a check-in written to the
// analytics store. It carries neither the note nor the raw identity; rows
// are linked per identity through IdentityHash only.
type CheckInPoint struct {
	CheckInID    string    `gorm:"type:char(36);primaryKey"`
	IdentityHash string    `gorm:"type:varchar(16);not null"`
	Emotion      Emotion   `gorm:"type:varchar(16);not null"`
	Intensity    int       `gorm:"not null"`
	Region       string    `gorm:"type:varchar(16);not null"`
	Timestamp    time.Time `gorm:"not null;index:idx_points_ts"`
}

// TableName returns the database table name for CheckInPoint.
func (CheckInPoint) TableName() string { return "checkin_points" }

// PointFromCheckIn projects a committed check-in to its analytics point.
// identityHash is the caller's opaque hash of c.IdentityID.
func PointFromCheckIn(c *CheckIn, identityHash string) CheckInPoint {
	return CheckInPoint{
		CheckInID:    c.ID,
		IdentityHash: identityHash,
		Emotion:      c.Emotion,
		Intensity:    c.Intensity,
		Region:       c.RegionBucket,
		Timestamp:    c.OccurredAt,
	}
}
