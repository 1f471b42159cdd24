package domain

import "time"

// Idempotency represents a recorded result of a previously processed
// check-in submission, keyed by (identity_id, key). It lets clients retry a
// POST after a network failure and receive the original check-in instead of
// a rate-limit rejection.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	IdentityID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_identity_key,priority:1"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_identity_key,priority:2"`
	CheckInID  string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
