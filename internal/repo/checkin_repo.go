// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the CheckIn
// model.
//
// Check-ins are append-only: there is no update or delete path. Reads are
// scoped either by primary key or by identity, newest first.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates a unique constraint violation.
var ErrDuplicate = errors.New("duplicate")

// CreateCheckIn inserts c. A primary key collision returns ErrDuplicate.
func CreateCheckIn(ctx context.Context, db *gorm.DB, c *domain.CheckIn) error {
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetCheckIn fetches a check-in by id, or ErrNotFound.
func GetCheckIn(ctx context.Context, db *gorm.DB, id string) (*domain.CheckIn, error) {
	var c domain.CheckIn
	if err := db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// LatestCheckIn returns the most recently accepted check-in of identityID,
// or ErrNotFound.
func LatestCheckIn(ctx context.Context, db *gorm.DB, identityID string) (*domain.CheckIn, error) {
	var c domain.CheckIn
	err := db.WithContext(ctx).
		Where("identity_id = ?", identityID).
		Order("accepted_at DESC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// isUniqueViolation matches GORM's translated error and the plain-text
// errors glebarez/sqlite returns for UNIQUE and PRIMARY KEY violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "constraint failed: primary key")
}
