// Package repo is the durable store: GORM over SQLite (pure Go driver) for
// check-ins, idempotency keys, analytics points and the SQL cache tables.
// Functions take the *gorm.DB explicitly and honor the caller's context.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
)

// Per-connection PRAGMAs. They travel in the DSN so every pooled connection
// gets them, not only the first.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// sqliteDSN appends the PRAGMAs to path, which may already carry a query
// (file:x?mode=memory&cache=shared).
func sqliteDSN(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// OpenSQLite opens (or creates) the database at path with the PRAGMAs above,
// a bounded pool and the OpenTelemetry tracing plugin. A missing parent
// directory is reported up front rather than as a driver error.
func OpenSQLite(path string) (*gorm.DB, error) {
	if !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// AutoMigrate creates the check-in, idempotency and analytics tables plus
// the tables behind the SQL cache adapter.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.CheckIn{},
		&domain.Idempotency{},
		&domain.CheckInPoint{},
		&domain.CacheKey{},
		&domain.CacheHashField{},
		&domain.CacheListItem{},
		&domain.CacheZMember{},
	)
}

// Ping runs SELECT 1 against db.
func Ping(ctx context.Context, db *gorm.DB) error {
	var one int
	return db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}
