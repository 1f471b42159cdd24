// Package analytics writes check-in points to the time-series store.
//
// Two sinks are provided: PostgresSink (TimescaleDB or plain Postgres, bulk
// COPY through lib/pq) and GormSink (a table on the application database
// for single-node deployments). A Batcher buffers points in memory and
// flushes them by size or interval.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
)

// Sink stores a batch of points. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(ctx context.Context, points []domain.CheckInPoint) error
}

// ---- Postgres / TimescaleDB ----

const pointsTable = "checkin_points"

// PostgresSink bulk-loads points with COPY inside a transaction.
type PostgresSink struct {
	DB *sql.DB
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open timeseries: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping timeseries: %w", err)
	}
	return &PostgresSink{DB: db}, nil
}

// Migrate creates the points table and, when TimescaleDB is installed,
// turns it into a hypertable.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+pointsTable+` (
		check_in_id   UUID NOT NULL,
		identity_hash VARCHAR(16) NOT NULL,
		emotion       VARCHAR(16) NOT NULL,
		intensity     SMALLINT NOT NULL,
		region        VARCHAR(16) NOT NULL,
		ts            TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", pointsTable, err)
	}
	var hasTimescale bool
	if err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')`,
	).Scan(&hasTimescale); err != nil {
		return fmt.Errorf("probe timescaledb: %w", err)
	}
	if hasTimescale {
		if _, err := s.DB.ExecContext(ctx,
			`SELECT create_hypertable('`+pointsTable+`', 'ts', if_not_exists => TRUE)`,
		); err != nil {
			return fmt.Errorf("create hypertable: %w", err)
		}
	}
	return nil
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, points []domain.CheckInPoint) (err error) {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(pointsTable,
		"check_in_id", "identity_hash", "emotion", "intensity", "region", "ts"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	for _, p := range points {
		if _, err = stmt.ExecContext(ctx, p.CheckInID, p.IdentityHash, string(p.Emotion), p.Intensity, p.Region, p.Timestamp.UTC()); err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy row: %w", err)
		}
	}
	if _, err = stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return err
	}
	return tx.Commit()
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error { return s.DB.Close() }

// ---- GORM table ----

// GormSink inserts points into the application database.
type GormSink struct {
	DB *gorm.DB
}

// Write implements Sink. Re-delivered points are ignored.
func (s *GormSink) Write(ctx context.Context, points []domain.CheckInPoint) error {
	if len(points) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(points, 200).Error
}

// ---- no-op ----

// Discard drops every point.
type Discard struct{}

// Write implements Sink.
func (Discard) Write(context.Context, []domain.CheckInPoint) error { return nil }

// ErrClosed is returned by Batcher.Add after Close.
var ErrClosed = errors.New("analytics: batcher closed")
