package cache

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
)

const (
	kindString = "str"
	kindHash   = "hash"
	kindList   = "list"
	kindZSet   = "zset"
)

// SQLStore implements Store on top of four GORM tables (see
// domain.CacheKey and friends). Conditional writes use single-statement
// upserts so concurrent writers never need an application lock.
type SQLStore struct {
	DB *gorm.DB
	// Now is the clock used for expiry; defaults to time.Now.
	Now func() time.Time
}

// NewSQLStore returns a SQLStore bound to db.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{DB: db, Now: time.Now}
}

// Migrate creates the cache tables.
func (s *SQLStore) Migrate() error {
	return s.DB.AutoMigrate(
		&domain.CacheKey{},
		&domain.CacheHashField{},
		&domain.CacheListItem{},
		&domain.CacheZMember{},
	)
}

func (s *SQLStore) now() int64 {
	if s.Now == nil {
		return time.Now().UnixNano()
	}
	return s.Now().UnixNano()
}

func (s *SQLStore) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now() + int64(ttl)
}

// Ping runs SELECT 1 against the backing database.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.DB.WithContext(ctx).Exec("SELECT 1").Error
}

// liveKey loads key's metadata, purging it first when it has expired.
// It returns nil when the key does not exist.
func (s *SQLStore) liveKey(tx *gorm.DB, key string) (*domain.CacheKey, error) {
	var row domain.CacheKey
	err := tx.Where("key = ?", key).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Key == "" {
		return nil, nil
	}
	if row.ExpiresAt != 0 && row.ExpiresAt <= s.now() {
		if err := purge(tx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &row, nil
}

// ensureKey returns key's metadata, creating a persistent key of kind when
// absent. ErrWrongType is returned on a kind mismatch.
func (s *SQLStore) ensureKey(tx *gorm.DB, key, kind string) (*domain.CacheKey, error) {
	row, err := s.liveKey(tx, key)
	if err != nil {
		return nil, err
	}
	if row != nil {
		if row.Kind != kind {
			return nil, ErrWrongType
		}
		return row, nil
	}
	row = &domain.CacheKey{Key: key, Kind: kind}
	if err := tx.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func purge(tx *gorm.DB, key string) error {
	if err := tx.Where("key = ?", key).Delete(&domain.CacheHashField{}).Error; err != nil {
		return err
	}
	if err := tx.Where("key = ?", key).Delete(&domain.CacheListItem{}).Error; err != nil {
		return err
	}
	if err := tx.Where("key = ?", key).Delete(&domain.CacheZMember{}).Error; err != nil {
		return err
	}
	return tx.Where("key = ?", key).Delete(&domain.CacheKey{}).Error
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var row domain.CacheKey
	err := s.DB.WithContext(ctx).
		Where("key = ? AND (expires_at = 0 OR expires_at > ?)", key, s.now()).
		Limit(1).Find(&row).Error
	if err != nil {
		return "", false, err
	}
	if row.Key == "" {
		return "", false, nil
	}
	if row.Kind != kindString {
		return "", false, ErrWrongType
	}
	return row.Value, true, nil
}

// Set implements Store.
func (s *SQLStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := purge(tx, key); err != nil {
			return err
		}
		return tx.Create(&domain.CacheKey{
			Key:       key,
			Kind:      kindString,
			Value:     value,
			ExpiresAt: s.expiry(ttl),
		}).Error
	})
}

// SetNX implements Store. An expired key is purged with its children in
// the same transaction before the claim; a live key is left untouched.
func (s *SQLStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var claimed bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.liveKey(tx, key)
		if err != nil || row != nil {
			return err
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&domain.CacheKey{
			Key:       key,
			Kind:      kindString,
			Value:     value,
			ExpiresAt: s.expiry(ttl),
		})
		if res.Error != nil {
			return res.Error
		}
		claimed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, k := range keys {
			if err := purge(tx, k); err != nil {
				return err
			}
		}
		return nil
	})
}

// Expire implements Store.
func (s *SQLStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.DB.WithContext(ctx).
		Model(&domain.CacheKey{}).
		Where("key = ? AND (expires_at = 0 OR expires_at > ?)", key, s.now()).
		Update("expires_at", s.expiry(ttl)).Error
}

// TTL implements Store.
func (s *SQLStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	var row domain.CacheKey
	now := s.now()
	err := s.DB.WithContext(ctx).
		Where("key = ? AND (expires_at = 0 OR expires_at > ?)", key, now).
		Limit(1).Find(&row).Error
	if err != nil {
		return 0, err
	}
	switch {
	case row.Key == "":
		return Missing, nil
	case row.ExpiresAt == 0:
		return NoExpiry, nil
	default:
		return time.Duration(row.ExpiresAt - now), nil
	}
}

// HSet implements Store.
func (s *SQLStore) HSet(ctx context.Context, key, field, value string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ensureKey(tx, key, kindHash); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}, {Name: "field"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).Create(&domain.CacheHashField{Key: key, Field: field, Value: value}).Error
	})
}

// HGetAll implements Store.
func (s *SQLStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	out := map[string]string{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.liveKey(tx, key)
		if err != nil || row == nil {
			return err
		}
		if row.Kind != kindHash {
			return ErrWrongType
		}
		var fields []domain.CacheHashField
		if err := tx.Where("key = ?", key).Find(&fields).Error; err != nil {
			return err
		}
		for _, f := range fields {
			out[f.Field] = f.Value
		}
		return nil
	})
	return out, err
}

// LPushTrim implements Store.
func (s *SQLStore) LPushTrim(ctx context.Context, key, value string, max int) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ensureKey(tx, key, kindList); err != nil {
			return err
		}
		var head struct{ Seq int64 }
		if err := tx.Model(&domain.CacheListItem{}).
			Select("COALESCE(MAX(seq), 0) AS seq").
			Where("key = ?", key).
			Scan(&head).Error; err != nil {
			return err
		}
		if err := tx.Create(&domain.CacheListItem{Key: key, Seq: head.Seq + 1, Value: value}).Error; err != nil {
			return err
		}
		if max <= 0 {
			return nil
		}
		// Find the newest element that falls outside the window and drop it
		// together with everything older.
		var cut []int64
		if err := tx.Model(&domain.CacheListItem{}).
			Where("key = ?", key).
			Order("seq DESC").
			Offset(max).Limit(1).
			Pluck("seq", &cut).Error; err != nil {
			return err
		}
		if len(cut) == 0 {
			return nil
		}
		return tx.Where("key = ? AND seq <= ?", key, cut[0]).Delete(&domain.CacheListItem{}).Error
	})
}

// LRange implements Store. Negative start values are treated as 0 and any
// negative stop means the end of the list.
func (s *SQLStore) LRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	if start < 0 {
		start = 0
	}
	if stop >= 0 && stop < start {
		return []string{}, nil
	}
	out := []string{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.liveKey(tx, key)
		if err != nil || row == nil {
			return err
		}
		if row.Kind != kindList {
			return ErrWrongType
		}
		q := tx.Model(&domain.CacheListItem{}).Where("key = ?", key).Order("seq DESC").Offset(start)
		if stop >= 0 {
			q = q.Limit(stop - start + 1)
		}
		return q.Pluck("value", &out).Error
	})
	return out, err
}

// ZIncrBy implements Store. The increment is a single upsert that adds to
// the stored score, so concurrent increments never lose updates.
func (s *SQLStore) ZIncrBy(ctx context.Context, key, member string, delta float64) (float64, error) {
	var score float64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ensureKey(tx, key, kindZSet); err != nil {
			return err
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}, {Name: "member"}},
			DoUpdates: clause.Assignments(map[string]any{
				"score": gorm.Expr("cache_z_members.score + excluded.score"),
			}),
		}).Create(&domain.CacheZMember{Key: key, Member: member, Score: delta}).Error; err != nil {
			return err
		}
		var row domain.CacheZMember
		if err := tx.Where("key = ? AND member = ?", key, member).First(&row).Error; err != nil {
			return err
		}
		score = row.Score
		return nil
	})
	return score, err
}

// ZTop implements Store.
func (s *SQLStore) ZTop(ctx context.Context, key string, n int) ([]Member, error) {
	out := []Member{}
	if n <= 0 {
		return out, nil
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.liveKey(tx, key)
		if err != nil || row == nil {
			return err
		}
		if row.Kind != kindZSet {
			return ErrWrongType
		}
		var rows []domain.CacheZMember
		if err := tx.Where("key = ?", key).
			Order("score DESC, member ASC").
			Limit(n).
			Find(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			out = append(out, Member{Member: r.Member, Score: r.Score})
		}
		return nil
	})
	return out, err
}

// Sweep deletes every expired key with its children and returns how many
// keys were removed.
func (s *SQLStore) Sweep(ctx context.Context) (int, error) {
	var keys []string
	if err := s.DB.WithContext(ctx).
		Model(&domain.CacheKey{}).
		Where("expires_at <> 0 AND expires_at <= ?", s.now()).
		Pluck("key", &keys).Error; err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.Delete(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// RunSweeper calls Sweep every interval until ctx is done. Errors are passed
// to onErr (may be nil).
func (s *SQLStore) RunSweeper(ctx context.Context, interval time.Duration, onErr func(error)) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil && onErr != nil && !errors.Is(err, context.Canceled) {
				onErr(err)
			}
		}
	}
}
