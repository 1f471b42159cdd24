package domain

// The models below back the SQL implementation of the durable cache. Expiry
// is tracked per key in CacheKey (unix nanoseconds, 0 = persistent); the
// fields, items, and members of a hash, list, or sorted set live and die
// with their key. Readers ignore expired keys and a sweeper deletes them.

// CacheKey records the type and expiry of every live cache key.
type CacheKey struct {
	Key       string `gorm:"type:varchar(191);primaryKey"`
	Kind      string `gorm:"type:varchar(8);not null"` // str|hash|list|zset
	Value     string `gorm:"type:text"`                // only for str
	ExpiresAt int64  `gorm:"not null;default:0;index"` // unix nanos
}

// TableName returns the database table name for CacheKey.
func (CacheKey) TableName() string { return "cache_keys" }

// CacheHashField is one field of a hash key.
type CacheHashField struct {
	Key   string `gorm:"type:varchar(191);primaryKey"`
	Field string `gorm:"type:varchar(191);primaryKey"`
	Value string `gorm:"type:text;not null"`
}

// TableName returns the database table name for CacheHashField.
func (CacheHashField) TableName() string { return "cache_hash_fields" }

// CacheListItem is one element of a list key. Higher Seq is closer to the head.
type CacheListItem struct {
	ID    uint64 `gorm:"primaryKey;autoIncrement"`
	Key   string `gorm:"type:varchar(191);not null;index:idx_cache_list,priority:1"`
	Seq   int64  `gorm:"not null;index:idx_cache_list,priority:2"`
	Value string `gorm:"type:text;not null"`
}

// TableName returns the database table name for CacheListItem.
func (CacheListItem) TableName() string { return "cache_list_items" }

// CacheZMember is one scored member of a sorted-set key.
type CacheZMember struct {
	Key    string  `gorm:"type:varchar(191);primaryKey;index:idx_cache_z_score,priority:1"`
	Member string  `gorm:"type:varchar(191);primaryKey"`
	Score  float64 `gorm:"not null;index:idx_cache_z_score,priority:2"`
}

// TableName returns the database table name for CacheZMember.
func (CacheZMember) TableName() string { return "cache_z_members" }
