// Package cache defines the durable key-value cache used for rate-limit
// records, streak state, region preferences, and trending ranked sets, plus
// two implementations: Redis (go-redis) and a SQL-table store that shares the
// application's GORM handle for single-node deployments.
//
// The contract mirrors the Redis primitives the rest of the code relies on.
// Every mutating operation is atomic at the storage layer; callers never need
// an external lock.
package cache

import (
	"context"
	"errors"
	"time"
)

// TTL sentinels, matching Redis semantics.
const (
	// NoExpiry is returned by TTL for a key without an expiry.
	NoExpiry time.Duration = -1
	// Missing is returned by TTL for a key that does not exist.
	Missing time.Duration = -2
)

// ErrWrongType is returned when an operation targets a key holding a
// different kind of value (for example HSet on a sorted set).
var ErrWrongType = errors.New("cache: operation against a key holding the wrong kind of value")

// Member is one scored entry of a sorted set.
type Member struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

// Store is the durable cache contract.
type Store interface {
	// Ping is a liveness probe.
	Ping(ctx context.Context) error

	// Get returns the string value at key; ok is false when absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores a string value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only when key is absent (or expired). It reports
	// whether the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes keys of any kind. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Expire sets a new ttl on an existing key. Missing keys are ignored.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lifetime, NoExpiry, or Missing.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// HSet upserts a single hash field.
	HSet(ctx context.Context, key, field, value string) error
	// HGetAll returns all fields of a hash (empty map when absent).
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// LPushTrim prepends value and trims the list to at most max elements.
	LPushTrim(ctx context.Context, key, value string, max int) error
	// LRange returns elements [start, stop] from the head, inclusive; stop
	// of -1 means the end of the list.
	LRange(ctx context.Context, key string, start, stop int) ([]string, error)

	// ZIncrBy adds delta to member's score and returns the new score.
	ZIncrBy(ctx context.Context, key, member string, delta float64) (float64, error)
	// ZTop returns up to n members by descending score; ties are ordered by
	// member ascending.
	ZTop(ctx context.Context, key string, n int) ([]Member, error)
}
