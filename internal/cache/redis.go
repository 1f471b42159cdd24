package cache

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store with go-redis.
type RedisStore struct {
	Client redis.UniversalClient
}

// NewRedisStore dials addr lazily; the first command establishes the
// connection.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{Client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// Close releases the connection pool.
func (r *RedisStore) Close() error { return r.Client.Close() }

func mapErr(err error) error {
	if err != nil && strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return ErrWrongType
	}
	return err
}

// Ping implements Store.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, mapErr(err)
	}
	return v, true, nil
}

func ttlArg(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

// Set implements Store.
func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.Client.Set(ctx, key, value, ttlArg(ttl)).Err()
}

// SetNX implements Store.
func (r *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := r.Client.SetNX(ctx, key, value, ttlArg(ttl)).Result()
	return ok, mapErr(err)
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.Client.Del(ctx, keys...).Err()
}

// Expire implements Store. A non-positive ttl makes the key persistent.
func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Client.Persist(ctx, key).Err()
	}
	return r.Client.Expire(ctx, key, ttl).Err()
}

// TTL implements Store.
func (r *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.Client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// go-redis passes the -2/-1 replies through unscaled.
	switch d {
	case -2:
		return Missing, nil
	case -1:
		return NoExpiry, nil
	}
	return d, nil
}

// HSet implements Store.
func (r *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return mapErr(r.Client.HSet(ctx, key, field, value).Err())
}

// HGetAll implements Store.
func (r *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.Client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

// LPushTrim implements Store as one MULTI/EXEC block.
func (r *RedisStore) LPushTrim(ctx context.Context, key, value string, max int) error {
	_, err := r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, value)
		if max > 0 {
			p.LTrim(ctx, key, 0, int64(max-1))
		}
		return nil
	})
	return mapErr(err)
}

// LRange implements Store.
func (r *RedisStore) LRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	if start < 0 {
		start = 0
	}
	if stop < 0 {
		stop = -1
	}
	out, err := r.Client.LRange(ctx, key, int64(start), int64(stop)).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

// ZIncrBy implements Store.
func (r *RedisStore) ZIncrBy(ctx context.Context, key, member string, delta float64) (float64, error) {
	v, err := r.Client.ZIncrBy(ctx, key, delta, member).Result()
	return v, mapErr(err)
}

// ZTop implements Store. ZREVRANGE orders equal scores by member
// descending, so every member tied with the n-th score is fetched before
// cutting and ties come back member ascending.
func (r *RedisStore) ZTop(ctx context.Context, key string, n int) ([]Member, error) {
	out := []Member{}
	if n <= 0 {
		return out, nil
	}
	zs, err := r.Client.ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	if len(zs) == 0 {
		return out, nil
	}
	boundary := zs[len(zs)-1].Score
	for _, z := range zs {
		if z.Score > boundary {
			m, _ := z.Member.(string)
			out = append(out, Member{Member: m, Score: z.Score})
		}
	}
	edge := strconv.FormatFloat(boundary, 'g', -1, 64)
	ties, err := r.Client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: edge, Max: edge}).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	for _, z := range ties {
		m, _ := z.Member.(string)
		out = append(out, Member{Member: m, Score: z.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
