// Package streak tracks per-identity day streaks and a bounded check-in
// history in the durable cache.
//
// Layout: a hash streak:days:{id} maps day keys (YYYY-MM-DD in the reference
// timezone) to the emotion recorded that day, and a list
// streak:history:{id} holds JSON entries most recent first. Both keys get
// their TTL refreshed on every Record.
package streak

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
)

// MaxWalk bounds the backward walk in Streak.
const MaxWalk = 365

const dayLayout = "2006-01-02"

// Store is the part of the cache the tracker uses.
type Store interface {
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	LPushTrim(ctx context.Context, key, value string, max int) error
	LRange(ctx context.Context, key string, start, stop int) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Entry is one history item.
type Entry struct {
	CheckInID  string         `json:"id"`
	Emotion    domain.Emotion `json:"emotion"`
	Intensity  int            `json:"intensity"`
	Region     string         `json:"region"`
	Day        string         `json:"day"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Tracker implements streak and history bookkeeping.
type Tracker struct {
	Store       Store
	Location    *time.Location // reference timezone for day keys (default UTC)
	HistorySize int            // default 100
	TTL         time.Duration  // default 90 days
}

// New returns a Tracker with defaults applied.
func New(store Store, loc *time.Location, historySize int, ttl time.Duration) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	if historySize <= 0 {
		historySize = 100
	}
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	return &Tracker{Store: store, Location: loc, HistorySize: historySize, TTL: ttl}
}

// DaysKey and HistoryKey return the cache keys for identity.
func DaysKey(identity string) string    { return "streak:days:" + identity }
func HistoryKey(identity string) string { return "streak:history:" + identity }

// DayKey returns the calendar day of t in the tracker's timezone.
func (t *Tracker) DayKey(ts time.Time) string {
	return ts.In(t.loc()).Format(dayLayout)
}

func (t *Tracker) loc() *time.Location {
	if t.Location == nil {
		return time.UTC
	}
	return t.Location
}

// Record upserts the day entry, prepends the history entry, and refreshes
// both TTLs.
func (t *Tracker) Record(ctx context.Context, identity string, e Entry) error {
	if e.Day == "" {
		e.Day = t.DayKey(e.OccurredAt)
	}
	if err := t.Store.HSet(ctx, DaysKey(identity), e.Day, string(e.Emotion)); err != nil {
		return fmt.Errorf("streak day upsert: %w", err)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := t.Store.LPushTrim(ctx, HistoryKey(identity), string(raw), t.HistorySize); err != nil {
		return fmt.Errorf("streak history push: %w", err)
	}
	for _, k := range []string{DaysKey(identity), HistoryKey(identity)} {
		if err := t.Store.Expire(ctx, k, t.TTL); err != nil {
			return fmt.Errorf("streak ttl refresh: %w", err)
		}
	}
	return nil
}

// Streak counts consecutive days ending today that have an entry. When
// today has no entry the streak is 1 (a fresh start). The walk is bounded
// by MaxWalk.
func (t *Tracker) Streak(ctx context.Context, identity string, today time.Time) (int, error) {
	days, err := t.Store.HGetAll(ctx, DaysKey(identity))
	if err != nil {
		return 1, fmt.Errorf("streak read: %w", err)
	}
	return countStreak(days, today.In(t.loc())), nil
}

func countStreak(days map[string]string, today time.Time) int {
	if _, ok := days[today.Format(dayLayout)]; !ok {
		return 1
	}
	n := 0
	// AddDate on a calendar date keeps DST transitions out of the walk.
	y, m, d := today.Date()
	day := time.Date(y, m, d, 12, 0, 0, 0, today.Location())
	for i := 0; i < MaxWalk; i++ {
		if _, ok := days[day.Format(dayLayout)]; !ok {
			break
		}
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}

// History returns up to limit entries starting at offset, most recent first.
// Unreadable entries are skipped.
func (t *Tracker) History(ctx context.Context, identity string, offset, limit int) ([]Entry, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > t.HistorySize {
		limit = t.HistorySize
	}
	raws, err := t.Store.LRange(ctx, HistoryKey(identity), offset, offset+limit-1)
	if err != nil {
		return nil, fmt.Errorf("streak history read: %w", err)
	}
	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
