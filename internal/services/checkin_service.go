// Package services – CheckInService
//
// This file implements CheckInService, the orchestrator behind
// POST /check-ins. A submission moves through Validate, RateCheck,
// DurableCommit, FanOut, and Respond. Only the first three can fail the
// request; every fan-out branch is isolated behind its own circuit breaker
// and timeout, and its failures are logged as degraded-mode events.
//
// Observability: Submit is OpenTelemetry-instrumented; the span carries the
// identity fingerprint, the region bucket and the outcome.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
	"github.com/stackcurious/worldvibe-sub000/internal/events"
	"github.com/stackcurious/worldvibe-sub000/internal/identity"
	"github.com/stackcurious/worldvibe-sub000/internal/observability"
	"github.com/stackcurious/worldvibe-sub000/internal/ratelimit"
	"github.com/stackcurious/worldvibe-sub000/internal/repo"
	"github.com/stackcurious/worldvibe-sub000/internal/resilience"
	"github.com/stackcurious/worldvibe-sub000/internal/streak"
)

// Breaker names used by the orchestrator. Fan-out branches share the
// name of their breaker.
const (
	BreakerDurable   = "durable-store"
	BranchTimeseries = "timeseries"
	BranchStreak     = "streak"
	BranchEvents     = "events"
	BranchBroadcast  = "broadcast"
	BranchTrending   = "trending"
	BranchRegionPref = "region-preference"
)

const (
	maxFutureSkew     = 5 * time.Minute
	preferenceTTL     = 90 * 24 * time.Hour
	minPrefConfidence = 0.85 // declared region or better
)

// RateLimiter is the slot reservation API of ratelimit.Limiter.
type RateLimiter interface {
	Reserve(ctx context.Context, identity string) ratelimit.Decision
	Commit(ctx context.Context, identity string, acceptedAt time.Time)
	Release(ctx context.Context, identity string)
}

// StreakTracker records check-ins and computes streaks.
type StreakTracker interface {
	Record(ctx context.Context, identity string, e streak.Entry) error
	Streak(ctx context.Context, identity string, today time.Time) (int, error)
}

// NoteProcessor feeds notes into the trending engine.
type NoteProcessor interface {
	ProcessNote(ctx context.Context, note string, emotion domain.Emotion, region string, ts time.Time) (int, error)
}

// PointWriter accepts analytics points.
type PointWriter interface {
	Add(ctx context.Context, p domain.CheckInPoint) error
}

// Broadcaster pushes payloads to live listeners.
type Broadcaster interface {
	Broadcast(ctx context.Context, v any) (sent, dropped int, err error)
}

// PreferenceWriter stores region preferences.
type PreferenceWriter interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Submission is one check-in request after identity resolution.
type Submission struct {
	IdentityID     string
	Emotion        string
	Intensity      int
	Note           string
	Region         identity.Region
	Latitude       *float64
	Longitude      *float64
	OccurredAt     *time.Time // nil means now
	IdempotencyKey string
}

// Result is returned for accepted (or replayed) submissions.
type Result struct {
	CheckIn       *domain.CheckIn
	Streak        int
	NextAllowedAt time.Time
	Replayed      bool
}

// CheckInService coordinates validation, rate limiting, durable commit, and
// fan-out. DB and Limiter are required; every fan-out sink is optional.
type CheckInService struct {
	DB       *gorm.DB
	Limiter  RateLimiter
	Breakers *resilience.Registry
	Retry    resilience.RetryPolicy

	Window         time.Duration // rate-limit window, for nextAllowedAt
	NoteMaxRunes   int           // default 280
	DurableTimeout time.Duration // probe and per-attempt insert timeout (3s)
	StreakWait     time.Duration // response wait for the streak branch (300ms)
	IdempotencyTTL time.Duration // default 24h

	Fanout    *Fanout
	Streaks   StreakTracker
	Trending  NoteProcessor
	Analytics PointWriter
	Events    events.Publisher
	Live      Broadcaster
	Prefs     PreferenceWriter

	Log   zerolog.Logger
	Now   func() time.Time
	NewID func() string
}

func (s *CheckInService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func (s *CheckInService) window() time.Duration {
	if s.Window <= 0 {
		return 24 * time.Hour
	}
	return s.Window
}

func (s *CheckInService) breaker(name string) *resilience.Breaker {
	if s.Breakers == nil {
		return nil
	}
	return s.Breakers.Get(name)
}

// Submit runs the check-in state machine.
func (s *CheckInService) Submit(ctx context.Context, sub Submission) (*Result, error) {
	ctx, span := observability.Tracer("services").Start(ctx, "CheckInService.Submit",
		trace.WithAttributes(
			attribute.String("identity.fingerprint", observability.Fingerprint(sub.IdentityID)),
			attribute.String("region", sub.Region.Bucket),
		),
	)
	defer span.End()

	res, outcome, err := s.submit(ctx, sub)
	observability.CheckInOutcome(outcome)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil && outcome != "rate_limited" && outcome != "invalid" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (s *CheckInService) submit(ctx context.Context, sub Submission) (*Result, string, error) {
	// Validate
	c, err := s.validate(sub)
	if err != nil {
		return nil, "invalid", err
	}

	if key := strings.TrimSpace(sub.IdempotencyKey); key != "" {
		res, err := s.replay(ctx, sub.IdentityID, key)
		if err == nil {
			return res, "replayed", nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			s.Log.Warn().Err(err).Str("component", "idempotency").Msg("idempotency lookup failed")
		}
	}

	// RateCheck
	dec := s.Limiter.Reserve(ctx, sub.IdentityID)
	if !dec.Allowed {
		return nil, "rate_limited", &RateLimitedError{NextAllowedAt: dec.NextAllowedAt}
	}

	// DurableCommit
	now := s.now()
	c.AcceptedAt = now
	if err := s.commit(ctx, c); err != nil {
		s.Limiter.Release(context.WithoutCancel(ctx), sub.IdentityID)
		if errors.Is(err, ErrStoreUnavailable) {
			return nil, "unavailable", err
		}
		return nil, "failed", err
	}
	s.Limiter.Commit(context.WithoutCancel(ctx), sub.IdentityID, c.AcceptedAt)

	if key := strings.TrimSpace(sub.IdempotencyKey); key != "" {
		ttl := s.IdempotencyTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if _, err := repo.CreateIdempotency(ctx, s.DB, sub.IdentityID, key, c.ID, 201, ttl); err != nil {
			s.Log.Warn().Err(err).Str("component", "idempotency").Msg("idempotency record not stored")
		}
	}

	// FanOut
	streakVal := s.fanOut(ctx, c, sub.Region)

	// Respond
	return &Result{
		CheckIn:       c,
		Streak:        streakVal,
		NextAllowedAt: c.AcceptedAt.Add(s.window()),
	}, "accepted", nil
}

func (s *CheckInService) validate(sub Submission) (*domain.CheckIn, error) {
	if !identity.ValidID(sub.IdentityID) {
		return nil, &ValidationError{Field: "identity", Reason: "malformed identifier"}
	}
	emotion, ok := domain.ParseEmotion(sub.Emotion)
	if !ok {
		return nil, &ValidationError{Field: "emotion", Reason: fmt.Sprintf("unknown emotion %q", sub.Emotion)}
	}
	if sub.Intensity < 1 || sub.Intensity > 5 {
		return nil, &ValidationError{Field: "intensity", Reason: "must be between 1 and 5"}
	}
	note := strings.TrimSpace(sub.Note)
	max := s.NoteMaxRunes
	if max <= 0 {
		max = 280
	}
	if utf8.RuneCountInString(note) > max {
		return nil, &ValidationError{Field: "note", Reason: fmt.Sprintf("must be at most %d characters", max)}
	}
	if (sub.Latitude == nil) != (sub.Longitude == nil) {
		return nil, &ValidationError{Field: "coordinates", Reason: "latitude and longitude must be sent together"}
	}
	if sub.Latitude != nil && !identity.ValidCoordinates(*sub.Latitude, *sub.Longitude) {
		return nil, &ValidationError{Field: "coordinates", Reason: "out of range"}
	}

	now := s.now()
	occurred := now
	if sub.OccurredAt != nil && !sub.OccurredAt.IsZero() {
		occurred = sub.OccurredAt.UTC()
		if occurred.After(now.Add(maxFutureSkew)) {
			return nil, &ValidationError{Field: "timestamp", Reason: "is in the future"}
		}
		if occurred.Before(now.Add(-s.window())) {
			return nil, &ValidationError{Field: "timestamp", Reason: "is older than the submission window"}
		}
	}

	region := sub.Region.Bucket
	if region == "" {
		region = domain.RegionGlobal
	}
	newID := s.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &domain.CheckIn{
		ID:           newID(),
		IdentityID:   sub.IdentityID,
		Emotion:      emotion,
		Intensity:    sub.Intensity,
		Note:         note,
		RegionBucket: region,
		Latitude:     sub.Latitude,
		Longitude:    sub.Longitude,
		OccurredAt:   occurred,
	}, nil
}

// commit probes the store, then inserts c with bounded retries. The probe
// failing maps to ErrStoreUnavailable; insert failures to PersistenceError.
func (s *CheckInService) commit(ctx context.Context, c *domain.CheckIn) error {
	timeout := s.DurableTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	br := s.breaker(BreakerDurable)
	exec := func(fn func(context.Context) error) error {
		if br == nil {
			return fn(ctx)
		}
		return br.Execute(ctx, fn)
	}

	probe := func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return repo.Ping(pctx, s.DB)
	}
	if err := exec(probe); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	policy := s.Retry
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = timeout
	}
	policy.OnRetry = func(err error, wait time.Duration) {
		s.Log.Warn().Err(err).Dur("backoff", wait).Str("checkin_id", c.ID).Msg("retrying check-in insert")
	}
	err := exec(func(ctx context.Context) error {
		return resilience.Retry(ctx, policy, func(ctx context.Context) error {
			return repo.CreateCheckIn(ctx, s.DB, c)
		})
	})
	if err != nil {
		return &PersistenceError{Transient: resilience.IsTransient(err), Err: err}
	}
	return nil
}

// replay returns the check-in recorded under (identity, key).
func (s *CheckInService) replay(ctx context.Context, identityID, key string) (*Result, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, identityID, key, s.now())
	if err != nil {
		return nil, err
	}
	c, err := repo.GetCheckIn(ctx, s.DB, rec.CheckInID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCheckInNotFound
		}
		return nil, err
	}
	streakVal := 1
	if s.Streaks != nil {
		if n, err := s.Streaks.Streak(ctx, identityID, c.OccurredAt); err == nil {
			streakVal = n
		}
	}
	return &Result{
		CheckIn:       c,
		Streak:        streakVal,
		NextAllowedAt: c.AcceptedAt.Add(s.window()),
		Replayed:      true,
	}, nil
}

// fanOut dispatches every configured branch and waits briefly for the
// streak value. It returns 1 when the streak is not available in time.
func (s *CheckInService) fanOut(ctx context.Context, c *domain.CheckIn, region identity.Region) int {
	ev := events.FromCheckIn(c)
	var branches []Branch
	add := func(name string, run func(ctx context.Context) error) {
		branches = append(branches, Branch{Name: name, Breaker: s.breaker(name), Run: run})
	}

	if s.Analytics != nil {
		point := domain.PointFromCheckIn(c, observability.Fingerprint(c.IdentityID))
		// Add only buffers; the batcher runs sink writes through the
		// timeseries breaker.
		branches = append(branches, Branch{Name: BranchTimeseries, Run: func(ctx context.Context) error {
			return s.Analytics.Add(ctx, point)
		}})
	}
	streakVal := 1
	if s.Streaks != nil {
		entry := streak.Entry{
			CheckInID:  c.ID,
			Emotion:    c.Emotion,
			Intensity:  c.Intensity,
			Region:     c.RegionBucket,
			OccurredAt: c.OccurredAt,
		}
		add(BranchStreak, func(ctx context.Context) error {
			if err := s.Streaks.Record(ctx, c.IdentityID, entry); err != nil {
				return err
			}
			n, err := s.Streaks.Streak(ctx, c.IdentityID, c.OccurredAt)
			if err != nil {
				return err
			}
			streakVal = n
			return nil
		})
	}
	if s.Events != nil {
		add(BranchEvents, func(ctx context.Context) error {
			return s.Events.Publish(ctx, ev)
		})
	}
	if s.Live != nil {
		add(BranchBroadcast, func(ctx context.Context) error {
			_, _, err := s.Live.Broadcast(ctx, ev)
			return err
		})
	}
	if s.Trending != nil && c.Note != "" {
		add(BranchTrending, func(ctx context.Context) error {
			_, err := s.Trending.ProcessNote(ctx, c.Note, c.Emotion, c.RegionBucket, c.OccurredAt)
			return err
		})
	}
	if s.Prefs != nil && region.Confidence >= minPrefConfidence && region.Bucket != domain.RegionGlobal {
		add(BranchRegionPref, func(ctx context.Context) error {
			return s.Prefs.Set(ctx, identity.PreferenceKey(c.IdentityID), region.Bucket, preferenceTTL)
		})
	}
	if len(branches) == 0 {
		return 1
	}

	fan := s.Fanout
	if fan == nil {
		fan = &Fanout{Log: s.Log}
	}
	flight := fan.Go(ctx, map[string]string{
		"checkin_id": c.ID,
		"identity":   observability.Fingerprint(c.IdentityID),
	}, branches...)

	if s.Streaks == nil {
		return 1
	}
	wait := s.StreakWait
	if wait <= 0 {
		wait = 300 * time.Millisecond
	}
	// streakVal is written by the branch goroutine before its done channel
	// closes, so it is safe to read once Wait reports completion.
	if done, err := flight.Wait(BranchStreak, wait); done && err == nil && streakVal >= 1 {
		return streakVal
	}
	return 1
}
