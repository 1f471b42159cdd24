// Package identity resolves the anonymous identity and coarse region of a
// check-in request. Resolution never fails: a missing or malformed client
// id is replaced by a freshly minted one and an unknown region falls back to
// the GLOBAL bucket.
package identity

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
	"github.com/stackcurious/worldvibe-sub000/internal/observability"
	"github.com/stackcurious/worldvibe-sub000/internal/resilience"
)

// Source names the tier a region was resolved from.
type Source string

const (
	SourceCoordinates Source = "coordinates"
	SourceDeclared    Source = "declared"
	SourcePreference  Source = "preference"
	SourceTimezone    Source = "timezone"
	SourceLocale      Source = "locale"
	SourceFallback    Source = "fallback"
)

// Confidence per tier.
var confidence = map[Source]float64{
	SourceCoordinates: 0.95,
	SourceDeclared:    0.85,
	SourcePreference:  0.7,
	SourceTimezone:    0.5,
	SourceLocale:      0.3,
	SourceFallback:    0,
}

var idRe = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// ValidID reports whether a client-declared identifier is well-formed.
func ValidID(id string) bool { return idRe.MatchString(id) }

// PreferenceKey is the cache key holding an identity's stored region.
func PreferenceKey(identity string) string { return "region:pref:" + identity }

// Request carries the signals a client may send.
type Request struct {
	DeviceID    string   // X-Device-ID
	DeviceToken string   // X-Device-Token
	Latitude    *float64 // both or neither
	Longitude   *float64 // both or neither
	Region      string   // declared code, "CC" or "CC-SUB"
	Timezone    string   // IANA name
	Locale      string   // Accept-Language
}

// Region is a resolved region bucket.
type Region struct {
	Bucket     string  `json:"bucket"`
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of Identify.
type Result struct {
	IdentityID string
	Minted     bool   // a new identity was created for this request
	Token      string // freshly issued device token, if any
}

// PreferenceReader is the part of the cache the resolver reads.
type PreferenceReader interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Resolver implements identity and region resolution. All fields except
// Geo are optional.
type Resolver struct {
	Geo     *Geo
	Prefs   PreferenceReader
	Breaker *resilience.Breaker // guards preference reads
	Timeout time.Duration       // preference read timeout
	Tokens  *Tokens
	Log     zerolog.Logger
	NewID   func() string
}

// ResolveIdentity picks the identity: a valid device token first, then a
// well-formed device id, otherwise a newly minted id.
func (r *Resolver) ResolveIdentity(req Request) (id string, minted bool, err error) {
	if tok := strings.TrimSpace(req.DeviceToken); tok != "" && r.Tokens != nil {
		sub, verr := r.Tokens.Verify(tok)
		if verr == nil {
			return sub, false, nil
		}
		err = verr
	}
	if id := strings.TrimSpace(req.DeviceID); ValidID(id) {
		return id, false, err
	}
	newID := r.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return newID(), true, err
}

// Identify resolves the identity of req and issues a device token when the
// client has none (or a fresh identity was minted). It never fails.
func (r *Resolver) Identify(req Request) Result {
	id, minted, tokErr := r.ResolveIdentity(req)
	if tokErr != nil {
		r.Log.Debug().Err(tokErr).Msg("device token rejected")
	}
	res := Result{IdentityID: id, Minted: minted}
	if r.Tokens != nil && (minted || req.DeviceToken == "" || tokErr != nil) {
		if tok, err := r.Tokens.Issue(id); err == nil {
			res.Token = tok
		}
	}
	return res
}

// ResolveRegion walks the precedence tiers and returns the first hit.
func (r *Resolver) ResolveRegion(ctx context.Context, identity string, req Request) Region {
	if req.Latitude != nil && req.Longitude != nil {
		if cc, ok := r.Geo.Lookup(*req.Latitude, *req.Longitude); ok {
			return region(cc, SourceCoordinates)
		}
	}
	if bucket, ok := NormalizeRegion(req.Region); ok {
		return region(bucket, SourceDeclared)
	}
	if bucket, ok := r.preference(ctx, identity); ok {
		return region(bucket, SourcePreference)
	}
	if cc, ok := RegionFromTimezone(req.Timezone); ok {
		return region(cc, SourceTimezone)
	}
	if cc, ok := RegionFromLocale(req.Locale); ok {
		return region(cc, SourceLocale)
	}
	return region(domain.RegionGlobal, SourceFallback)
}

func (r *Resolver) preference(ctx context.Context, identity string) (string, bool) {
	if r.Prefs == nil || identity == "" {
		return "", false
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	var (
		val string
		ok  bool
	)
	read := func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var err error
		val, ok, err = r.Prefs.Get(cctx, PreferenceKey(identity))
		return err
	}
	var err error
	if r.Breaker != nil {
		err = r.Breaker.Execute(ctx, read)
	} else {
		err = read(ctx)
	}
	if err != nil {
		r.Log.Debug().Err(err).
			Bool("degraded", true).
			Str("component", "resolver").
			Str("identity", observability.Fingerprint(identity)).
			Msg("region preference lookup skipped")
		observability.Degraded("resolver", "region-preference")
		return "", false
	}
	if !ok {
		return "", false
	}
	return NormalizeRegion(val)
}

func region(bucket string, src Source) Region {
	return Region{Bucket: bucket, Source: src, Confidence: confidence[src]}
}
