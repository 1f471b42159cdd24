package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/stackcurious/worldvibe-sub000/internal/observability"
)

// HeaderIdempotencyKey carries the client's retry key for POST check-ins.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

const defaultIdemMaxLen = 200

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, found := c.Get(ctxKeyIdemKey)
	if !found {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether (identity, key) already maps to a stored
// check-in. The handler still serves the replay itself.
func IsReplay(c *gin.Context) bool {
	b, _ := c.Get(ctxKeyIdemReplay)
	v, _ := b.(bool)
	return v
}

// IdempotencyOptions tunes key validation. Zero values pick the defaults
// (200 chars, token-ish charset, wall clock).
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
	Now     func() time.Time
}

// IdempotencyLookup reports whether a live record exists for (identityID,
// key) at now. Errors are logged and treated as a miss.
type IdempotencyLookup func(ctx context.Context, identityID, key string, now time.Time) (bool, error)

// IdempotencyValidator validates Idempotency-Key on unsafe methods and, when
// a record already exists for the caller, flags the request as a replay
// that the edge rate limiter lets through. It must run after DeviceIdentity.
// Safe methods ignore the header.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		if !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid := IdentityFrom(c)
		if lookup == nil || uid == "" {
			c.Next()
			return
		}
		exists, err := lookup(c.Request.Context(), uid, key, now().UTC())
		if err != nil {
			log.Warn().Err(err).
				Str("identity", observability.Fingerprint(uid)).
				Msg("idempotency lookup failed")
		}
		if exists {
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
