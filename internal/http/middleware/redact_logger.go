package middleware

import (
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stackcurious/worldvibe-sub000/internal/observability"
)

// UUIDs are replaced before phone numbers; the phone pattern would otherwise
// eat their digit groups.
var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-8][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// Headers logged (after scrubbing) when present.
var defaultLogHeaders = []string{
	"User-Agent", "Accept-Language", "Content-Type", "Content-Length",
	"Origin", "Referer", "X-Timezone", HeaderIdempotencyKey,
}

// Headers that are logged as "[REDACTED]" so their presence stays visible.
var defaultMaskHeaders = []string{
	"Authorization", "Cookie", "Set-Cookie", HeaderDeviceID, HeaderDeviceToken,
}

// RedactOptions extends the default header lists. Names are
// case-insensitive; a header in both lists is masked.
type RedactOptions struct {
	LogHeaders  []string
	MaskHeaders []string
}

func headerSet(base, extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, h := range list {
			if h = strings.TrimSpace(h); h != "" {
				set[strings.ToLower(h)] = struct{}{}
			}
		}
	}
	return set
}

// anonymizeIP keeps the network part only: /24 for IPv4, /48 for IPv6.
func anonymizeIP(raw string) string {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	p, err := addr.Prefix(bits)
	if err != nil {
		return ""
	}
	return p.String()
}

// RedactingLogger writes one access log line per request. Bodies are never
// logged; the query and allowlisted headers are scrubbed of emails, phone
// numbers and UUIDs; the device identity appears only as its fingerprint and
// the client address only as a network prefix. It also attaches a
// request-scoped logger (see LoggerFrom).
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	logSet := headerSet(defaultLogHeaders, opts.LogHeaders)
	maskSet := headerSet(defaultMaskHeaders, opts.MaskHeaders)

	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		scoped := log.With().Str("request_id", reqID).Logger()
		c.Set(ctxKeyLogger, &scoped)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}
		if !ev.Enabled() {
			return
		}

		headers := zerolog.Dict()
		for k, vv := range c.Request.Header {
			lk := strings.ToLower(k)
			if _, masked := maskSet[lk]; masked {
				headers.Str(k, "[REDACTED]")
			} else if _, logged := logSet[lk]; logged {
				headers.Str(k, scrub(strings.Join(vv, ", ")))
			}
		}

		route := c.FullPath()
		if route == "" {
			route = unmatchedPath
		}
		if id := IdentityFrom(c); id != "" {
			ev = ev.Str("identity", observability.Fingerprint(id)).Bool("minted", IsMinted(c))
		}
		if IsReplay(c) {
			ev = ev.Bool("replay", true)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			ev = ev.Str("error", errs.String())
		}

		ev.Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("query", truncate(scrub(c.Request.URL.RawQuery), maxQueryLogLength)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("client", anonymizeIP(c.ClientIP())).
			Dict("headers", headers).
			Msg("http_request")
	}
}
