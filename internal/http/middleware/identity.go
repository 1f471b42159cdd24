package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stackcurious/worldvibe-sub000/internal/identity"
)

// Identity headers.
const (
	HeaderDeviceID    = "X-Device-ID"
	HeaderDeviceToken = "X-Device-Token"
)

// ctxKeyIdentity is shared with the logger and the edge rate limiter, which
// read "userID".
const (
	ctxKeyIdentity = "userID"
	ctxKeyMinted   = "identity.minted"
)

// Identifier resolves a device identity from request headers.
type Identifier interface {
	Identify(req identity.Request) identity.Result
}

// DeviceIdentity resolves the caller's identity from X-Device-ID or
// X-Device-Token, minting one when neither is usable, stores it in the Gin
// context and echoes it (with a token, when issued) in the response headers
// so the client can persist it. It never rejects a request.
func DeviceIdentity(id Identifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := id.Identify(identity.Request{
			DeviceID:    strings.TrimSpace(c.GetHeader(HeaderDeviceID)),
			DeviceToken: strings.TrimSpace(c.GetHeader(HeaderDeviceToken)),
		})
		c.Set(ctxKeyIdentity, res.IdentityID)
		c.Set(ctxKeyMinted, res.Minted)

		h := c.Writer.Header()
		h.Set(HeaderDeviceID, res.IdentityID)
		if res.Token != "" {
			h.Set(HeaderDeviceToken, res.Token)
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by DeviceIdentity, or "" when
// none was resolved.
func IdentityFrom(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// IsMinted reports whether the identity was created for this request.
func IsMinted(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyMinted)
	b, _ := v.(bool)
	return b
}
