package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "worldvibe"

// ErrTokensDisabled is returned by Issue when no signing secret is set.
var ErrTokensDisabled = errors.New("identity: device tokens disabled")

// Tokens issues and verifies HS256 device tokens whose subject is the
// anonymous identity. A token lets a client keep its identity without
// storing the raw id.
type Tokens struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

// NewTokens returns nil when secret is empty.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if secret == "" {
		return nil
	}
	return &Tokens{Secret: []byte(secret), TTL: ttl, Now: time.Now}
}

func (t *Tokens) now() time.Time {
	if t.Now == nil {
		return time.Now()
	}
	return t.Now()
}

// Issue signs a token for identity.
func (t *Tokens) Issue(identity string) (string, error) {
	if t == nil || len(t.Secret) == 0 {
		return "", ErrTokensDisabled
	}
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:  identity,
		Issuer:   tokenIssuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if t.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.TTL))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
}

// Verify returns the identity carried by a valid token.
func (t *Tokens) Verify(raw string) (string, error) {
	if t == nil || len(t.Secret) == 0 {
		return "", ErrTokensDisabled
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return t.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("verify device token: %w", err)
	}
	if !ValidID(claims.Subject) {
		return "", errors.New("verify device token: malformed subject")
	}
	return claims.Subject, nil
}
