package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestIdempotencyHelpers_Defaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, found := GetIdempotencyKey(c); k != "" || found {
		t.Fatalf("empty context: key=%q found=%v", k, found)
	}
	if IsReplay(c) {
		t.Fatalf("IsReplay should default to false")
	}
	c.Set(ctxKeyIdemKey, 123)
	if _, found := GetIdempotencyKey(c); found {
		t.Fatalf("non-string key must read as absent")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("non-bool replay flag must read as false")
	}
	c.Set(ctxKeyIdemReplay, true)
	if !IsReplay(c) {
		t.Fatalf("IsReplay should be true")
	}

	if got := IdentityFrom(c); got != "" {
		t.Fatalf("IdentityFrom without identity: %q", got)
	}
	c.Set(ctxKeyIdentity, "device-0001")
	if got := IdentityFrom(c); got != "device-0001" {
		t.Fatalf("IdentityFrom = %q", got)
	}
}

// idemEngine installs a fixed identity (when non-empty) ahead of the validator.
func idemEngine(identityID string, opts IdempotencyOptions, lookup IdempotencyLookup, h gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if identityID != "" {
		r.Use(func(c *gin.Context) { c.Set(ctxKeyIdentity, identityID); c.Next() })
	}
	r.Use(IdempotencyValidator(opts, lookup))
	r.Any("/check-ins", h)
	return r
}

func sendIdem(r http.Handler, method, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, "/check-ins", strings.NewReader("{}"))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator_Rejections(t *testing.T) {
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"default max", IdempotencyOptions{}, strings.Repeat("a", 201)},
		{"custom pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
		{"default pattern", IdempotencyOptions{}, "has space/slash"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := idemEngine("", tc.opts, nil, func(c *gin.Context) {
				t.Fatalf("handler must not run")
			})
			w := sendIdem(r, http.MethodPost, tc.key)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["code"] != "bad_idempotency_key" {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_SafeMethodsIgnoreHeader(t *testing.T) {
	r := idemEngine("device-0001", IdempotencyOptions{}, func(context.Context, string, string, time.Time) (bool, error) {
		t.Fatalf("lookup must not run for GET")
		return false, nil
	}, func(c *gin.Context) {
		if _, found := GetIdempotencyKey(c); found {
			t.Fatalf("GET must not stash a key")
		}
		c.Status(http.StatusOK)
	})
	if w := sendIdem(r, http.MethodGet, "not valid!"); w.Code != http.StatusOK {
		t.Fatalf("GET with junk key = %d, want 200", w.Code)
	}
}

func TestIdempotencyValidator_StashesTrimmedKey(t *testing.T) {
	r := idemEngine("", IdempotencyOptions{}, nil, func(c *gin.Context) {
		key, found := GetIdempotencyKey(c)
		if !found || key != "abc-123" {
			t.Fatalf("key = %q found=%v", key, found)
		}
		if IsReplay(c) || IsRateBypass(c) {
			t.Fatalf("no lookup must mean no replay")
		}
		c.Status(http.StatusOK)
	})
	if w := sendIdem(r, http.MethodPost, "  abc-123 "); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestIdempotencyValidator_Lookup(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.FixedZone("x", 3600))

	t.Run("no identity skips lookup", func(t *testing.T) {
		r := idemEngine("", IdempotencyOptions{}, func(context.Context, string, string, time.Time) (bool, error) {
			t.Fatalf("lookup must not run without an identity")
			return false, nil
		}, func(c *gin.Context) { c.Status(http.StatusOK) })
		if w := sendIdem(r, http.MethodPost, "key-1"); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("miss", func(t *testing.T) {
		lookup := func(_ context.Context, identityID, key string, now time.Time) (bool, error) {
			if identityID != "device-0001" || key != "key-1" {
				t.Fatalf("lookup args: %q %q", identityID, key)
			}
			if !now.Equal(fixed) || now.Location() != time.UTC {
				t.Fatalf("lookup time = %v, want %v in UTC", now, fixed)
			}
			return false, nil
		}
		opts := IdempotencyOptions{Now: func() time.Time { return fixed }}
		r := idemEngine("device-0001", opts, lookup, func(c *gin.Context) {
			if IsReplay(c) || IsRateBypass(c) {
				t.Fatalf("miss must not flag replay")
			}
			c.Status(http.StatusCreated)
		})
		if w := sendIdem(r, http.MethodPost, "key-1"); w.Code != http.StatusCreated {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("lookup error is a miss", func(t *testing.T) {
		lookup := func(context.Context, string, string, time.Time) (bool, error) {
			return false, errors.New("database is locked")
		}
		r := idemEngine("device-0001", IdempotencyOptions{}, lookup, func(c *gin.Context) {
			if IsReplay(c) {
				t.Fatalf("failed lookup must not flag replay")
			}
			c.Status(http.StatusCreated)
		})
		if w := sendIdem(r, http.MethodPost, "key-1"); w.Code != http.StatusCreated {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("hit flags replay and bypass", func(t *testing.T) {
		lookup := func(context.Context, string, string, time.Time) (bool, error) { return true, nil }
		r := idemEngine("device-0009", IdempotencyOptions{}, lookup, func(c *gin.Context) {
			if !IsReplay(c) || !IsRateBypass(c) {
				t.Fatalf("hit must flag replay and rate bypass")
			}
			c.Status(http.StatusOK)
		})
		if w := sendIdem(r, http.MethodPost, "k-9"); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	})
}
