package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestFailEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	next := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)

	cases := []struct {
		name    string
		status  int
		write   func(*gin.Context)
		want    ErrorResponse
		logged  bool
		retryIn string
	}{
		{
			name:   "server error is logged",
			status: http.StatusInternalServerError,
			write:  func(c *gin.Context) { fail(c, http.StatusInternalServerError, ErrCodeInternal, "kaboom") },
			want:   ErrorResponse{RequestID: "rid-1", Code: ErrCodeInternal, Message: "kaboom"},
			logged: true,
		},
		{
			name:   "client error is not logged",
			status: http.StatusNotFound,
			write:  func(c *gin.Context) { Fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found") },
			want:   ErrorResponse{RequestID: "rid-1", Code: ErrCodeNotFound, Message: "route not found"},
		},
		{
			name:   "validation carries the field",
			status: http.StatusBadRequest,
			write: func(c *gin.Context) {
				failWith(c, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Message: "bad", Field: "intensity"})
			},
			want: ErrorResponse{RequestID: "rid-1", Code: ErrCodeValidation, Message: "bad", Field: "intensity"},
		},
		{
			name:   "rate limited carries next_allowed_at and Retry-After",
			status: http.StatusTooManyRequests,
			write: func(c *gin.Context) {
				retryAfter(c, 1500*time.Millisecond)
				failWith(c, http.StatusTooManyRequests, ErrorResponse{Code: ErrCodeRateLimited, Message: "slow down", NextAllowedAt: &next})
			},
			want:    ErrorResponse{RequestID: "rid-1", Code: ErrCodeRateLimited, Message: "slow down", NextAllowedAt: &next},
			retryIn: "2",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			r := gin.New()
			r.Use(func(c *gin.Context) {
				c.Writer.Header().Set("X-Request-ID", "rid-1")
				c.Set("logger", &logger)
				c.Next()
			})
			r.GET("/x", tc.write)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d", w.Code, tc.status)
			}
			var got ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("json: %v", err)
			}
			if got.RequestID != tc.want.RequestID || got.Code != tc.want.Code ||
				got.Message != tc.want.Message || got.Field != tc.want.Field {
				t.Fatalf("body = %+v, want %+v", got, tc.want)
			}
			if (got.NextAllowedAt == nil) != (tc.want.NextAllowedAt == nil) ||
				(got.NextAllowedAt != nil && !got.NextAllowedAt.Equal(*tc.want.NextAllowedAt)) {
				t.Fatalf("next_allowed_at = %v, want %v", got.NextAllowedAt, tc.want.NextAllowedAt)
			}
			if logged := strings.Contains(buf.String(), `"level":"error"`); logged != tc.logged {
				t.Fatalf("logged = %v, want %v: %s", logged, tc.logged, buf.String())
			}
			if tc.retryIn != "" && w.Header().Get("Retry-After") != tc.retryIn {
				t.Fatalf("Retry-After = %q, want %q", w.Header().Get("Retry-After"), tc.retryIn)
			}
		})
	}
}

func TestRetryAfterMinimumAndOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/soon", func(c *gin.Context) {
		retryAfter(c, 0)
		ok(c, http.StatusAccepted, gin.H{"queued": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/soon", nil))
	if w.Code != http.StatusAccepted || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("status=%d Retry-After=%q", w.Code, w.Header().Get("Retry-After"))
	}
	var body map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || !body["queued"] {
		t.Fatalf("body = %s (%v)", w.Body.String(), err)
	}
}
