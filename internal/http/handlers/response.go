package handlers

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackcurious/worldvibe-sub000/internal/http/middleware"
)

// ErrorResponse is the error envelope of every endpoint. Field is set for
// validation_failed, NextAllowedAt for 429.
type ErrorResponse struct {
	RequestID     string     `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code          string     `json:"code" example:"validation_failed"`
	Message       string     `json:"message" example:"invalid intensity: must be between 1 and 5"`
	Field         string     `json:"field,omitempty" example:"intensity"`
	NextAllowedAt *time.Time `json:"next_allowed_at,omitempty" example:"2026-03-02T08:15:00Z"`
}

// fail aborts with the error envelope.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Message: msg})
}

// failWith is fail for envelopes carrying extra fields.
func failWith(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = middleware.RequestIDFrom(c)
	if resp.RequestID == "" {
		resp.RequestID = c.Writer.Header().Get("X-Request-ID")
	}
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("route", c.FullPath()).
			Msg(resp.Message)
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail lets the router answer NoRoute and NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// retryAfter sets Retry-After in whole seconds, rounded up, at least 1.
func retryAfter(c *gin.Context, d time.Duration) {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
}
