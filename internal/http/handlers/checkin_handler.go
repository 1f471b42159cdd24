// Check-in HTTP handlers.
//
// This file exposes the write path:
//   - POST /check-ins   (submit today's check-in)
//
// The handler resolves the region from the request signals, hands the
// submission to the check-in service, and maps typed service errors to
// status codes: ValidationError → 400, RateLimitedError → 429,
// ErrStoreUnavailable and transient PersistenceError → 503, anything else
// → 500.
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
	"github.com/stackcurious/worldvibe-sub000/internal/http/middleware"
	"github.com/stackcurious/worldvibe-sub000/internal/identity"
	"github.com/stackcurious/worldvibe-sub000/internal/services"
)

// unavailableRetryAfter is sent with 503 responses.
const unavailableRetryAfter = 5 * time.Second

//
// DTOs
//

// CheckInRequest is the JSON payload for submitting a check-in.
type CheckInRequest struct {
	// Emotion is a canonical emotion or a registered alias (case-insensitive).
	Emotion string `json:"emotion" example:"happy"`
	// Intensity is 1..5.
	Intensity int `json:"intensity" example:"4"`
	// Note is optional free text (at most 280 characters).
	Note string `json:"note,omitempty" example:"finally got the job offer today"`
	// Region is an optional declared region code ("FR" or "US-CA").
	Region string `json:"region,omitempty" example:"US-CA"`
	// Timezone is an optional IANA timezone name.
	Timezone string `json:"timezone,omitempty" example:"America/Los_Angeles"`
	// Latitude and Longitude are optional and must be sent together.
	Latitude  *float64 `json:"latitude,omitempty" example:"37.77"`
	Longitude *float64 `json:"longitude,omitempty" example:"-122.42"`
	// Timestamp is when the client felt it; defaults to the accept time.
	Timestamp *time.Time `json:"timestamp,omitempty" example:"2026-03-01T08:15:00Z"`
}

// CheckInResponse is returned for accepted and replayed check-ins.
type CheckInResponse struct {
	ID            string         `json:"id" example:"4b1f1c1e-3f1c-4d7e-9a55-0c8f3f0d2a11"`
	Emotion       domain.Emotion `json:"emotion" example:"joy"`
	Intensity     int            `json:"intensity" example:"4"`
	Region        string         `json:"region" example:"US-CA"`
	Timestamp     time.Time      `json:"timestamp"`
	AcceptedAt    time.Time      `json:"accepted_at"`
	Streak        int            `json:"streak" example:"3"`
	NextAllowedAt time.Time      `json:"next_allowed_at"`
	Replayed      bool           `json:"replayed,omitempty"`
}

func checkInResponse(r *services.Result) CheckInResponse {
	c := r.CheckIn
	return CheckInResponse{
		ID:            c.ID,
		Emotion:       c.Emotion,
		Intensity:     c.Intensity,
		Region:        c.RegionBucket,
		Timestamp:     c.OccurredAt,
		AcceptedAt:    c.AcceptedAt,
		Streak:        r.Streak,
		NextAllowedAt: r.NextAllowedAt,
		Replayed:      r.Replayed,
	}
}

//
// Handlers
//

// SubmitCheckIn godoc
// @ID          submitCheckIn
// @Summary     Submit today's check-in
// @Description Accepts one emotional check-in per device per 24h window. Replays with the same Idempotency-Key return the original check-in with 200.
// @Tags        CheckIns
// @Accept      json
// @Produce     json
//
// @Param       X-Device-ID      header  string  false "Device identifier"                 example(device-7f3a9c21)
// @Param       X-Device-Token   header  string  false "Signed device token"
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(2b7e1516-28ae)
// @Param       body             body    handlers.CheckInRequest  true  "Check-in payload"
//
// @Success     201  {object}  handlers.CheckInResponse
// @Success     200  {object}  handlers.CheckInResponse  "Idempotent replay"
// @Header      201  {string}  X-Device-ID     "Resolved device identifier"
// @Header      201  {string}  X-Device-Token  "Issued device token (when enabled)"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     429  {object}  handlers.ErrorResponse  "Already checked in this window"
// @Header      429  {string}  Retry-After  "Seconds until the next allowed submission"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /check-ins [post]
func (h *Handlers) SubmitCheckIn(c *gin.Context) {
	var req CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	id, found := identityOf(c)
	if !found {
		return
	}
	ctx := c.Request.Context()

	timezone := strings.TrimSpace(req.Timezone)
	if timezone == "" {
		timezone = strings.TrimSpace(c.GetHeader("X-Timezone"))
	}
	region := h.d.Regions.ResolveRegion(ctx, id, identity.Request{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Region:    req.Region,
		Timezone:  timezone,
		Locale:    locale(c),
	})

	key, _ := middleware.GetIdempotencyKey(c)
	res, err := h.d.CheckIns.Submit(ctx, services.Submission{
		IdentityID:     id,
		Emotion:        req.Emotion,
		Intensity:      req.Intensity,
		Note:           req.Note,
		Region:         region,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		OccurredAt:     req.Timestamp,
		IdempotencyKey: key,
	})
	if err != nil {
		h.submitError(c, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	ok(c, status, checkInResponse(res))
}

func (h *Handlers) submitError(c *gin.Context, err error) {
	var (
		verr *services.ValidationError
		rerr *services.RateLimitedError
		perr *services.PersistenceError
	)
	switch {
	case errors.As(err, &verr):
		failWith(c, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeValidation,
			Message: verr.Error(),
			Field:   verr.Field,
		})
	case errors.As(err, &rerr):
		next := rerr.NextAllowedAt.UTC()
		retryAfter(c, rerr.RetryAfter(h.now()))
		failWith(c, http.StatusTooManyRequests, ErrorResponse{
			Code:          ErrCodeRateLimited,
			Message:       "one check-in per day; try again later",
			NextAllowedAt: &next,
		})
	case errors.Is(err, services.ErrStoreUnavailable),
		errors.As(err, &perr) && perr.Transient:
		retryAfter(c, unavailableRetryAfter)
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "check-in store unavailable, retry later")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("check-in failed")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}
