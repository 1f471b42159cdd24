// Per-device HTTP handlers.
//
//   - GET /me/streak    (current streak)
//   - GET /me/history   (recent check-ins, most recent first)
//   - GET /me/status    (whether a check-in is accepted now)
//
// All three are keyed by the device identity resolved by middleware.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackcurious/worldvibe-sub000/internal/streak"
	"github.com/stackcurious/worldvibe-sub000/internal/utils"
)

// StreakResponse is the current streak of the caller.
type StreakResponse struct {
	Streak int    `json:"streak" example:"3"`
	Day    string `json:"day" example:"2026-03-01"`
}

// HistoryResponse is one page of the caller's history.
type HistoryResponse struct {
	Entries []streak.Entry `json:"entries"`
	Offset  int            `json:"offset"`
	Limit   int            `json:"limit"`
	// NextOffset is set when another page may exist.
	NextOffset *int `json:"next_offset,omitempty"`
}

// StatusResponse reports whether the caller may submit now.
type StatusResponse struct {
	CanSubmit     bool       `json:"can_submit"`
	NextAllowedAt *time.Time `json:"next_allowed_at,omitempty"`
}

// History page bounds.
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GetStreak godoc
// @ID          getStreak
// @Summary     Current streak
// @Description Consecutive days with a check-in, ending today (1 when today has none yet).
// @Tags        Me
// @Produce     json
// @Param       X-Device-ID  header  string  false "Device identifier"  example(device-7f3a9c21)
// @Success     200  {object}  handlers.StreakResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /me/streak [get]
func (h *Handlers) GetStreak(c *gin.Context) {
	id, found := identityOf(c)
	if !found {
		return
	}
	today := h.now()
	n, err := h.d.Streaks.Streak(c.Request.Context(), id, today)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStreakFailed, "streak unavailable")
		return
	}
	ok(c, http.StatusOK, StreakResponse{Streak: n, Day: h.d.Streaks.DayKey(today)})
}

// GetHistory godoc
// @ID          getHistory
// @Summary     Check-in history
// @Description Returns the caller's recent check-ins, most recent first. Page with offset/limit.
// @Tags        Me
// @Produce     json
// @Param       X-Device-ID  header  string  false "Device identifier"  example(device-7f3a9c21)
// @Param       offset       query   int     false "Entries to skip"    minimum(0) default(0)
// @Param       limit        query   int     false "Page size"          minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.HistoryResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /me/history [get]
func (h *Handlers) GetHistory(c *gin.Context) {
	id, found := identityOf(c)
	if !found {
		return
	}
	offset, limit := utils.Page(c.Query("offset"), c.Query("limit"), defaultHistoryLimit, maxHistoryLimit)
	entries, err := h.d.Streaks.History(c.Request.Context(), id, offset, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeHistoryFailed, "history unavailable")
		return
	}
	if entries == nil {
		entries = []streak.Entry{}
	}
	resp := HistoryResponse{Entries: entries, Offset: offset, Limit: limit}
	if len(entries) == limit {
		next := offset + limit
		resp.NextOffset = &next
	}
	ok(c, http.StatusOK, resp)
}

// GetStatus godoc
// @ID          getStatus
// @Summary     Submission status
// @Description Reports whether a check-in would be accepted now, without reserving the slot.
// @Tags        Me
// @Produce     json
// @Param       X-Device-ID  header  string  false "Device identifier"  example(device-7f3a9c21)
// @Success     200  {object}  handlers.StatusResponse
// @Router      /me/status [get]
func (h *Handlers) GetStatus(c *gin.Context) {
	id, found := identityOf(c)
	if !found {
		return
	}
	dec := h.d.Status.Check(c.Request.Context(), id)
	resp := StatusResponse{CanSubmit: dec.Allowed}
	if !dec.Allowed && !dec.NextAllowedAt.IsZero() {
		next := dec.NextAllowedAt.UTC()
		resp.NextAllowedAt = &next
	}
	ok(c, http.StatusOK, resp)
}
