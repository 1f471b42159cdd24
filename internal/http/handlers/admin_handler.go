// Operator HTTP handlers, mounted behind middleware.AdminAuth.
//
//   - GET  /admin/breakers
//   - POST /admin/breakers/:name/open
//   - POST /admin/breakers/:name/close
//   - POST /admin/breakers/:name/reset
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stackcurious/worldvibe-sub000/internal/http/middleware"
	"github.com/stackcurious/worldvibe-sub000/internal/resilience"
)

// BreakersResponse lists every registered circuit breaker.
type BreakersResponse struct {
	Breakers []resilience.Snapshot `json:"breakers"`
}

// ListBreakers godoc
// @ID          listBreakers
// @Summary     Circuit breaker states
// @Tags        Admin
// @Produce     json
// @Security    AdminBearer
// @Success     200  {object}  handlers.BreakersResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /admin/breakers [get]
func (h *Handlers) ListBreakers(c *gin.Context) {
	var list []resilience.Snapshot
	if h.d.Breakers != nil {
		list = h.d.Breakers.Snapshots()
	}
	if list == nil {
		list = []resilience.Snapshot{}
	}
	ok(c, http.StatusOK, BreakersResponse{Breakers: list})
}

// ControlBreaker godoc
// @ID          controlBreaker
// @Summary     Force a breaker open, closed, or reset it
// @Tags        Admin
// @Produce     json
// @Security    AdminBearer
// @Param       name    path  string  true  "Breaker name"  example(durable-store)
// @Param       action  path  string  true  "Action"        Enums(open, close, reset)
// @Success     200  {object}  resilience.Snapshot
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown action"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown breaker"
// @Router      /admin/breakers/{name}/{action} [post]
func (h *Handlers) ControlBreaker(c *gin.Context) {
	name := c.Param("name")
	action := c.Param("action")

	if h.d.Breakers == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown breaker")
		return
	}
	b, found := h.d.Breakers.Lookup(name)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown breaker")
		return
	}

	switch action {
	case "open":
		b.ForceOpen()
	case "close":
		b.ForceClose()
	case "reset":
		b.Reset()
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action must be open, close or reset")
		return
	}
	middleware.LoggerFrom(c).Warn().
		Str("breaker", name).
		Str("action", action).
		Str("state", b.State().String()).
		Msg("breaker overridden")

	ok(c, http.StatusOK, b.Snapshot())
}
