package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// readinessTimeout bounds each readiness probe.
const readinessTimeout = 2 * time.Second

// ReadinessResponse reports each probe's outcome.
type ReadinessResponse struct {
	Status string            `json:"status" example:"ok"`
	Checks map[string]string `json:"checks"`
}

// Health godoc
// @ID          health
// @Summary     Liveness probe
// @Tags        Health
// @Produce     json
// @Success     200  {object}  map[string]string
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

// Ready godoc
// @ID          ready
// @Summary     Readiness probe
// @Description Runs every dependency probe. Any failure returns 503.
// @Tags        Health
// @Produce     json
// @Success     200  {object}  handlers.ReadinessResponse
// @Failure     503  {object}  handlers.ReadinessResponse
// @Router      /health/ready [get]
func (h *Handlers) Ready(c *gin.Context) {
	names := make([]string, 0, len(h.d.Ready))
	for name := range h.d.Ready {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ReadinessResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		err := h.d.Ready[name](ctx)
		cancel()
		if err != nil {
			resp.Status = "unavailable"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	ok(c, status, resp)
}
