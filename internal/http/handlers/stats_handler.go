// Reference and aggregate HTTP handlers.
//
//   - GET /emotions        (canonical emotions and their aliases)
//   - GET /stats/regions   (check-in counts per region and emotion)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stackcurious/worldvibe-sub000/internal/domain"
	"github.com/stackcurious/worldvibe-sub000/internal/services"
	"github.com/stackcurious/worldvibe-sub000/internal/utils"
)

// EmotionInfo describes one canonical emotion.
type EmotionInfo struct {
	Value   domain.Emotion `json:"value" example:"joy"`
	Label   string         `json:"label" example:"Joy"`
	Aliases []string       `json:"aliases"`
}

// RegionStatsResponse is the region grid over the last Hours hours.
type RegionStatsResponse struct {
	Hours   int                      `json:"hours" example:"24"`
	Regions []services.RegionSummary `json:"regions"`
}

// ListEmotions godoc
// @ID          listEmotions
// @Summary     Emotion catalogue
// @Description Lists the canonical emotions with their display labels and accepted aliases.
// @Tags        Reference
// @Produce     json
// @Success     200  {array}  handlers.EmotionInfo
// @Router      /emotions [get]
func (h *Handlers) ListEmotions(c *gin.Context) {
	out := make([]EmotionInfo, 0, len(domain.Emotions))
	for _, e := range domain.Emotions {
		out = append(out, EmotionInfo{Value: e, Label: e.DisplayName(), Aliases: e.Aliases()})
	}
	ok(c, http.StatusOK, out)
}

// RegionStats godoc
// @ID          regionStats
// @Summary     Region grid
// @Description Aggregates check-ins per region and emotion over a trailing window, with each region's dominant emotion.
// @Tags        Stats
// @Produce     json
// @Param       hours  query  int  false "Trailing window in hours"  minimum(1) maximum(168) default(24)
// @Success     200  {object}  handlers.RegionStatsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /stats/regions [get]
func (h *Handlers) RegionStats(c *gin.Context) {
	hours := utils.AtoiDefault(c.Query("hours"), services.DefaultGridHours)
	switch {
	case hours < 1:
		hours = services.DefaultGridHours
	case hours > services.MaxGridHours:
		hours = services.MaxGridHours
	}
	grid, err := h.d.Stats.RegionGrid(c.Request.Context(), hours)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "region stats unavailable")
		return
	}
	ok(c, http.StatusOK, RegionStatsResponse{Hours: hours, Regions: grid})
}
