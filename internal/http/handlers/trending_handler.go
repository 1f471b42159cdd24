// Trending HTTP handlers.
//
//   - GET /trending?type=global|emotion|region|hourly
package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackcurious/worldvibe-sub000/internal/cache"
	"github.com/stackcurious/worldvibe-sub000/internal/trending"
	"github.com/stackcurious/worldvibe-sub000/internal/utils"
)

// hourParamLayout is the accepted format of the hour query parameter.
const hourParamLayout = "2006010215"

// TrendingResponse is a ranked list of terms for one dimension.
type TrendingResponse struct {
	Type     string            `json:"type" example:"emotion"`
	Key      string            `json:"key,omitempty" example:"joy"`
	Keywords []TrendingKeyword `json:"keywords"`
}

// TrendingKeyword is one ranked keyword or two-word phrase.
type TrendingKeyword struct {
	Keyword string  `json:"keyword" example:"job offer"`
	Weight  float64 `json:"weight" example:"2.73"`
}

func trendingKeywords(members []cache.Member) []TrendingKeyword {
	out := make([]TrendingKeyword, 0, len(members))
	for _, m := range members {
		out = append(out, TrendingKeyword{Keyword: m.Member, Weight: m.Score})
	}
	return out
}

// GetTrending godoc
// @ID          getTrending
// @Summary     Trending keywords
// @Description Returns the highest-scoring note keywords, descending by score with ties ordered by keyword.
// @Tags        Trending
// @Produce     json
//
// @Param       type     query  string  false "Dimension"                         Enums(global, emotion, region, hourly) default(global)
// @Param       emotion  query  string  false "Emotion (type=emotion)"            example(joy)
// @Param       region   query  string  false "Region bucket (type=region)"       example(US-CA)
// @Param       hour     query  string  false "UTC hour YYYYMMDDHH (type=hourly)"  example(2026030108)
// @Param       limit    query  int     false "Max terms"                          minimum(1) maximum(100) default(10)
//
// @Success     200  {object}  handlers.TrendingResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid query"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /trending [get]
func (h *Handlers) GetTrending(c *gin.Context) {
	dim := trending.Dimension(strings.ToLower(strings.TrimSpace(c.DefaultQuery("type", "global"))))
	q := trending.Query{
		Dimension: dim,
		Limit:     utils.AtoiDefault(c.Query("limit"), 10),
	}
	switch dim {
	case trending.DimensionEmotion:
		q.Key = c.Query("emotion")
	case trending.DimensionRegion:
		q.Key = c.Query("region")
	case trending.DimensionHourly:
		if raw := strings.TrimSpace(c.Query("hour")); raw != "" {
			t, err := time.ParseInLocation(hourParamLayout, raw, time.UTC)
			if err != nil {
				fail(c, http.StatusBadRequest, ErrCodeBadRequest, "hour must be formatted YYYYMMDDHH")
				return
			}
			q.Hour = t
		} else {
			q.Hour = h.now()
		}
	}

	terms, err := h.d.Trending.Top(c.Request.Context(), q)
	if err != nil {
		if errors.Is(err, trending.ErrInvalidQuery) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeTrendingFailed, "trending unavailable")
		return
	}
	ok(c, http.StatusOK, TrendingResponse{Type: string(dim), Key: q.Key, Keywords: trendingKeywords(terms)})
}
