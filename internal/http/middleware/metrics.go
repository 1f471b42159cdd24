package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels stay bounded: path is the registered Gin route, or "unmatched" for
// 404/405 so scanners cannot blow up the series count.
var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "worldvibe",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status class.",
		},
		[]string{"method", "path", "class"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "worldvibe",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "worldvibe",
			Name:      "http_requests_inflight",
			Help:      "HTTP requests currently being served.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "worldvibe",
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size by route.",
			Buckets:   prometheus.ExponentialBuckets(128, 4, 7), // 128B..512KiB
		},
		[]string{"path"},
	)

	identitiesMinted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "worldvibe",
			Name:      "device_identities_minted_total",
			Help:      "Requests that arrived without a usable device identity and received a new one.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, identitiesMinted)
}

// unmatchedPath labels requests that hit no registered route.
const unmatchedPath = "unmatched"

// statusClass maps 201 to "2xx" and so on.
func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// Metrics instruments every request with Prometheus. It is installed ahead
// of DeviceIdentity and reads the minted flag after the chain has run.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, path, statusClass(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		// Size is -1 for hijacked (websocket) connections.
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(path).Observe(float64(size))
		}
		if IsMinted(c) {
			identitiesMinted.Inc()
		}
	}
}
