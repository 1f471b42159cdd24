package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Domain metrics. HTTP metrics live in the middleware package.
var (
	checkIns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldvibe_checkins_total",
			Help: "Check-in submissions by outcome.",
		},
		[]string{"outcome"},
	)

	degradedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldvibe_degraded_events_total",
			Help: "Best-effort operations that failed or fell back.",
		},
		[]string{"component", "branch"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worldvibe_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		},
		[]string{"name"},
	)

	breakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldvibe_breaker_transitions_total",
			Help: "Circuit breaker state transitions.",
		},
		[]string{"name", "to"},
	)

	fanoutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worldvibe_fanout_branch_duration_seconds",
			Help:    "Duration of fan-out branches.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"branch", "result"},
	)

	trendingTerms = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "worldvibe_trending_terms_total",
			Help: "Terms extracted from notes and added to trending sets.",
		},
	)

	liveClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worldvibe_live_clients",
			Help: "Connected live broadcast clients.",
		},
	)

	analyticsPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldvibe_analytics_points_total",
			Help: "Time-series points by result (flushed, dropped, failed).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		checkIns, degradedEvents, breakerState, breakerTransitions,
		fanoutDuration, trendingTerms, liveClients, analyticsPoints,
	)
}

// CheckInOutcome counts one submission result such as "accepted",
// "replayed", "rate_limited", "invalid", "unavailable" or "failed".
func CheckInOutcome(outcome string) { checkIns.WithLabelValues(outcome).Inc() }

// Degraded counts a best-effort failure or fallback.
func Degraded(component, branch string) {
	degradedEvents.WithLabelValues(component, branch).Inc()
}

// BreakerState records a breaker's current state. state is the String form
// of resilience.State.
func BreakerState(name, state string) {
	v := 0.0
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	breakerState.WithLabelValues(name).Set(v)
	breakerTransitions.WithLabelValues(name, state).Inc()
}

// FanoutBranch observes one branch's duration.
func FanoutBranch(branch string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	fanoutDuration.WithLabelValues(branch, result).Observe(d.Seconds())
}

// TrendingTerms counts extracted terms.
func TrendingTerms(n int) { trendingTerms.Add(float64(n)) }

// LiveClients sets the live connection gauge.
func LiveClients(n int) { liveClients.Set(float64(n)) }

// AnalyticsPoints counts time-series points by result.
func AnalyticsPoints(result string, n int) {
	analyticsPoints.WithLabelValues(result).Add(float64(n))
}
