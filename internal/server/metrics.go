// internal/server/metrics.go
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"webpilot/api/schemas"
)

// Metrics holds the Prometheus instruments for the automation surface. A
// dedicated registry keeps the scrape free of default Go runtime collectors
// registered elsewhere in the process.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	stepOutcomes    *prometheus.CounterVec
}

// NewMetrics builds the instrument set. activeSessions is sampled at scrape
// time for the session gauge.
func NewMetrics(activeSessions func() int) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webpilot_interact_requests_total",
			Help: "Interact requests handled, by HTTP status code.",
		}, []string{"status"}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "webpilot_interact_request_duration_seconds",
			Help:    "End-to-end interact request latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		stepOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "webpilot_action_steps_total",
			Help: "Executed plan steps, by action type and outcome.",
		}, []string{"action", "outcome"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "webpilot_browser_sessions_active",
		Help: "Browser sessions currently open.",
	}, func() float64 {
		return float64(activeSessions())
	})

	return m
}

func (m *Metrics) ObserveRequest(status int, elapsed time.Duration) {
	m.requests.WithLabelValues(strconv.Itoa(status)).Inc()
	m.requestDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveStep(action schemas.ActionType, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.stepOutcomes.WithLabelValues(string(action), outcome).Inc()
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
