// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records session, registration and HTTP metrics. It implements
// session.Metrics.
type Collector struct {
	operations     *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	activeSessions prometheus.Gauge
	registrations  *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhub_session_operations_total",
			Help: "Session operations by name and result.",
		}, []string{"op", "result"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhub_profile_resolutions_total",
			Help: "Profile resolutions by outcome.",
		}, []string{"outcome"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eventhub_active_sessions",
			Help: "Session managers currently held in memory.",
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhub_event_registrations_total",
			Help: "Event registration changes by action.",
		}, []string{"action"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventhub_http_requests_total",
			Help: "HTTP responses by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventhub_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.operations,
		c.resolutions,
		c.activeSessions,
		c.registrations,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// ObserveOperation counts a session operation.
func (c *Collector) ObserveOperation(op string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.operations.WithLabelValues(op, result).Inc()
}

// ObserveProfileResolution counts how a profile was resolved.
func (c *Collector) ObserveProfileResolution(outcome string) {
	c.resolutions.WithLabelValues(outcome).Inc()
}

// SetActiveSessions sets the live session manager count.
func (c *Collector) SetActiveSessions(n int) {
	c.activeSessions.Set(float64(n))
}

// RecordRegistration counts an event registration ("register") or
// cancellation ("unregister").
func (c *Collector) RecordRegistration(action string) {
	c.registrations.WithLabelValues(action).Inc()
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
