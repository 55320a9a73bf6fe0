// Package metrics exposes Prometheus collectors for the attendance agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the agent's Prometheus metrics
type Collector struct {
	clockOps          *prometheus.CounterVec
	refreshes         *prometheus.CounterVec
	refreshFailures   *prometheus.CounterVec
	locationFallbacks *prometheus.CounterVec
	remoteLatency     prometheus.Histogram
	inFlight          prometheus.Gauge
}

// NewCollector creates and registers the agent metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		clockOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_clock_operations_total",
			Help: "Clock-in/out operations by kind and result",
		}, []string{"kind", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_view_refreshes_total",
			Help: "Cached view refresh attempts by view and trigger",
		}, []string{"view", "trigger"}),
		refreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_view_refresh_failures_total",
			Help: "Cached view refreshes that failed and retained the prior value",
		}, []string{"view"}),
		locationFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_location_fallbacks_total",
			Help: "Location acquisitions that fell back, by substituted source",
		}, []string{"source"}),
		remoteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "attendance_remote_call_seconds",
			Help:    "Remote attendance API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "attendance_operations_in_flight",
			Help: "Clock operations currently holding an in-flight token",
		}),
	}

	reg.MustRegister(
		c.clockOps,
		c.refreshes,
		c.refreshFailures,
		c.locationFallbacks,
		c.remoteLatency,
		c.inFlight,
	)

	return c
}

// RecordClockOp records the outcome of a clock operation
func (c *Collector) RecordClockOp(kind, result string) {
	c.clockOps.WithLabelValues(kind, result).Inc()
}

// RecordRefresh records a view refresh attempt
func (c *Collector) RecordRefresh(view, trigger string) {
	c.refreshes.WithLabelValues(view, trigger).Inc()
}

// RecordRefreshFailure records a tolerated view refresh failure
func (c *Collector) RecordRefreshFailure(view string) {
	c.refreshFailures.WithLabelValues(view).Inc()
}

// RecordLocationFallback records a location fallback by substituted source
func (c *Collector) RecordLocationFallback(source string) {
	c.locationFallbacks.WithLabelValues(source).Inc()
}

// ObserveRemoteCall records the latency of one remote API round-trip
func (c *Collector) ObserveRemoteCall(seconds float64) {
	c.remoteLatency.Observe(seconds)
}

// OpStarted increments the in-flight gauge
func (c *Collector) OpStarted() {
	c.inFlight.Inc()
}

// OpFinished decrements the in-flight gauge
func (c *Collector) OpFinished() {
	c.inFlight.Dec()
}

// Handler returns the HTTP handler serving the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
