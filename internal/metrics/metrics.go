// Package metrics collects and exposes Prometheus metrics for the API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records API telemetry to a Prometheus registry. It implements
// the API chassis's MetricsCollector interface and adds webhook-specific
// counters consumed by the billing event handler.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	webhookEvents      *prometheus.CounterVec
	unresolvedCheckout prometheus.Counter
}

// NewCollector creates a Collector with its own registry, pre-registered
// with the Go runtime and process collectors.
func NewCollector(service string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gradboard_http_requests_total",
			Help:        "Total HTTP requests by method, endpoint, and status.",
			ConstLabels: prometheus.Labels{"service": service},
		}, []string{"method", "endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "gradboard_http_request_duration_seconds",
			Help:        "HTTP request latency in seconds.",
			ConstLabels: prometheus.Labels{"service": service},
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "gradboard_webhook_events_total",
			Help:        "Webhook events processed by source, type, and outcome.",
			ConstLabels: prometheus.Labels{"service": service},
		}, []string{"source", "event_type", "outcome"}),
		unresolvedCheckout: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "gradboard_checkout_unresolved_total",
			Help:        "Completed checkout events that could not be matched to a profile.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requestsTotal,
		c.requestDuration,
		c.webhookEvents,
		c.unresolvedCheckout,
	)

	return c
}

// RecordRequest records request latency and count for an endpoint.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, endpoint, status).Inc()
	c.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordWebhookEvent records a processed webhook event. outcome is one of
// "applied", "ignored", or "failed".
func (c *Collector) RecordWebhookEvent(source, eventType, outcome string) {
	c.webhookEvents.WithLabelValues(source, eventType, outcome).Inc()
}

// RecordUnresolvedCheckout counts a completed checkout event whose profile
// could not be resolved from metadata or customer email. These are silent
// no-ops at the HTTP layer, so the counter is the alerting signal.
func (c *Collector) RecordUnresolvedCheckout() {
	c.unresolvedCheckout.Inc()
}

// Handler returns the /metrics scrape endpoint for this collector's
// registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
