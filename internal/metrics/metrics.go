package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// StatusChanges counts observed status transitions by trigger and new kind
	StatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "status_changes_total", Help: "Status changes observed by the dispatcher."},
		[]string{"trigger", "kind"},
	)
	// AmbiguousPlates counts plates skipped because several movements share them
	AmbiguousPlates = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "status_ambiguous_plates_total", Help: "Plates matched by more than one movement during evaluation."},
	)
	// PushDeliveries counts push delivery outcomes
	PushDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "push_deliveries_total", Help: "Push deliveries by status."},
		[]string{"status"},
	)
	// PushLatency tracks push delivery latencies in milliseconds
	PushLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "push_delivery_latency_ms", Help: "Push delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"status"},
	)
	// SubscriptionsPruned counts subscriptions removed after a failed delivery
	SubscriptionsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "push_subscriptions_pruned_total", Help: "Subscriptions removed after a failed delivery."},
	)
	// RouteRequests counts routing provider outcomes
	RouteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_provider_requests_total", Help: "Routing provider calls by provider and outcome."},
		[]string{"provider", "outcome"},
	)
	// GeofenceRejections counts refused location samples by reason
	GeofenceRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "geofence_rejections_total", Help: "Rejected client location samples."},
		[]string{"reason"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(StatusChanges)
		Registry.MustRegister(AmbiguousPlates)
		Registry.MustRegister(PushDeliveries)
		Registry.MustRegister(PushLatency)
		Registry.MustRegister(SubscriptionsPruned)
		Registry.MustRegister(RouteRequests)
		Registry.MustRegister(GeofenceRejections)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
