// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesTotal tracks messages accepted by the store gateway.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages sent",
		},
		[]string{"origin"},
	)

	// StatusTransitionsTotal tracks persisted message status transitions.
	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "message_status_transitions_total",
			Help: "Total message status transitions applied",
		},
		[]string{"status"},
	)

	// StatusRetriesExhaustedTotal tracks status updates dropped after retries.
	StatusRetriesExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_status_retries_exhausted_total",
			Help: "Status updates abandoned after bounded retries",
		},
	)

	// ReconnectsTotal tracks realtime subscription reconnect attempts.
	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_reconnects_total",
			Help: "Realtime subscription reconnect attempts",
		},
		[]string{"outcome"},
	)

	// WSConnectionsActive tracks active websocket connections.
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of active websocket connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
