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

	// EventsEmitted tracks domain events published on the bus.
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_emitted_total",
			Help: "Total domain events emitted on the event bus",
		},
		[]string{"kind"},
	)

	// SubscriberPanics tracks recovered panics in synchronous subscribers.
	SubscriberPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_subscriber_panics_total",
			Help: "Recovered panics in synchronous event subscribers",
		},
		[]string{"kind"},
	)

	// SideEffectsTotal tracks side-effect handler outcomes.
	SideEffectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effects_total",
			Help: "Side-effect handler executions by binding and outcome",
		},
		[]string{"binding", "outcome"},
	)

	// GatewayConnected reports whether the gateway connection is up.
	GatewayConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_connected",
			Help: "1 if the real-time gateway connection is established",
		},
	)

	// GatewayPublishes tracks messages published to gateway groups.
	GatewayPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_publishes_total",
			Help: "Messages published to gateway groups",
		},
		[]string{"type"},
	)

	// ReconnectAttempts tracks client reconnect attempts against the gateway.
	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnect_attempts_total",
			Help: "Connection attempts made by the realtime connection manager",
		},
	)

	// RefreshFanouts tracks refresh-domain notifications to UI consumers.
	RefreshFanouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refresh_fanouts_total",
			Help: "Refresh callbacks invoked per data domain",
		},
		[]string{"domain"},
	)

	// NegotiationsTotal tracks negotiation grant issuance.
	NegotiationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "negotiations_total",
			Help: "Negotiation grants issued by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordSideEffect records a side-effect handler outcome.
func RecordSideEffect(binding string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	SideEffectsTotal.WithLabelValues(binding, outcome).Inc()
}

// SetGatewayConnected records gateway connectivity.
func SetGatewayConnected(up bool) {
	if up {
		GatewayConnected.Set(1)
		return
	}
	GatewayConnected.Set(0)
}
