// Package metrics exposes Prometheus instrumentation for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics holds the relay's Prometheus collectors
type RelayMetrics struct {
	registry *prometheus.Registry

	FramesTotal         *prometheus.CounterVec
	ActiveConnections   *prometheus.GaugeVec
	PendingRequests     prometheus.Gauge
	OrphansSweptTotal   prometheus.Counter
	DeliveryErrorsTotal *prometheus.CounterVec
}

// NewRelayMetrics creates and registers the relay collectors on a private
// registry.
func NewRelayMetrics() *RelayMetrics {
	r := prometheus.NewRegistry()
	m := &RelayMetrics{
		registry: r,
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "screenrelay",
			Name:      "frames_total",
			Help:      "Total frames processed by kind",
		}, []string{"kind"}),
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "screenrelay",
			Name:      "active_connections",
			Help:      "Live connections by role",
		}, []string{"role"}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "screenrelay",
			Name:      "pending_requests",
			Help:      "Capture requests awaiting an answer",
		}),
		OrphansSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "screenrelay",
			Name:      "orphans_swept_total",
			Help:      "Total orphaned requests reclaimed by the sweep",
		}),
		DeliveryErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "screenrelay",
			Name:      "delivery_errors_total",
			Help:      "Total delivery failures by reason",
		}, []string{"reason"}),
	}
	r.MustRegister(m.FramesTotal, m.ActiveConnections, m.PendingRequests,
		m.OrphansSweptTotal, m.DeliveryErrorsTotal)
	return m
}

// Registry returns the private registry for the /metrics handler
func (m *RelayMetrics) Registry() *prometheus.Registry { return m.registry }
