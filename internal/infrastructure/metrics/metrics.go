package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge's Prometheus collectors.
//
// A Metrics value is created once per bridge instance with its own registry,
// so tests can create independent instances without collector name clashes.
type Metrics struct {
	registry *prometheus.Registry

	// MessagesRouted counts inbound broker messages by dispatch kind
	// (status, details, message, devices_list, zone_set, device_refresh,
	// unhandled).
	MessagesRouted *prometheus.CounterVec

	// MessagesDropped counts inbound messages dropped due to malformed
	// payloads or topic shapes.
	MessagesDropped prometheus.Counter

	// Publishes counts outbound publishes by result (ok, error).
	Publishes *prometheus.CounterVec

	// Reconnects counts re-established broker sessions after a loss.
	Reconnects prometheus.Counter

	// ValidationErrors counts rejected zone control commands.
	ValidationErrors prometheus.Counter

	// UpstreamErrors counts failed or breaker-rejected forwards to the
	// cloud-side collaborator.
	UpstreamErrors prometheus.Counter
}

// New creates a Metrics instance backed by a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		MessagesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bhyve_bridge_messages_routed_total",
			Help: "Inbound broker messages dispatched, by kind.",
		}, []string{"kind"}),
		MessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "bhyve_bridge_messages_dropped_total",
			Help: "Inbound messages dropped due to malformed payload or topic.",
		}),
		Publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bhyve_bridge_publishes_total",
			Help: "Outbound publishes, by result.",
		}, []string{"result"}),
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "bhyve_bridge_reconnects_total",
			Help: "Broker sessions re-established after a connection loss.",
		}),
		ValidationErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "bhyve_bridge_command_validation_errors_total",
			Help: "Zone control commands rejected by validation.",
		}),
		UpstreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "bhyve_bridge_upstream_errors_total",
			Help: "Command forwards rejected or failed upstream.",
		}),
	}
}

// Handler returns an http.Handler serving this instance's registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
