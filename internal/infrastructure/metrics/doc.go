// Package metrics exposes Prometheus counters for bridge observability.
//
// Each bridge instance owns its own registry; cmd wires the handler onto
// the metrics listener alongside /healthz.
package metrics
