// Package metrics defines the proxy's prometheus collectors, exposed on
// stats_addr alongside the /healthz and /status endpoints.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the proxy exports, built once at
// startup and threaded through the components that update it — no package
// singleton, matching the ambient logging/config style.
type Registry struct {
	ClientConnections prometheus.Gauge
	RequestsTotal     *prometheus.CounterVec
	BackendCoolingOff *prometheus.GaugeVec
	BackendInFlight   *prometheus.GaugeVec
	BatchSize         prometheus.Histogram
}

// NewRegistry builds and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		ClientConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "synchrotron_client_connections",
			Help: "Number of currently connected clients.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "synchrotron_requests_total",
			Help: "Total requests routed, by listener (in the pool label) and outcome.",
		}, []string{"pool", "outcome"}),
		BackendCoolingOff: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synchrotron_backend_coolingoff",
			Help: "1 if the backend is currently cooling off, else 0.",
		}, []string{"pool", "backend"}),
		BackendInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synchrotron_backend_inflight",
			Help: "Requests currently submitted to the backend and awaiting reply.",
		}, []string{"pool", "backend"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "synchrotron_batch_size",
			Help:    "Number of pipelined requests read per client batch.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
	}

	reg.MustRegister(
		m.ClientConnections,
		m.RequestsTotal,
		m.BackendCoolingOff,
		m.BackendInFlight,
		m.BatchSize,
	)
	return m
}
