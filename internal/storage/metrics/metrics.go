package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for storage operations.
type Metrics struct {
	Operations *prometheus.CounterVec
	EnergyWh   *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// New creates and registers all storage metrics.
func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gc_registry_storage_operations_total",
			Help: "Storage operations by type and outcome",
		}, []string{"operation", "outcome"}),
		EnergyWh: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gc_registry_storage_energy_wh_total",
			Help: "Energy recorded or allocated in watt hours by operation type",
		}, []string{"operation"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gc_registry_storage_operation_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Observe records one completed operation.
func (m *Metrics) Observe(operation, outcome string, wh uint64, seconds float64) {
	m.Operations.WithLabelValues(operation, outcome).Inc()
	if wh > 0 {
		m.EnergyWh.WithLabelValues(operation).Add(float64(wh))
	}
	m.Duration.WithLabelValues(operation).Observe(seconds)
}
