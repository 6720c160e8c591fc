package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for certificate operations.
type Metrics struct {
	Operations *prometheus.CounterVec
	UnitsMoved *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
}

// New creates and registers all certificate metrics.
func New() *Metrics {
	return &Metrics{
		Operations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gc_registry_certificate_operations_total",
			Help: "Certificate operations by type and outcome",
		}, []string{"operation", "outcome"}),
		UnitsMoved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gc_registry_certificate_units_total",
			Help: "Certificate units moved by operation type",
		}, []string{"operation"}),
		Duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gc_registry_certificate_operation_seconds",
			Help:    "Certificate operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Observe records one completed operation.
func (m *Metrics) Observe(operation, outcome string, units uint64, seconds float64) {
	m.Operations.WithLabelValues(operation, outcome).Inc()
	if units > 0 {
		m.UnitsMoved.WithLabelValues(operation).Add(float64(units))
	}
	m.Duration.WithLabelValues(operation).Observe(seconds)
}
