package projector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// projectionLag is the number of ledger events the read view still has to
// apply, sampled after every projection pass.
var projectionLag = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "gc_registry_projection_lag_events",
	Help: "Ledger events not yet applied to the read view",
})
