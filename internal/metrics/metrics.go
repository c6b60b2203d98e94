// Package metrics exposes the mapper's progress as prometheus gauges and
// counters (spec.md section 4.2's progress statistics), grounded on
// arx-os-arxos/arx-backend/gateway/metrics.go's MetricsCollector pattern,
// trimmed to the handful of series a batch search tool actually needs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the mapper's prometheus series, one per worker label.
type Collector struct {
	totalMappings    *prometheus.CounterVec
	invalidMappings  *prometheus.CounterVec
	validMappings    *prometheus.CounterVec
	bestCycles       *prometheus.GaugeVec
	bestEnergyPJ     *prometheus.GaugeVec
	bestUtilization  *prometheus.GaugeVec
}

// New registers and returns a Collector against the default registry.
func New() *Collector {
	return &Collector{
		totalMappings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "squareloop",
			Subsystem: "mapper",
			Name:      "mappings_total",
			Help:      "Total mapping ids visited by each worker.",
		}, []string{"worker"}),
		invalidMappings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "squareloop",
			Subsystem: "mapper",
			Name:      "mappings_invalid_total",
			Help:      "Invalid mappings (construction or evaluation failures) per worker.",
		}, []string{"worker"}),
		validMappings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "squareloop",
			Subsystem: "mapper",
			Name:      "mappings_valid_total",
			Help:      "Valid mappings evaluated per worker.",
		}, []string{"worker"}),
		bestCycles: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "squareloop",
			Subsystem: "mapper",
			Name:      "best_cycles",
			Help:      "Best cycles count found so far, per worker.",
		}, []string{"worker"}),
		bestEnergyPJ: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "squareloop",
			Subsystem: "mapper",
			Name:      "best_energy_pj",
			Help:      "Best energy-per-compute (pJ) found so far, per worker.",
		}, []string{"worker"}),
		bestUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "squareloop",
			Subsystem: "mapper",
			Name:      "best_utilization",
			Help:      "Best utilization (bank-conflict slowdown inverse) found so far, per worker.",
		}, []string{"worker"}),
	}
}

// Observe adds total/invalid/valid to one worker's counters and sets its
// gauges to the given best values.
func (c *Collector) Observe(worker string, total, invalid, valid uint64, cycles, energyPJ, utilization float64) {
	c.totalMappings.WithLabelValues(worker).Add(float64(total))
	c.invalidMappings.WithLabelValues(worker).Add(float64(invalid))
	c.validMappings.WithLabelValues(worker).Add(float64(valid))
	c.bestCycles.WithLabelValues(worker).Set(cycles)
	c.bestEnergyPJ.WithLabelValues(worker).Set(energyPJ)
	c.bestUtilization.WithLabelValues(worker).Set(utilization)
}
