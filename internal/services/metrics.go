package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the analysis run instrumentation.
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	LastRunTimestamp     prometheus.Gauge
	ConstituentsResolved prometheus.Gauge
	RunDuration          prometheus.Histogram
}

// NewMetrics creates and registers the analysis metrics on the given
// registerer. Tests pass a fresh registry to avoid cross-test collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nikkei",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Analysis runs by outcome.",
		}, []string{"outcome"}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nikkei",
			Subsystem: "analysis",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last successful analysis run.",
		}),
		ConstituentsResolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nikkei",
			Subsystem: "analysis",
			Name:      "constituents_resolved",
			Help:      "Constituents with a resolved observation in the last run.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nikkei",
			Subsystem: "analysis",
			Name:      "run_duration_seconds",
			Help:      "Wall time of analysis runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RunsTotal, m.LastRunTimestamp, m.ConstituentsResolved, m.RunDuration)
	}
	return m
}
