// Package metrics holds the Prometheus collectors of the allocator.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "allocator"

// Run outcomes used as the "outcome" label.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics groups every collector the engine and web layer report to.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Histogram
	InfeasibleChunks *prometheus.CounterVec
	StrategiesPerRun prometheus.Histogram
	LastAcceptedApr  prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. reg must also be a Gatherer for Handler to work;
// *prometheus.Registry is both.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total number of allocation runs by outcome",
		}, []string{"outcome"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Wall time of one allocation run",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		InfeasibleChunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "infeasible_chunks_total",
			Help:      "Chunks for which no strategy offered a positive APR, by reason and action",
		}, []string{"reason", "action"}),
		StrategiesPerRun: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "strategies_per_run",
			Help:      "Number of strategies in each snapshot",
			Buckets:   prometheus.LinearBuckets(1, 4, 8),
		}),
		LastAcceptedApr: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "last_accepted_apr",
			Help:      "Weighted APR of the last accepted plan, as a float approximation",
		}),
		gatherer: reg,
	}
}

var defaultMetrics = New(prometheus.NewRegistry())

// Default returns the process-wide collectors.
func Default() *Metrics {
	return defaultMetrics
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(outcome string, strategies int, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	m.StrategiesPerRun.Observe(float64(strategies))
}

// Handler exposes the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
