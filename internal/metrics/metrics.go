// Package metrics exposes Prometheus metrics for service mode.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5}

// Metrics tracks evaluations and reloads. Each instance owns its registry so
// several services can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	Evaluations        *prometheus.CounterVec
	Violations         *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	Reloads            *prometheus.CounterVec
	ReloadDuration     prometheus.Histogram
	Definitions        prometheus.Gauge
	NarrowedReferences prometheus.Gauge
}

// New creates a Metrics instance with every metric registered
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ontology_evaluations_total",
			Help: "Values evaluated, by operation and outcome",
		}, []string{"op", "outcome"}),
		Violations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ontology_violations_total",
			Help: "Violations reported, by severity",
		}, []string{"severity"}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ontology_evaluation_duration_seconds",
			Help:    "Duration of single evaluations",
			Buckets: durationBuckets,
		}),
		Reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ontology_reloads_total",
			Help: "Graph reloads, by result",
		}, []string{"result"}),
		ReloadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ontology_reload_duration_seconds",
			Help:    "Duration of graph reloads",
			Buckets: durationBuckets,
		}),
		Definitions: f.NewGauge(prometheus.GaugeOpts{
			Name: "ontology_definitions",
			Help: "Definitions in the active graph",
		}),
		NarrowedReferences: f.NewGauge(prometheus.GaugeOpts{
			Name: "ontology_narrowed_references",
			Help: "References narrowed incompatibly by the last reload",
		}),
	}
}

// ObserveEvaluation records one evaluation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveEvaluation(op string, start time.Time, accepted bool, bySeverity map[string]int) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	m.Evaluations.WithLabelValues(op, outcome).Inc()
	m.EvaluationDuration.Observe(time.Since(start).Seconds())
	for sev, n := range bySeverity {
		m.Violations.WithLabelValues(sev).Add(float64(n))
	}
}

// ObserveReload records one reload attempt
func (m *Metrics) ObserveReload(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Reloads.WithLabelValues(result).Inc()
	m.ReloadDuration.Observe(time.Since(start).Seconds())
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
