// Package metrics exposes pipeline and scheduler activity as prometheus
// collectors. Every Metrics value owns its registry, so several apps can
// live in one process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vk/flowgrid/internal/entity"
)

// Metrics implements pipeline.Observer and scheduler.Observer.
type Metrics struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	missed   *prometheus.CounterVec
	runTime  *prometheus.HistogramVec
	entities *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowgrid_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"pipeline", "result"}),
		missed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowgrid_runs_missed_total",
			Help: "Ticks whose anchor had already passed when they were computed.",
		}, []string{"pipeline"}),
		runTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowgrid_run_duration_seconds",
			Help:    "Wall-clock duration of pipeline runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"pipeline"}),
		entities: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowgrid_entity_duration_seconds",
			Help:    "Execution time of individual sources, aggregators and sinks.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"stage", "id"}),
	}
	m.registry.MustRegister(m.runs, m.missed, m.runTime, m.entities)
	return m
}

// Registry returns the registry holding the flowgrid collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveEntity records one entity execution.
func (m *Metrics) ObserveEntity(kind entity.Kind, id string, duration time.Duration) {
	m.entities.WithLabelValues(string(kind), id).Observe(duration.Seconds())
}

// RunFinished records the outcome of one scheduled run.
func (m *Metrics) RunFinished(name string, err error, duration time.Duration) {
	result := "passed"
	if err != nil {
		result = "failed"
	}
	m.runs.WithLabelValues(name, result).Inc()
	m.runTime.WithLabelValues(name).Observe(duration.Seconds())
}

// RunMissed records one missed tick.
func (m *Metrics) RunMissed(name string) {
	m.missed.WithLabelValues(name).Inc()
}
