// Package metrics exposes the lifecycle counters of the compliance engine to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/retail-compliance/internal/application/service"
)

const namespace = "compliance"

// Metrics implements service.Metrics on a Prometheus registry
type Metrics struct {
	registry *prometheus.Registry

	stepRuns      *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepChanged   *prometheus.CounterVec
	stepErrors    *prometheus.CounterVec
	penalties     *prometheus.CounterVec
	notifications *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	lastTick      prometheus.Gauge
}

// New registers every collector on a fresh registry, together with the Go and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		stepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_runs_total",
			Help:      "Lifecycle step executions by step and result (ok, partial, aborted).",
		}, []string{"step", "result"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of lifecycle steps.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"step"}),
		stepChanged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_changed_total",
			Help:      "Instances created or transitioned by each step.",
		}, []string{"step"}),
		stepErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_errors_total",
			Help:      "Per-instance failures recorded by each step.",
		}, []string{"step"}),
		penalties: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "penalties_total",
			Help:      "Penalty writes by reason and outcome (created, duplicate).",
		}, []string{"reason", "outcome"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts by event type and status.",
		}, []string{"event_type", "status"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Instance state transitions.",
		}, []string{"from", "to"}),
		lastTick: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_tick_timestamp_seconds",
			Help:      "Unix time of the last completed generate step.",
		}),
	}
}

// ObserveStep implements service.Metrics
func (m *Metrics) ObserveStep(step string, report *service.StepReport, elapsed time.Duration) {
	result := "ok"
	switch {
	case report.Aborted():
		result = "aborted"
	case report.Failed() > 0:
		result = "partial"
	}
	m.stepRuns.WithLabelValues(step, result).Inc()
	m.stepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
	m.stepChanged.WithLabelValues(step).Add(float64(report.Changed))
	m.stepErrors.WithLabelValues(step).Add(float64(report.Failed()))
	if step == service.StepGenerate {
		m.lastTick.SetToCurrentTime()
	}
}

// IncPenalty implements service.Metrics
func (m *Metrics) IncPenalty(reason, outcome string) {
	m.penalties.WithLabelValues(reason, outcome).Inc()
}

// IncNotification implements service.Metrics
func (m *Metrics) IncNotification(eventType, status string) {
	m.notifications.WithLabelValues(eventType, status).Inc()
}

// IncTransition implements service.Metrics
func (m *Metrics) IncTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ service.Metrics = (*Metrics)(nil)
