package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestration core
type Metrics struct {
	registry *prometheus.Registry

	// Schema and registry metrics
	SchemaValidationsTotal *prometheus.CounterVec
	ToolRegistrationsTotal *prometheus.CounterVec
	OverlapWarningsTotal   prometheus.Counter

	// Planning metrics
	PlansTotal *prometheus.CounterVec

	// Execution metrics
	CallExecutionsTotal   *prometheus.CounterVec
	CallExecutionDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		SchemaValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_validations_total",
				Help: "Total number of schema validations",
			},
			[]string{"result"},
		),
		ToolRegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_registrations_total",
				Help: "Total number of tool registrations",
			},
			[]string{"status"},
		),
		OverlapWarningsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tool_overlap_warnings_total",
				Help: "Total number of advisory tool overlap warnings",
			},
		),
		PlansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plans_total",
				Help: "Total number of execution plan attempts",
			},
			[]string{"status"},
		),
		CallExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "call_executions_total",
				Help: "Total number of tool call executions",
			},
			[]string{"tool", "status"},
		),
		CallExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "call_execution_duration_seconds",
				Help:    "Duration of tool call executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_active",
				Help: "Number of orchestration sessions currently running",
			},
		),
		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_total",
				Help: "Total number of orchestration sessions started",
			},
		),
	}

	registry.MustRegister(
		m.SchemaValidationsTotal,
		m.ToolRegistrationsTotal,
		m.OverlapWarningsTotal,
		m.PlansTotal,
		m.CallExecutionsTotal,
		m.CallExecutionDuration,
		m.SessionsActive,
		m.SessionsTotal,
	)

	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
