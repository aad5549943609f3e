// Package metrics exposes Prometheus collectors for tool dispatch,
// decomposition runs, repairs and persisted events. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flux"

type Metrics struct {
	registry *prometheus.Registry

	toolCalls       *prometheus.CounterVec
	workflowRuns    *prometheus.CounterVec
	workflowSeconds prometheus.Histogram
	repairs         *prometheus.CounterVec
	events          *prometheus.CounterVec
	saveFailures    prometheus.Counter
	pendingCalls    prometheus.Gauge
	taskRuns        *prometheus.CounterVec
}

// New registers collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Decomposition runs by final status.",
		}, []string{"status"}),
		workflowSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Wall time of decomposition runs.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repairs_total",
			Help:      "Repair parser outcomes: clean, healed or failed.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Persisted audit events by type.",
		}, []string{"type"}),
		saveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_save_failures_total",
			Help:      "State saves that failed and were rolled back.",
		}),
		pendingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_tool_calls",
			Help:      "Tool calls awaiting human confirmation.",
		}),
		taskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_task_runs_total",
			Help:      "Fired scheduled tasks by type and outcome.",
		}, []string{"type", "outcome"}),
	}
	m.registry.MustRegister(
		m.toolCalls,
		m.workflowRuns,
		m.workflowSeconds,
		m.repairs,
		m.events,
		m.saveFailures,
		m.pendingCalls,
		m.taskRuns,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry backing the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) WorkflowFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.workflowRuns.WithLabelValues(status).Inc()
	m.workflowSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) Repair(result string) {
	if m == nil {
		return
	}
	m.repairs.WithLabelValues(result).Inc()
}

func (m *Metrics) EventAppended(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SaveFailed() {
	if m == nil {
		return
	}
	m.saveFailures.Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingCalls.Set(float64(n))
}

func (m *Metrics) TaskRun(kind, outcome string) {
	if m == nil {
		return
	}
	m.taskRuns.WithLabelValues(kind, outcome).Inc()
}
