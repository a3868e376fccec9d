// Package metrics holds the Prometheus instruments for the scheduler, the
// verification consumer and the task queue. All methods are safe to call on
// a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "freshness"

// Metrics is a dedicated registry plus the instruments registered on it.
type Metrics struct {
	registry          *prometheus.Registry
	tasksProcessed    *prometheus.CounterVec
	classifierLatency *prometheus.HistogramVec
	schedulerRows     *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
}

// New creates and registers every instrument, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_processed_total",
			Help:      "Verification tasks processed, by outcome.",
		}, []string{"outcome"}),
		classifierLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_duration_seconds",
			Help:      "Latency of classifier calls, by result.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"result"}),
		schedulerRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_rows_total",
			Help:      "Locations handled by the scheduler, by phase and outcome.",
		}, []string{"phase", "outcome"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_tasks",
			Help:      "Tasks in the queue, by status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasksProcessed,
		m.classifierLatency,
		m.schedulerRows,
		m.queueDepth,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TaskProcessed counts one task outcome (completed, requeued, failed, ...).
func (m *Metrics) TaskProcessed(outcome string) {
	if m == nil {
		return
	}
	m.tasksProcessed.WithLabelValues(outcome).Inc()
}

// ObserveClassifier records one classifier call.
func (m *Metrics) ObserveClassifier(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.classifierLatency.WithLabelValues(result).Observe(d.Seconds())
}

// SchedulerRows adds n rows for a scheduler phase and outcome.
func (m *Metrics) SchedulerRows(phase, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.schedulerRows.WithLabelValues(phase, outcome).Add(float64(n))
}

// SetQueueDepth replaces the per-status queue gauge.
func (m *Metrics) SetQueueDepth(counts map[string]int) {
	if m == nil {
		return
	}
	m.queueDepth.Reset()
	for status, n := range counts {
		m.queueDepth.WithLabelValues(status).Set(float64(n))
	}
}
