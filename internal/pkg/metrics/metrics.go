// Package metrics provides Prometheus metrics for the file manager.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filemanager"

// Metrics holds all Prometheus metrics for the file manager.
type Metrics struct {
	registry *prometheus.Registry

	// Operation metrics
	OperationsTotal   *prometheus.CounterVec   // filemanager_operations_total{op,result}
	OperationDuration *prometheus.HistogramVec // filemanager_operation_duration_seconds{op}

	// Reconciliation metrics
	ReconcileTotal *prometheus.CounterVec // filemanager_reconcile_total{kind,outcome}
}

// New creates the metrics on their own registry, together with the standard Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		registry: reg,

		OperationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total file operations by operation and result variant",
		}, []string{"op", "result"}),

		OperationDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "File operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),

		ReconcileTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Reconciled inconsistency records by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}

// ObserveOperation records one file operation outcome.
func (m *Metrics) ObserveOperation(op, result string, elapsed time.Duration) {
	m.OperationsTotal.WithLabelValues(op, result).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveReconcile records one reconciliation outcome.
func (m *Metrics) ObserveReconcile(kind, outcome string) {
	m.ReconcileTotal.WithLabelValues(kind, outcome).Inc()
}
