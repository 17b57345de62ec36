package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	changesTotal   *prometheus.CounterVec
	watchedProject prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	changesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "bibliography_changes_total",
			Help:      "Bibliography change signals by publish status.",
		},
		[]string{"service", "status"},
	)
	watchedProject := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "watch_running",
			Help:      "1 while the bibliography watcher is running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(changesTotal, watchedProject)

	return &WorkerMetrics{
		registry:       registry,
		service:        service,
		changesTotal:   changesTotal,
		watchedProject: watchedProject,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) WatchStarted() {
	m.watchedProject.Set(1)
}

func (m *WorkerMetrics) WatchStopped() {
	m.watchedProject.Set(0)
}

func (m *WorkerMetrics) RecordChange(err error) {
	status := "published"
	if err != nil {
		status = "error"
	}
	m.changesTotal.WithLabelValues(m.service, status).Inc()
}
