package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

// PanelMetrics records indexing, search and metadata observations.
// It implements ports.IndexingMetrics.
type PanelMetrics struct {
	service string

	pollsTotal       *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	uploadsTotal     *prometheus.CounterVec
	searchTotal      *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec
	metadataLookups  *prometheus.CounterVec
	breakerChanges   *prometheus.CounterVec
}

func NewPanelMetrics(service string, registry prometheus.Registerer) *PanelMetrics {
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, append([]string{"service"}, labels...))
	}

	m := &PanelMetrics{
		service:          service,
		pollsTotal:       counter("indexing", "polls_total", "Status polls by outcome.", "outcome"),
		transitionsTotal: counter("indexing", "transitions_total", "Document status transitions by target status.", "status"),
		uploadsTotal:     counter("indexing", "uploads_total", "Upload attempts by outcome.", "outcome"),
		searchTotal:      counter("search", "requests_total", "Evidence searches by outcome.", "outcome"),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Evidence search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "outcome"}),
		metadataLookups: counter("metadata", "lookups_total", "Metadata lookups by outcome.", "outcome"),
		breakerChanges:  counter("resilience", "breaker_transitions_total", "Circuit breaker transitions by operation and new state.", "operation", "state"),
	}
	registry.MustRegister(m.pollsTotal, m.transitionsTotal, m.uploadsTotal, m.searchTotal, m.searchDuration, m.metadataLookups, m.breakerChanges)
	return m
}

func (m *PanelMetrics) RecordPoll(outcome string) {
	m.pollsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *PanelMetrics) RecordTransition(status domain.IndexStatus) {
	m.transitionsTotal.WithLabelValues(m.service, string(status)).Inc()
}

func (m *PanelMetrics) RecordUpload(outcome string) {
	m.uploadsTotal.WithLabelValues(m.service, outcome).Inc()
}

func (m *PanelMetrics) RecordSearch(outcome string, duration time.Duration) {
	m.searchTotal.WithLabelValues(m.service, outcome).Inc()
	m.searchDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
}

func (m *PanelMetrics) RecordMetadataLookup(outcome string) {
	m.metadataLookups.WithLabelValues(m.service, outcome).Inc()
}

func (m *PanelMetrics) RecordBreakerTransition(operation, state string) {
	m.breakerChanges.WithLabelValues(m.service, operation, state).Inc()
}
