// internal/monitoring/metrics.go

// Package monitoring exposes Prometheus metrics for the extraction engine.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	attemptsTotal      *prometheus.CounterVec
	recordsExtracted   *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	attemptConfidence  *prometheus.HistogramVec
	retriesTotal       prometheus.Counter
	patternsDiscovered prometheus.Counter
	patternsPromoted   prometheus.Counter
	patternsRetired    prometheus.Counter
	persistenceErrors  prometheus.Counter
}

// NewMetrics registers the collectors with the given registerer. A nil
// registerer creates a dedicated registry so repeated engine construction
// never collides on collector names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer
	if reg == nil {
		registry := prometheus.NewRegistry()
		reg = registry
		gatherer = registry
	}
	factory := promauto.With(reg)
	namespace := "chartex"

	return &Metrics{
		gatherer: gatherer,
		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_attempts_total",
			Help:      "Extraction attempts by template and status.",
		}, []string{"template", "status"}),
		recordsExtracted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_extracted_total",
			Help:      "Candidate records accepted, by template.",
		}, []string{"template"}),
		extractionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Wall time of one extraction attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"template"}),
		attemptConfidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_confidence",
			Help:      "Aggregate confidence of scored attempts.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"template"}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_retries_total",
			Help:      "Template retries performed by the dispatcher.",
		}),
		patternsDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_discovered_total",
			Help:      "Candidate patterns proposed by discovery.",
		}),
		patternsPromoted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_promoted_total",
			Help:      "Patterns promoted into production templates.",
		}),
		patternsRetired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_retired_total",
			Help:      "Patterns retired after sustained failure.",
		}),
		persistenceErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Failed writes to the learned-state store.",
		}),
	}
}

// ObserveAttempt records one finished extraction attempt.
func (m *Metrics) ObserveAttempt(templateName, status string, confidence float64, duration time.Duration, records int) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(templateName, status).Inc()
	m.extractionDuration.WithLabelValues(templateName).Observe(duration.Seconds())
	m.attemptConfidence.WithLabelValues(templateName).Observe(confidence)
	if records > 0 {
		m.recordsExtracted.WithLabelValues(templateName).Add(float64(records))
	}
}

// ObserveRetry counts a dispatcher retry.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

// ObserveDiscovery counts newly proposed patterns.
func (m *Metrics) ObserveDiscovery(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.patternsDiscovered.Add(float64(count))
}

// ObservePromotion counts a pattern promotion.
func (m *Metrics) ObservePromotion() {
	if m == nil {
		return
	}
	m.patternsPromoted.Inc()
}

// ObserveRetirement counts a pattern retirement.
func (m *Metrics) ObserveRetirement() {
	if m == nil {
		return
	}
	m.patternsRetired.Inc()
}

// ObservePersistenceError counts a failed learned-state write.
func (m *Metrics) ObservePersistenceError() {
	if m == nil {
		return
	}
	m.persistenceErrors.Inc()
}

// Handler returns the scrape handler for these collectors. Metrics built
// on the default registerer fall back to the global handler.
func (m *Metrics) Handler() http.Handler {
	if m != nil && m.gatherer != nil {
		return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
