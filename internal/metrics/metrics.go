// Package metrics exposes Prometheus instrumentation for analyses.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	analyses         *prometheus.CounterVec
	searches         *prometheus.CounterVec
	turns            prometheus.Counter
	verdictFallbacks prometheus.Counter
	duration         prometheus.Histogram
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veracity",
			Name:      "analyses_total",
			Help:      "Finished analyses by outcome.",
		}, []string{"outcome"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "veracity",
			Name:      "searches_total",
			Help:      "Evidence searches by outcome.",
		}, []string{"outcome"}),
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "veracity",
			Name:      "agent_turns_total",
			Help:      "Model turns taken by the reasoning loop.",
		}),
		verdictFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "veracity",
			Name:      "verdict_lenient_parses_total",
			Help:      "Verdicts that needed the lenient JSON parser.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "veracity",
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of an analysis.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
	}
	m.registry.MustRegister(m.analyses, m.searches, m.turns, m.verdictFallbacks, m.duration)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AnalysisFinished records the outcome ("completed", "failed", "cancelled") and duration
func (m *Metrics) AnalysisFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// SearchDone records a search outcome ("ok", "empty", "error", "cached")
func (m *Metrics) SearchDone(outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
}

// Turn records one model turn
func (m *Metrics) Turn() {
	if m == nil {
		return
	}
	m.turns.Inc()
}

// LenientVerdict records a verdict recovered by the lenient parser
func (m *Metrics) LenientVerdict() {
	if m == nil {
		return
	}
	m.verdictFallbacks.Inc()
}
