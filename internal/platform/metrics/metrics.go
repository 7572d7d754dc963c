package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// TriageMetrics exposes counters/histograms for triage flows.
type TriageMetrics struct {
	classifications *prometheus.CounterVec
	historyLookups  *prometheus.CounterVec
	historyLatency  prometheus.Histogram
}

func NewTriageMetrics(reg prometheus.Registerer) *TriageMetrics {
	m := &TriageMetrics{
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ertriage",
			Subsystem: "esi",
			Name:      "classifications_total",
			Help:      "ESI levels assigned, by level and call site",
		}, []string{"level", "source"}),
		historyLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ertriage",
			Subsystem: "history",
			Name:      "lookups_total",
			Help:      "Clinical history lookups by outcome",
		}, []string{"outcome"}),
		historyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ertriage",
			Subsystem: "history",
			Name:      "lookup_latency_seconds",
			Help:      "Latency of clinical history lookups",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.classifications, m.historyLookups, m.historyLatency)
	return m
}

func (m *TriageMetrics) ObserveClassification(source string, level int) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(strconv.Itoa(level), source).Inc()
}

// ObserveHistoryLookup records one lookup. outcome is ok, degraded or error.
func (m *TriageMetrics) ObserveHistoryLookup(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.historyLookups.WithLabelValues(outcome).Inc()
	m.historyLatency.Observe(seconds)
}
