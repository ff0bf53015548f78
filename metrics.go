package ytresolve

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors a Resolver reports against:
// plain counters and histograms, registered once and incremented inline.
type Metrics struct {
	ExtractionAttempts *prometheus.CounterVec
	PersonaFailures    *prometheus.CounterVec
	DescrambleCacheHit prometheus.Counter
	ManifestLatency    prometheus.Histogram
}

// NewMetrics builds and registers a Metrics set against reg. Pass nil to use
// the default global registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ExtractionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytresolve",
			Name:      "extraction_attempts_total",
			Help:      "Per-persona player endpoint attempts, labeled by outcome.",
		}, []string{"persona", "outcome"}),
		PersonaFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ytresolve",
			Name:      "persona_failures_total",
			Help:      "Persona failures labeled by classified reason.",
		}, []string{"persona", "reason"}),
		DescrambleCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ytresolve",
			Name:      "descramble_cache_hits_total",
			Help:      "Number of n-parameter descramble calls served from cache.",
		}),
		ManifestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ytresolve",
			Name:      "manifest_resolve_seconds",
			Help:      "End-to-end get_manifest latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.ExtractionAttempts, m.PersonaFailures, m.DescrambleCacheHit, m.ManifestLatency)
	return m
}

func (m *Metrics) observeAttempt(persona, outcome string) {
	if m == nil {
		return
	}
	m.ExtractionAttempts.WithLabelValues(persona, outcome).Inc()
}

func (m *Metrics) observeFailure(persona, reason string) {
	if m == nil {
		return
	}
	m.PersonaFailures.WithLabelValues(persona, reason).Inc()
}

func (m *Metrics) observeCacheHit() {
	if m == nil {
		return
	}
	m.DescrambleCacheHit.Inc()
}

func (m *Metrics) observeLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.ManifestLatency.Observe(d.Seconds())
}
