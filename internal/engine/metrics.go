package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the orchestrator's counters, registered on an injected
// registry. All nil-safe: a nil Metrics records nothing.
type Metrics struct {
	Transforms      prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	VisionCalls     prometheus.Counter
	VisionFallbacks prometheus.Counter
	Durations       prometheus.Histogram
}

// NewMetrics registers the orchestrator metrics on reg. A nil registry
// yields a nil Metrics, which disables collection.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		Transforms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandwise_transforms_total",
			Help: "Completed transform invocations.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandwise_cache_hits_total",
			Help: "Signature cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandwise_cache_misses_total",
			Help: "Signature cache misses.",
		}),
		VisionCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandwise_vision_calls_total",
			Help: "Vision critique calls attempted.",
		}),
		VisionFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "brandwise_vision_fallbacks_total",
			Help: "Critiques served by the deterministic fallback.",
		}),
		Durations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "brandwise_transform_duration_seconds",
			Help:    "Transform wall time.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.Transforms, m.CacheHits, m.CacheMisses, m.VisionCalls, m.VisionFallbacks, m.Durations)
	return m
}

func (m *Metrics) transform(seconds float64) {
	if m == nil {
		return
	}
	m.Transforms.Inc()
	m.Durations.Observe(seconds)
}

func (m *Metrics) cacheResult(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

func (m *Metrics) vision(fallback bool) {
	if m == nil {
		return
	}
	m.VisionCalls.Inc()
	if fallback {
		m.VisionFallbacks.Inc()
	}
}
