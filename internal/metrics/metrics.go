// Package metrics exposes LLKB counters to Prometheus. All methods are safe
// on a nil *Metrics, so callers never check whether metrics are enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/steveyegge/llkb/internal/cache"
	"github.com/steveyegge/llkb/internal/quality"
)

// Metrics holds all Prometheus collectors for LLKB
type Metrics struct {
	// Cache metrics
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheEvictions     prometheus.Counter
	CacheInvalidations prometheus.Counter
	CacheBytes         prometheus.Gauge

	// Pipeline metrics
	PatternsByStage   *prometheus.GaugeVec
	PatternsBySource  *prometheus.GaugeVec
	DiscoveryDuration *prometheus.HistogramVec
	DiscoveryRuns     *prometheus.CounterVec

	// Store metrics
	LockWait *prometheus.HistogramVec
	Outcomes *prometheus.CounterVec

	last cache.Stats
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "llkb_cache_hits_total",
			Help: "Content cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "llkb_cache_misses_total",
			Help: "Content cache misses",
		}),
		CacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "llkb_cache_evictions_total",
			Help: "Content cache LRU evictions",
		}),
		CacheInvalidations: f.NewCounter(prometheus.CounterOpts{
			Name: "llkb_cache_invalidations_total",
			Help: "Content cache entries dropped on modification time change",
		}),
		CacheBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "llkb_cache_bytes",
			Help: "Resident content cache bytes",
		}),
		PatternsByStage: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llkb_patterns",
			Help: "Patterns after each quality control stage of the last discovery run",
		}, []string{"stage"}),
		PatternsBySource: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llkb_patterns_generated",
			Help: "Patterns generated per source in the last discovery run",
		}, []string{"source"}),
		DiscoveryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llkb_discovery_stage_duration_seconds",
			Help:    "Discovery stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to 20s
		}, []string{"stage"}),
		DiscoveryRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llkb_discovery_runs_total",
			Help: "Discovery runs by result",
		}, []string{"result"}),
		LockWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llkb_lock_wait_seconds",
			Help:    "Time spent waiting for a document lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to 8s
		}, []string{"document"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "llkb_outcomes_total",
			Help: "Recorded usage outcomes",
		}, []string{"kind", "result"}),
	}
}

// ObserveCache adds the change since the previous call. Cache stats are
// cumulative per cache, so a smaller value means a new cache and is taken
// whole.
func (m *Metrics) ObserveCache(s cache.Stats) {
	if m == nil {
		return
	}
	prev := m.last
	if s.Hits < prev.Hits || s.Misses < prev.Misses {
		prev = cache.Stats{}
	}
	m.CacheHits.Add(float64(s.Hits - prev.Hits))
	m.CacheMisses.Add(float64(s.Misses - prev.Misses))
	m.CacheEvictions.Add(float64(max(0, s.Evictions-prev.Evictions)))
	m.CacheInvalidations.Add(float64(max(0, s.Invalidations-prev.Invalidations)))
	m.CacheBytes.Set(float64(s.MemoryBytes))
	m.last = s
}

// ObserveQuality records the counts of a quality control report.
func (m *Metrics) ObserveQuality(r quality.Report) {
	if m == nil {
		return
	}
	m.PatternsByStage.WithLabelValues("input").Set(float64(r.Input))
	m.PatternsByStage.WithLabelValues("deduplicated").Set(float64(r.Input - r.Deduplicated))
	m.PatternsByStage.WithLabelValues("threshold").Set(float64(r.Input - r.Deduplicated - r.ThresholdFiltered))
	m.PatternsByStage.WithLabelValues("output").Set(float64(r.Output))
}

// ObserveSources records the generated pattern count per source.
func (m *Metrics) ObserveSources(bySource map[string]int) {
	if m == nil {
		return
	}
	for source, n := range bySource {
		m.PatternsBySource.WithLabelValues(source).Set(float64(n))
	}
}

// ObserveStage records how long a discovery stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.DiscoveryDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun counts a finished discovery run.
func (m *Metrics) ObserveRun(success bool) {
	if m == nil {
		return
	}
	m.DiscoveryRuns.WithLabelValues(result(success)).Inc()
}

// ObserveLockWait records a lock wait. Its signature matches
// storage.WithLockObserver.
func (m *Metrics) ObserveLockWait(document string, waited time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.WithLabelValues(document).Observe(waited.Seconds())
}

// ObserveOutcome counts a usage outcome.
func (m *Metrics) ObserveOutcome(kind string, success bool) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(kind, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
