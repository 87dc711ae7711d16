package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/llkb/internal/cache"
	"github.com/steveyegge/llkb/internal/quality"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCache(cache.Stats{Hits: 1})
		m.ObserveQuality(quality.Report{Input: 1})
		m.ObserveSources(map[string]int{"template": 1})
		m.ObserveStage("mining", time.Second)
		m.ObserveRun(true)
		m.ObserveLockWait("lessons", time.Millisecond)
		m.ObserveOutcome("lesson", false)
	})
}

func TestRegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveRun(true)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "llkb_discovery_runs_total")

	// A second set on the same registry collides.
	assert.Panics(t, func() { New(reg) })
}

func TestObserveCacheDeltas(t *testing.T) {
	m := New(nil)

	m.ObserveCache(cache.Stats{Hits: 3, Misses: 2, Evictions: 1, MemoryBytes: 100})
	m.ObserveCache(cache.Stats{Hits: 5, Misses: 2, Evictions: 1, Invalidations: 1, MemoryBytes: 80})
	assert.Equal(t, 5.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheInvalidations))
	assert.Equal(t, 80.0, testutil.ToFloat64(m.CacheBytes))

	// A new cache starts from zero again.
	m.ObserveCache(cache.Stats{Hits: 1})
	assert.Equal(t, 6.0, testutil.ToFloat64(m.CacheHits))
}

func TestObserveQualityAndOutcomes(t *testing.T) {
	m := New(nil)
	m.ObserveQuality(quality.Report{Input: 10, Deduplicated: 3, ThresholdFiltered: 2, Output: 5})
	assert.Equal(t, 10.0, testutil.ToFloat64(m.PatternsByStage.WithLabelValues("input")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.PatternsByStage.WithLabelValues("deduplicated")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.PatternsByStage.WithLabelValues("threshold")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.PatternsByStage.WithLabelValues("output")))

	m.ObserveOutcome("lesson", true)
	m.ObserveOutcome("lesson", true)
	m.ObserveOutcome("pattern", false)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("lesson", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("pattern", "failure")))

	m.ObserveSources(map[string]int{"discovery": 4})
	assert.Equal(t, 4.0, testutil.ToFloat64(m.PatternsBySource.WithLabelValues("discovery")))
}
