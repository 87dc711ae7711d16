// Package quality filters and scores candidate patterns before they are
// persisted. Stages run in a fixed order: cross-source boost, deduplication,
// threshold filtering, signal weighting and staleness pruning.
package quality

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/patterns"
	"github.com/steveyegge/llkb/internal/types"
)

// Confidence floors per signal tier.
const (
	FloorStrong = 0.7
	FloorMedium = 0.6
	FloorWeak   = 0.45
)

// Floor returns the confidence floor for a signal tier.
func Floor(tier types.SignalTier) float64 {
	switch tier {
	case types.TierStrong:
		return FloorStrong
	case types.TierMedium:
		return FloorMedium
	default:
		return FloorWeak
	}
}

// Config holds configuration for the quality pipeline
type Config struct {
	// MinConfidence drops patterns scoring below it
	MinConfidence float64

	// CrossSourceBoost is added to every member of a multi-source group
	CrossSourceBoost float64

	// ConfidenceCeiling caps boosted confidence
	ConfidenceCeiling float64

	// StaleAfter is the usage window for staleness pruning
	StaleAfter time.Duration

	// SignalWeighting raises patterns to their tier floor
	SignalWeighting bool

	// PruneStale enables staleness pruning
	PruneStale bool

	// Now is the clock used for staleness; nil means time.Now
	Now func() time.Time
}

// DefaultConfig returns the default quality configuration
func DefaultConfig() Config {
	return Config{
		MinConfidence:     0.5,
		CrossSourceBoost:  0.1,
		ConfidenceCeiling: 0.95,
		StaleAfter:        90 * 24 * time.Hour,
		SignalWeighting:   true,
	}
}

// FromConfig builds a pipeline config from the quality section of config.yml.
func FromConfig(q config.QualityConfig) Config {
	return Config{
		MinConfidence:     q.MinConfidence,
		CrossSourceBoost:  q.CrossSourceBoost,
		ConfidenceCeiling: q.ConfidenceCeiling,
		StaleAfter:        time.Duration(q.StaleAfterDays) * 24 * time.Hour,
		SignalWeighting:   q.SignalWeighting,
		PruneStale:        q.PruneStale,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.MinConfidence < 0.0 || c.MinConfidence > 1.0 {
		return fmt.Errorf("min_confidence must be between 0.0 and 1.0 (got %.2f)", c.MinConfidence)
	}
	if c.CrossSourceBoost < 0.0 || c.CrossSourceBoost > 1.0 {
		return fmt.Errorf("cross_source_boost must be between 0.0 and 1.0 (got %.2f)", c.CrossSourceBoost)
	}
	if c.ConfidenceCeiling <= 0.0 || c.ConfidenceCeiling > 1.0 {
		return fmt.Errorf("confidence_ceiling must be in (0.0, 1.0] (got %.2f)", c.ConfidenceCeiling)
	}
	if c.MinConfidence > c.ConfidenceCeiling {
		return fmt.Errorf("min_confidence (%.2f) cannot exceed confidence_ceiling (%.2f)",
			c.MinConfidence, c.ConfidenceCeiling)
	}
	if c.PruneStale && c.StaleAfter <= 0 {
		return fmt.Errorf("stale_after must be positive when pruning (got %v)", c.StaleAfter)
	}
	return nil
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// UsageStats is what staleness pruning knows about a pattern.
type UsageStats struct {
	Attempts int
	LastUsed *time.Time
}

// UsageFromPatterns derives usage stats from the patterns' own counters.
func UsageFromPatterns(patterns []types.DiscoveredPattern) map[string]UsageStats {
	out := make(map[string]UsageStats, len(patterns))
	for i := range patterns {
		p := &patterns[i]
		out[p.ID] = UsageStats{Attempts: p.Attempts(), LastUsed: p.LastUsed}
	}
	return out
}

// Options carry per-run inputs supplied by the caller.
type Options struct {
	// Tiers classifies pattern ids for signal weighting. Ids not present
	// fall back to the tier of the pattern's source.
	Tiers map[string]types.SignalTier

	// Usage drives staleness pruning. Nil means the patterns' own counters.
	Usage map[string]UsageStats
}

// Report records counts at each stage.
type Report struct {
	Input              int `json:"input"`
	CrossSourceBoosted int `json:"crossSourceBoosted"`
	Deduplicated       int `json:"deduplicated"`
	ThresholdFiltered  int `json:"thresholdFiltered"`
	SignalWeighted     int `json:"signalWeighted"`
	Pruned             int `json:"pruned"`
	Output             int `json:"output"`
}

// Validate checks that removals account for the difference between input and output.
func (r Report) Validate() error {
	if got := r.Input - r.Deduplicated - r.ThresholdFiltered - r.Pruned; got != r.Output {
		return fmt.Errorf("report does not balance: input %d - dedup %d - threshold %d - pruned %d = %d, output %d",
			r.Input, r.Deduplicated, r.ThresholdFiltered, r.Pruned, got, r.Output)
	}
	return nil
}

// String returns a one-line summary.
func (r Report) String() string {
	return fmt.Sprintf("in=%d boosted=%d deduped=%d filtered=%d weighted=%d pruned=%d out=%d",
		r.Input, r.CrossSourceBoosted, r.Deduplicated, r.ThresholdFiltered, r.SignalWeighted, r.Pruned, r.Output)
}

// Pipeline applies the quality stages.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a pipeline. A nil logger means slog.Default().
func New(cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// Apply runs every enabled stage over a copy of patterns.
func (p *Pipeline) Apply(patterns []types.DiscoveredPattern, opts Options) ([]types.DiscoveredPattern, Report) {
	out := make([]types.DiscoveredPattern, len(patterns))
	for i := range patterns {
		out[i] = patterns[i].Clone()
		out[i].Confidence = clamp(out[i].Confidence)
	}
	report := Report{Input: len(out)}

	report.CrossSourceBoosted = CrossSourceBoost(out, p.cfg.CrossSourceBoost, p.cfg.ConfidenceCeiling)
	p.logger.Debug("cross-source boost", "boosted", report.CrossSourceBoosted)

	before := len(out)
	out = Deduplicate(out)
	report.Deduplicated = before - len(out)
	p.logger.Debug("deduplicate", "removed", report.Deduplicated)

	before = len(out)
	out = FilterThreshold(out, p.cfg.MinConfidence)
	report.ThresholdFiltered = before - len(out)
	p.logger.Debug("threshold filter", "removed", report.ThresholdFiltered, "min", p.cfg.MinConfidence)

	if p.cfg.SignalWeighting {
		report.SignalWeighted = ApplySignalWeights(out, opts.Tiers)
		p.logger.Debug("signal weighting", "raised", report.SignalWeighted)
	}

	if p.cfg.PruneStale {
		usage := opts.Usage
		if usage == nil {
			usage = UsageFromPatterns(out)
		}
		before = len(out)
		out = PruneStale(out, usage, p.cfg.StaleAfter, p.cfg.now())
		report.Pruned = before - len(out)
		p.logger.Debug("staleness prune", "removed", report.Pruned)
	}

	report.Output = len(out)
	return out, report
}

// CrossSourceBoost groups patterns by normalized text and boosts every member
// of a group whose members disagree on template origin, entity name or
// journey. Boosted confidence is capped at ceiling and never lowered.
// It returns the number of patterns boosted.
func CrossSourceBoost(patterns []types.DiscoveredPattern, boost, ceiling float64) int {
	groups := make(map[string][]int)
	for i := range patterns {
		groups[patterns[i].NormalizedText] = append(groups[patterns[i].NormalizedText], i)
	}

	boosted := 0
	for _, members := range groups {
		if !multiSource(patterns, members) {
			continue
		}
		for _, i := range members {
			c := patterns[i].Confidence + boost
			if c > ceiling {
				c = ceiling
			}
			if c > patterns[i].Confidence {
				patterns[i].Confidence = clamp(c)
				boosted++
			}
		}
	}
	return boosted
}

// multiSource reports whether a group carries at least two distinct values
// in any evidence dimension.
func multiSource(patterns []types.DiscoveredPattern, members []int) bool {
	origins := make(map[string]bool)
	entities := make(map[string]bool)
	journeys := make(map[string]bool)
	for _, i := range members {
		p := &patterns[i]
		if p.TemplateSource != "" {
			origins[p.TemplateSource] = true
		}
		if p.EntityName != "" {
			entities[p.EntityName] = true
		}
		for _, j := range p.SourceJourneys {
			journeys[j] = true
		}
	}
	return len(origins) >= 2 || len(entities) >= 2 || len(journeys) >= 2
}

type dedupKey struct {
	text   string
	action types.Action
}

// Deduplicate merges patterns sharing normalized text and mapped action. The
// merged pattern keeps the identity of its highest-confidence member, sums
// counters and unions journeys and selector hints. Order of first appearance
// is preserved.
func Deduplicate(patterns []types.DiscoveredPattern) []types.DiscoveredPattern {
	index := make(map[dedupKey]int, len(patterns))
	out := make([]types.DiscoveredPattern, 0, len(patterns))
	for _, p := range patterns {
		k := dedupKey{p.NormalizedText, p.MappedAction}
		i, ok := index[k]
		if !ok {
			index[k] = len(out)
			out = append(out, p)
			continue
		}
		out[i] = merge(out[i], p)
	}
	return out
}

func merge(a, b types.DiscoveredPattern) types.DiscoveredPattern {
	base, other := a, b
	if b.Confidence > a.Confidence {
		base, other = b, a
	}
	base.SuccessCount = a.SuccessCount + b.SuccessCount
	base.FailCount = a.FailCount + b.FailCount
	base.SourceJourneys = unionStrings(base.SourceJourneys, other.SourceJourneys)
	base.SelectorHints = patterns.UnionHints(base.SelectorHints, other.SelectorHints)
	if other.LastUsed != nil && (base.LastUsed == nil || other.LastUsed.After(*base.LastUsed)) {
		t := *other.LastUsed
		base.LastUsed = &t
	}
	if base.EntityName == "" {
		base.EntityName = other.EntityName
	}
	return base
}

// FilterThreshold drops patterns below the threshold.
func FilterThreshold(patterns []types.DiscoveredPattern, threshold float64) []types.DiscoveredPattern {
	out := patterns[:0]
	for _, p := range patterns {
		if p.Confidence >= threshold {
			out = append(out, p)
		}
	}
	return out
}

// ApplySignalWeights raises each pattern to at least the floor of its tier.
// Tiers come from the tiers map, falling back to the tier of the pattern's
// source. It returns the number of patterns raised.
func ApplySignalWeights(patterns []types.DiscoveredPattern, tiers map[string]types.SignalTier) int {
	raised := 0
	for i := range patterns {
		tier, ok := tiers[patterns[i].ID]
		if !ok {
			tier = patterns[i].Source.Tier()
		}
		if floor := Floor(tier); patterns[i].Confidence < floor {
			patterns[i].Confidence = floor
			raised++
		}
	}
	return raised
}

// PruneStale drops patterns that have been attempted at least once but not
// used within window of now. Patterns with no recorded attempts are kept.
func PruneStale(patterns []types.DiscoveredPattern, usage map[string]UsageStats, window time.Duration, now time.Time) []types.DiscoveredPattern {
	cutoff := now.Add(-window)
	out := patterns[:0]
	for _, p := range patterns {
		u, ok := usage[p.ID]
		if ok && u.Attempts > 0 && (u.LastUsed == nil || u.LastUsed.Before(cutoff)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
