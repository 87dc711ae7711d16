// Package patterns expands mined elements, framework packs and passive
// signals into candidate DiscoveredPatterns with selector hints and seeded
// confidence.
package patterns

import (
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"lukechampine.com/blake3"

	"github.com/steveyegge/llkb/internal/types"
)

// Confidence seeds per pattern source. Seeds never exceed MaxInitialConfidence
// so quality control has room to boost.
const (
	SeedDiscovery        = 0.75
	SeedTemplate         = 0.65
	SeedFramework        = 0.55
	SeedSignal           = 0.50
	MaxInitialConfidence = 0.85

	// evidenceBonus rewards discovery patterns whose entity was mined by
	// more than one extractor.
	evidenceBonus = 0.05
)

// Seed returns the initial confidence for a pattern source.
func Seed(source types.PatternSource) float64 {
	switch source {
	case types.SourceDiscovery:
		return SeedDiscovery
	case types.SourceTemplate:
		return SeedTemplate
	case types.SourceFramework:
		return SeedFramework
	default:
		return SeedSignal
	}
}

func seed(source types.PatternSource, bonus float64) float64 {
	c := Seed(source) + bonus
	if c > MaxInitialConfidence {
		c = MaxInitialConfidence
	}
	return c
}

var (
	punctuation = regexp.MustCompile(`[^a-z0-9\s._-]+`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// NormalizeText lower-cases a phrase, strips punctuation other than '-', '_'
// and '.', collapses whitespace and drops a leading article.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, " ")
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	for _, article := range []string{"the ", "a ", "an "} {
		if strings.HasPrefix(s, article) {
			return strings.TrimPrefix(s, article)
		}
	}
	return s
}

// ID derives the stable pattern id from its identifying fields.
func ID(normalizedText string, action types.Action, templateSource, entity string) string {
	sum := blake3.Sum256([]byte(normalizedText + "|" + string(action) + "|" + templateSource + "|" + entity))
	return "DP-" + hex.EncodeToString(sum[:])[:12]
}

// draft describes one pattern before it is finalized.
type draft struct {
	text           string
	action         types.Action
	category       string
	source         types.PatternSource
	layer          types.Layer
	templateSource string
	entity         string
	hints          []types.SelectorHint
	bonus          float64
}

func (s draft) build() types.DiscoveredPattern {
	normalized := NormalizeText(s.text)
	layer := s.layer
	if layer == "" {
		layer = types.LayerAppSpecific
	}
	return types.DiscoveredPattern{
		ID:             ID(normalized, s.action, s.templateSource, s.entity),
		NormalizedText: normalized,
		OriginalText:   s.text,
		MappedAction:   s.action,
		SelectorHints:  s.hints,
		Confidence:     seed(s.source, s.bonus),
		Layer:          layer,
		Category:       s.category,
		Source:         s.source,
		TemplateSource: s.templateSource,
		EntityName:     s.entity,
	}
}

// Selector hint confidences by strategy.
const (
	hintTestID      = 0.9
	hintRole        = 0.8
	hintLabel       = 0.75
	hintPlaceholder = 0.65
	hintText        = 0.6
	hintCSS         = 0.5
)

func testID(v string) types.SelectorHint {
	return types.SelectorHint{Strategy: types.StrategyTestID, Value: v, Confidence: hintTestID}
}

func role(v string) types.SelectorHint {
	return types.SelectorHint{Strategy: types.StrategyRole, Value: v, Confidence: hintRole}
}

func label(v string) types.SelectorHint {
	return types.SelectorHint{Strategy: types.StrategyLabel, Value: v, Confidence: hintLabel}
}

func placeholder(v string) types.SelectorHint {
	return types.SelectorHint{Strategy: types.StrategyPlaceholder, Value: v, Confidence: hintPlaceholder}
}

func text(v string) types.SelectorHint {
	return types.SelectorHint{Strategy: types.StrategyText, Value: v, Confidence: hintText}
}

func css(v string) types.SelectorHint {
	return types.SelectorHint{Strategy: types.StrategyCSS, Value: v, Confidence: hintCSS}
}

func hints(h ...types.SelectorHint) []types.SelectorHint {
	return h
}

// kebab turns "line item" into "line-item".
func kebab(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

// Cap sorts patterns by confidence descending, then id, and keeps at most limit.
func Cap(patterns []types.DiscoveredPattern, limit int) []types.DiscoveredPattern {
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Confidence != patterns[j].Confidence {
			return patterns[i].Confidence > patterns[j].Confidence
		}
		return patterns[i].ID < patterns[j].ID
	})
	if limit > 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	return patterns
}

// mergeByID folds patterns with the same id together, keeping the higher
// confidence and the union of selector hints. First-seen order is kept.
func mergeByID(patterns []types.DiscoveredPattern) []types.DiscoveredPattern {
	index := make(map[string]int, len(patterns))
	out := make([]types.DiscoveredPattern, 0, len(patterns))
	for _, p := range patterns {
		i, ok := index[p.ID]
		if !ok {
			index[p.ID] = len(out)
			out = append(out, p)
			continue
		}
		if p.Confidence > out[i].Confidence {
			out[i].Confidence = p.Confidence
		}
		out[i].SelectorHints = UnionHints(out[i].SelectorHints, p.SelectorHints)
	}
	return out
}

// UnionHints merges two hint lists, keeping per (strategy, value) the hint
// with the higher confidence.
func UnionHints(a, b []types.SelectorHint) []types.SelectorHint {
	out := append([]types.SelectorHint(nil), a...)
	for _, h := range b {
		found := false
		for i := range out {
			if out[i].Strategy == h.Strategy && out[i].Value == h.Value {
				if h.Confidence > out[i].Confidence {
					out[i].Confidence = h.Confidence
				}
				found = true
				break
			}
		}
		if !found {
			out = append(out, h)
		}
	}
	return out
}
