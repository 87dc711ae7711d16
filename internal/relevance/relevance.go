// Package relevance ranks stored lessons and components against a journey
// and assembles the winners into prompt context.
package relevance

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/inflect"
	"github.com/steveyegge/llkb/internal/types"
)

// Score weights. They sum to 1.0; bonuses are added on top and the total is
// clamped to 1.0.
const (
	WeightConfidence = 0.30
	WeightScope      = 0.15
	WeightCategory   = 0.20
	WeightKeyword    = 0.25
	WeightHistory    = 0.10

	RecentSuccessBonus = 0.05
	ReliabilityBonus   = 0.05
	RecentWindow       = 7 * 24 * time.Hour
	ReliableRate       = 0.9
	ReliableUses       = 5

	// neutralCategory is used when the journey declares no categories.
	neutralCategory = 0.5
)

// Scope scores.
const (
	ScopeScoreUniversal   = 1.0
	ScopeScoreFramework   = 0.8
	ScopeScoreAppSpecific = 0.6
)

// Sort orders.
const (
	SortByRelevance  = "relevance"
	SortByConfidence = "confidence"
)

// Journey is the unit of work being ranked against.
type Journey struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Categories  []string `json:"categories,omitempty"`
	// Keywords are added to the ones extracted from Description.
	Keywords []string `json:"keywords,omitempty"`
}

// Options bounds the ranked output.
type Options struct {
	MaxLessons    int
	MaxComponents int
	MinRelevance  float64
	SortBy        string
	Now           time.Time
}

// OptionsFromConfig builds Options from the injection section of config.yml.
func OptionsFromConfig(cfg config.InjectionConfig) Options {
	return Options{
		MaxLessons:    cfg.MaxLessons,
		MaxComponents: cfg.MaxComponents,
		MinRelevance:  cfg.MinRelevance,
		SortBy:        cfg.SortBy,
	}
}

// Breakdown is the per-factor contribution to a score, already weighted.
type Breakdown struct {
	Confidence float64 `json:"confidence"`
	Scope      float64 `json:"scope"`
	Category   float64 `json:"category"`
	Keyword    float64 `json:"keyword"`
	History    float64 `json:"history"`
	Bonus      float64 `json:"bonus"`
}

// Total sums the factors and clamps to [0, 1].
func (b Breakdown) Total() float64 {
	t := b.Confidence + b.Scope + b.Category + b.Keyword + b.History + b.Bonus
	return round2(math.Max(0, math.Min(1, t)))
}

// ScoredLesson is a lesson with its relevance.
type ScoredLesson struct {
	Lesson    types.Lesson `json:"lesson"`
	Relevance float64      `json:"relevance"`
	Breakdown Breakdown    `json:"breakdown"`
}

// ScoredComponent is a component with its relevance.
type ScoredComponent struct {
	Component  types.Component `json:"component"`
	Relevance  float64         `json:"relevance"`
	Breakdown  Breakdown       `json:"breakdown"`
	ImportPath string          `json:"importPath,omitempty"`
}

// RankedContext is the result of ranking for one journey.
type RankedContext struct {
	Journey    Journey           `json:"journey"`
	Keywords   []string          `json:"keywords"`
	Lessons    []ScoredLesson    `json:"lessons"`
	Components []ScoredComponent `json:"components"`
	// Excluded counts items dropped for framework mismatch or low relevance.
	Excluded int `json:"excluded"`
}

// Rank scores active lessons and components against the journey. Profile may
// be nil, in which case framework scoped items are scored but never excluded.
func Rank(j Journey, lessons []types.Lesson, components []types.Component, profile *types.AppProfile, opts Options) *RankedContext {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	keywords := journeyKeywords(j)
	categories := make(map[string]bool, len(j.Categories))
	for _, c := range j.Categories {
		categories[strings.ToLower(c)] = true
	}

	out := &RankedContext{
		Journey:    j,
		Keywords:   keywords,
		Lessons:    []ScoredLesson{},
		Components: []ScoredComponent{},
	}

	for _, l := range lessons {
		if l.Archived {
			continue
		}
		scope, ok := scopeScore(l.Scope, profile)
		if !ok {
			out.Excluded++
			continue
		}
		b := Breakdown{
			Confidence: WeightConfidence * l.Metrics.Confidence,
			Scope:      WeightScope * scope,
			Category:   WeightCategory * categoryScore(string(l.Category), categories),
			Keyword:    WeightKeyword * overlap(keywords, l.Title, l.Trigger, l.Pattern, strings.Join(l.Tags, " ")),
		}
		if j.ID != "" && l.HasJourney(j.ID) {
			b.History = WeightHistory
		}
		b.Bonus = bonus(l.Metrics.LastSuccess, l.Metrics.SuccessRate, l.Metrics.Occurrences, opts.Now)

		score := b.Total()
		if score < opts.MinRelevance {
			out.Excluded++
			continue
		}
		out.Lessons = append(out.Lessons, ScoredLesson{Lesson: l, Relevance: score, Breakdown: b})
	}

	for _, c := range components {
		if c.Archived {
			continue
		}
		scope, ok := scopeScore(c.Scope, profile)
		if !ok {
			out.Excluded++
			continue
		}
		b := Breakdown{
			Confidence: WeightConfidence * c.Metrics.SuccessRate,
			Scope:      WeightScope * scope,
			Category:   WeightCategory * categoryScore(string(c.Category), categories),
			Keyword:    WeightKeyword * overlap(keywords, c.Name, c.Description),
		}
		var lastSuccess *time.Time
		if c.Metrics.SuccessRate > 0 {
			lastSuccess = c.Metrics.LastUsed
		}
		b.Bonus = bonus(lastSuccess, c.Metrics.SuccessRate, c.Metrics.TotalUses, opts.Now)

		score := b.Total()
		if score < opts.MinRelevance {
			out.Excluded++
			continue
		}
		out.Components = append(out.Components, ScoredComponent{Component: c, Relevance: score, Breakdown: b})
	}

	sortLessons(out.Lessons, opts.SortBy)
	sortComponents(out.Components, opts.SortBy)
	if opts.MaxLessons > 0 && len(out.Lessons) > opts.MaxLessons {
		out.Lessons = out.Lessons[:opts.MaxLessons]
	}
	if opts.MaxComponents > 0 && len(out.Components) > opts.MaxComponents {
		out.Components = out.Components[:opts.MaxComponents]
	}
	return out
}

// scopeScore returns the scope factor, or false when the item is tied to a
// framework the profile did not detect.
func scopeScore(scope types.Scope, profile *types.AppProfile) (float64, bool) {
	switch {
	case scope == types.ScopeUniversal:
		return ScopeScoreUniversal, true
	case scope.Framework() != "":
		if profile != nil && !profileHas(profile, scope.Framework()) {
			return 0, false
		}
		return ScopeScoreFramework, true
	default:
		return ScopeScoreAppSpecific, true
	}
}

func profileHas(p *types.AppProfile, framework string) bool {
	for _, f := range append(append([]string(nil), p.Frameworks...), p.UILibraries...) {
		if strings.EqualFold(f, framework) {
			return true
		}
	}
	return false
}

func categoryScore(category string, wanted map[string]bool) float64 {
	if len(wanted) == 0 {
		return neutralCategory
	}
	if wanted[strings.ToLower(category)] {
		return 1
	}
	return 0
}

// overlap is the share of journey keywords found in the item's text.
func overlap(keywords []string, texts ...string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	have := make(map[string]bool)
	for _, t := range texts {
		for _, k := range Keywords(t) {
			have[k] = true
		}
	}
	hits := 0
	for _, k := range keywords {
		if have[k] {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

func bonus(lastSuccess *time.Time, rate float64, uses int, now time.Time) float64 {
	var b float64
	if lastSuccess != nil && now.Sub(*lastSuccess) <= RecentWindow {
		b += RecentSuccessBonus
	}
	if rate >= ReliableRate && uses >= ReliableUses {
		b += ReliabilityBonus
	}
	return b
}

func sortLessons(ls []ScoredLesson, by string) {
	sort.SliceStable(ls, func(i, j int) bool {
		a, b := ls[i], ls[j]
		if by == SortByConfidence && a.Lesson.Metrics.Confidence != b.Lesson.Metrics.Confidence {
			return a.Lesson.Metrics.Confidence > b.Lesson.Metrics.Confidence
		}
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		return a.Lesson.ID < b.Lesson.ID
	})
}

func sortComponents(cs []ScoredComponent, by string) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if by == SortByConfidence && a.Component.Metrics.SuccessRate != b.Component.Metrics.SuccessRate {
			return a.Component.Metrics.SuccessRate > b.Component.Metrics.SuccessRate
		}
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		return a.Component.ID < b.Component.ID
	})
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true, "this": true,
	"from": true, "into": true, "then": true, "when": true, "should": true, "user": true,
	"can": true, "are": true, "was": true, "will": true, "has": true, "have": true,
	"not": true, "all": true, "its": true, "via": true, "page": true, "test": true,
}

// Keywords extracts lower-cased, singularized, de-duplicated tokens of at
// least three characters, minus stopwords. Output is sorted.
func Keywords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range strings.FieldsFunc(splitCamel(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tok = strings.ToLower(tok)
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		tok = inflect.Singularize(tok)
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

func journeyKeywords(j Journey) []string {
	words := Keywords(j.Description + " " + strings.Join(j.Keywords, " "))
	if words == nil {
		return []string{}
	}
	return words
}

// splitCamel inserts a space at lower-to-upper transitions so identifiers
// such as "submitOrderForm" contribute their words.
func splitCamel(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(prev) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
