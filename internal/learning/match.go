package learning

import (
	"strings"
	"unicode"

	"github.com/steveyegge/llkb/internal/patterns"
	"github.com/steveyegge/llkb/internal/types"
)

// FuzzyThreshold is the minimum token Jaccard similarity for a fuzzy match.
const FuzzyThreshold = 0.6

// tokens lower-cases s, splits camelCase and non-alphanumerics, and returns
// the token set.
func tokens(s string) map[string]bool {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(prev) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prev = r
	}
	set := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(b.String()), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[f] = true
	}
	return set
}

// Jaccard is |a ∩ b| / |a ∪ b| over the token sets of a and b.
func Jaccard(a, b string) float64 {
	ta, tb := tokens(a), tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if tb[t] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// bestLesson finds the active lesson whose trigger or pattern is most similar
// to text, if any reaches FuzzyThreshold. Ties keep the first lesson.
func bestLesson(doc *types.LessonsDocument, text string) *types.Lesson {
	var best *types.Lesson
	bestScore := 0.0
	for i := range doc.Lessons {
		l := &doc.Lessons[i]
		if l.Archived {
			continue
		}
		score := max(Jaccard(text, l.Trigger), Jaccard(text, l.Pattern))
		if score >= FuzzyThreshold && score > bestScore {
			best, bestScore = l, score
		}
	}
	return best
}

// bestComponent finds the active component whose name is most similar to text.
func bestComponent(doc *types.ComponentsDocument, text string) *types.Component {
	var best *types.Component
	bestScore := 0.0
	for i := range doc.Components {
		c := &doc.Components[i]
		if c.Archived {
			continue
		}
		score := Jaccard(text, c.Name)
		if score >= FuzzyThreshold && score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// findPattern locates a pattern by id, then by selector hint value, then by
// normalized step text.
func findPattern(doc *types.PatternsDocument, id, selector, stepText string) (*types.DiscoveredPattern, MatchKind) {
	if id != "" {
		if p := doc.Find(id); p != nil {
			return p, MatchID
		}
	}
	if selector != "" {
		for i := range doc.Patterns {
			for _, h := range doc.Patterns[i].SelectorHints {
				if h.Value == selector {
					return &doc.Patterns[i], MatchSelector
				}
			}
		}
	}
	if stepText != "" {
		norm := patterns.NormalizeText(stepText)
		for i := range doc.Patterns {
			if doc.Patterns[i].NormalizedText == norm {
				return &doc.Patterns[i], MatchText
			}
		}
	}
	return nil, ""
}
