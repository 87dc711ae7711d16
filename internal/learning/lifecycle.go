package learning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/steveyegge/llkb/internal/patterns"
	"github.com/steveyegge/llkb/internal/registry"
	"github.com/steveyegge/llkb/internal/types"
)

// ErrDuplicate means an active component with the same name and file exists.
var ErrDuplicate = errors.New("component already extracted")

// Archive reasons recorded in history event details.
const (
	ReasonStale         = "stale"
	ReasonLowConfidence = "low-confidence"

	// minOccurrencesForLowConfidence guards young lessons from archiving.
	minOccurrencesForLowConfidence = 5
)

// PromoteResult lists the lessons created from discovered patterns.
type PromoteResult struct {
	Promoted []string `json:"promoted"`
	Skipped  int      `json:"skipped"`
}

// Promote turns discovered patterns with confidence at or above threshold
// into lessons. Patterns whose normalized text already exists as a lesson
// trigger are skipped, archived lessons included.
func (e *Engine) Promote(ctx context.Context, threshold float64) (*PromoteResult, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0.0 and 1.0 (got %.2f)", threshold)
	}
	pdoc, err := e.store.LoadPatterns()
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}
	candidates := make([]types.DiscoveredPattern, 0, len(pdoc.Patterns))
	for _, p := range pdoc.Patterns {
		if p.Confidence >= threshold {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].ID < candidates[j].ID
	})

	now := e.store.Now().UTC()
	result := &PromoteResult{Promoted: []string{}}
	var promotedFrom []string
	err = e.store.UpdateLessons(ctx, func(doc *types.LessonsDocument) error {
		existing := make(map[string]bool, len(doc.Lessons))
		ids := make([]string, 0, len(doc.Lessons))
		for _, l := range doc.Lessons {
			existing[patterns.NormalizeText(l.Trigger)] = true
			ids = append(ids, l.ID)
		}
		for _, p := range candidates {
			if existing[p.NormalizedText] {
				result.Skipped++
				continue
			}
			l := lessonFromPattern(p, nextID("L", ids), now)
			doc.Lessons = append(doc.Lessons, l)
			ids = append(ids, l.ID)
			existing[p.NormalizedText] = true
			result.Promoted = append(result.Promoted, l.ID)
			promotedFrom = append(promotedFrom, p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, id := range result.Promoted {
		e.appendEvent(types.HistoryEvent{
			Event:     types.EventLessonPromoted,
			Timestamp: now,
			LessonID:  id,
			PatternID: promotedFrom[i],
		})
	}
	e.logger.Info("promoted patterns", "promoted", len(result.Promoted), "skipped", result.Skipped, "threshold", threshold)
	return result, nil
}

func lessonFromPattern(p types.DiscoveredPattern, id string, now time.Time) types.Lesson {
	scope := types.ScopeAppSpecific
	if p.Layer == types.LayerFramework && p.TemplateSource != "" {
		scope = types.FrameworkScope(p.TemplateSource)
	}
	rate := 0.0
	if n := p.Attempts(); n > 0 {
		rate = float64(p.SuccessCount) / float64(n)
	}

	var tags []string
	for _, t := range []string{p.Category, string(p.Source), p.EntityName} {
		if t != "" && !contains(tags, t) {
			tags = append(tags, t)
		}
	}
	if tags == nil {
		tags = []string{}
	}

	var lastSuccess *time.Time
	if p.SuccessCount > 0 {
		lastSuccess = p.LastUsed
	}

	return types.Lesson{
		ID:         id,
		Title:      p.OriginalText,
		Category:   lessonCategory(p.MappedAction),
		Scope:      scope,
		Trigger:    p.NormalizedText,
		Pattern:    describePattern(p),
		JourneyIDs: append([]string{}, p.SourceJourneys...),
		Tags:       tags,
		Metrics: types.LessonMetrics{
			Occurrences:       p.Attempts(),
			SuccessRate:       rate,
			Confidence:        p.Confidence,
			FirstSeen:         now,
			LastSuccess:       lastSuccess,
			LastApplied:       p.LastUsed,
			ConfidenceHistory: []types.ConfidencePoint{{Date: now, Value: p.Confidence}},
		},
	}
}

func lessonCategory(a types.Action) types.LessonCategory {
	switch a {
	case types.ActionAssert:
		return types.CategoryAssertion
	case types.ActionNavigate:
		return types.CategoryNavigation
	case types.ActionWait:
		return types.CategoryTiming
	default:
		return types.CategoryUIInteract
	}
}

func describePattern(p types.DiscoveredPattern) string {
	if h, ok := p.BestSelector(); ok {
		return fmt.Sprintf("%s using %s %q", p.MappedAction, h.Strategy, h.Value)
	}
	return string(p.MappedAction)
}

// nextID returns prefix followed by one more than the highest numeric
// suffix among ids, zero padded to three digits.
func nextID(prefix string, ids []string) string {
	highest := 0
	for _, id := range ids {
		n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err == nil && strings.HasPrefix(id, prefix) && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%03d", prefix, highest+1)
}

// ComponentInput describes a component being extracted from generated tests.
type ComponentInput struct {
	Name          string                  `json:"name"`
	Category      types.ComponentCategory `json:"category"`
	Scope         types.Scope             `json:"scope,omitempty"`
	FilePath      string                  `json:"filePath"`
	Description   string                  `json:"description"`
	OriginalCode  string                  `json:"originalCode"`
	ExtractedFrom string                  `json:"extractedFrom"`
	JourneyID     string                  `json:"journeyId,omitempty"`
}

// ExtractComponent records a new component, appends a component_extracted
// event and rebuilds the registry. When only the registry rebuild fails the
// saved component is returned together with the error.
func (e *Engine) ExtractComponent(ctx context.Context, in ComponentInput) (*types.Component, error) {
	now := e.store.Now().UTC()
	scope := in.Scope
	if scope == "" {
		scope = types.ScopeAppSpecific
	}
	c := types.Component{
		Name:        strings.TrimSpace(in.Name),
		Category:    in.Category,
		Scope:       scope,
		FilePath:    in.FilePath,
		Description: in.Description,
		Source: types.ComponentSource{
			OriginalCode:  in.OriginalCode,
			ExtractedFrom: in.ExtractedFrom,
			ExtractedAt:   now,
		},
	}

	err := e.store.UpdateComponents(ctx, func(doc *types.ComponentsDocument) error {
		ids := make([]string, 0, len(doc.Components))
		for _, existing := range doc.Components {
			if !existing.Archived && existing.Name == c.Name && existing.FilePath == c.FilePath {
				return fmt.Errorf("%w: %s in %s (%s)", ErrDuplicate, c.Name, c.FilePath, existing.ID)
			}
			ids = append(ids, existing.ID)
		}
		c.ID = nextID("C", ids)
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid component: %w", err)
		}
		doc.Components = append(doc.Components, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.appendEvent(types.HistoryEvent{
		Event:       types.EventComponentExtracted,
		Timestamp:   now,
		JourneyID:   in.JourneyID,
		ComponentID: c.ID,
		Details:     map[string]any{"filePath": c.FilePath, "extractedFrom": c.Source.ExtractedFrom},
	})

	if _, err := registry.Rebuild(ctx, e.store, e.cfg.Modules); err != nil {
		return &c, fmt.Errorf("component %s saved but registry rebuild failed: %w", c.ID, err)
	}
	return &c, nil
}

// ArchiveResult lists what ArchiveStale archived.
type ArchiveResult struct {
	Lessons    []string `json:"lessons"`
	Components []string `json:"components"`
}

// ArchiveStale soft-deletes lessons unused for retention.lessonStaleDays or
// that stayed below retention.archiveBelowConfidence after enough
// occurrences, and components unused for the same window.
func (e *Engine) ArchiveStale(ctx context.Context) (*ArchiveResult, error) {
	now := e.store.Now().UTC()
	window := time.Duration(e.cfg.Retention.LessonStaleDays) * 24 * time.Hour
	floor := e.cfg.Retention.ArchiveBelowConfidence
	result := &ArchiveResult{Lessons: []string{}, Components: []string{}}
	var events []types.HistoryEvent

	err := e.store.UpdateLessons(ctx, func(doc *types.LessonsDocument) error {
		for i := range doc.Lessons {
			l := &doc.Lessons[i]
			if l.Archived {
				continue
			}
			reason := ""
			last := l.Metrics.FirstSeen
			if l.Metrics.LastApplied != nil {
				last = *l.Metrics.LastApplied
			}
			switch {
			case !last.IsZero() && now.Sub(last) > window:
				reason = ReasonStale
			case l.Metrics.Occurrences >= minOccurrencesForLowConfidence && l.Metrics.Confidence < floor:
				reason = ReasonLowConfidence
			default:
				continue
			}
			l.Archived = true
			l.ArchivedAt = &now
			result.Lessons = append(result.Lessons, l.ID)
			events = append(events, types.HistoryEvent{
				Event: types.EventLessonArchived, Timestamp: now, LessonID: l.ID,
				Details: map[string]any{"reason": reason},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = e.store.UpdateComponents(ctx, func(doc *types.ComponentsDocument) error {
		for i := range doc.Components {
			c := &doc.Components[i]
			if c.Archived {
				continue
			}
			last := c.Source.ExtractedAt
			if c.Metrics.LastUsed != nil {
				last = *c.Metrics.LastUsed
			}
			if last.IsZero() || now.Sub(last) <= window {
				continue
			}
			c.Archived = true
			c.ArchivedAt = &now
			result.Components = append(result.Components, c.ID)
			events = append(events, types.HistoryEvent{
				Event: types.EventComponentArchived, Timestamp: now, ComponentID: c.ID,
				Details: map[string]any{"reason": ReasonStale},
			})
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	for _, ev := range events {
		e.appendEvent(ev)
	}
	if len(events) > 0 {
		e.logger.Info("archived stale items", "lessons", len(result.Lessons), "components", len(result.Components))
	}
	return result, nil
}

// Refresh recomputes confidence for every active lesson so recency decay
// applies between outcomes. It returns how many lessons changed.
func (e *Engine) Refresh(ctx context.Context) (int, error) {
	now := e.store.Now().UTC()
	changed := 0
	err := e.store.UpdateLessons(ctx, func(doc *types.LessonsDocument) error {
		for i := range doc.Lessons {
			l := &doc.Lessons[i]
			if l.Archived || l.Metrics.Occurrences == 0 {
				continue
			}
			c := Confidence(l.Metrics, l.Validation.HumanReviewed, now)
			if c == l.Metrics.Confidence {
				continue
			}
			l.Metrics.Confidence = c
			l.Metrics.ConfidenceHistory = appendHistory(l.Metrics.ConfidenceHistory, c, now)
			changed++
		}
		return nil
	})
	return changed, err
}
