// Package learning feeds usage outcomes back into the knowledge store:
// counters, success rates and confidence are recomputed under the document
// lock and every outcome is appended to the history log.
package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/history"
	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/types"
)

var (
	// ErrNotFound means no lesson, component or pattern matched the report.
	ErrNotFound = errors.New("no matching item")
	// ErrInvalidReport means the outcome report is incomplete.
	ErrInvalidReport = errors.New("invalid outcome report")
)

// Kind is what an outcome report refers to.
type Kind string

const (
	KindLesson    Kind = "lesson"
	KindComponent Kind = "component"
	KindPattern   Kind = "pattern"
)

// IsValid checks if the kind value is valid
func (k Kind) IsValid() bool {
	return k == KindLesson || k == KindComponent || k == KindPattern
}

// MatchKind says how a report was resolved to an item.
type MatchKind string

const (
	MatchID       MatchKind = "id"
	MatchFuzzy    MatchKind = "fuzzy"
	MatchSelector MatchKind = "selector"
	MatchText     MatchKind = "text"
)

// Pattern confidence adjustments.
const (
	PatternSuccessDelta = 0.02
	PatternFailureDelta = 0.05
	PatternCeiling      = 0.95
)

// Report is one usage outcome from the test execution layer.
type Report struct {
	Kind      Kind   `json:"kind"`
	ID        string `json:"id,omitempty"`
	Selector  string `json:"selector,omitempty"`
	StepText  string `json:"stepText,omitempty"`
	JourneyID string `json:"journeyId,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	Success   bool   `json:"success"`
}

// Validate checks the report identifies something.
func (r *Report) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: invalid kind %q", ErrInvalidReport, r.Kind)
	}
	if r.ID == "" && r.Selector == "" && r.StepText == "" {
		return fmt.Errorf("%w: one of id, selector or stepText is required", ErrInvalidReport)
	}
	return nil
}

// Result describes the item an outcome was applied to.
type Result struct {
	Kind        Kind               `json:"kind"`
	ID          string             `json:"id"`
	Match       MatchKind          `json:"match"`
	Confidence  float64            `json:"confidence"`
	Uses        int                `json:"uses"`
	SuccessRate float64            `json:"successRate"`
	Event       types.HistoryEvent `json:"event"`
}

// Engine applies outcomes and lifecycle operations to a store.
type Engine struct {
	store   *storage.Store
	history *history.Log
	cfg     *config.Config
	logger  *slog.Logger
	observe func(kind Kind, success bool)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithOutcomeObserver registers a callback for every recorded outcome.
func WithOutcomeObserver(fn func(kind Kind, success bool)) Option {
	return func(e *Engine) { e.observe = fn }
}

// New returns an engine over store. History events go to log.
func New(store *storage.Store, log *history.Log, cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{store: store, history: log, cfg: cfg, logger: store.Logger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordOutcome applies one outcome. Lessons and components are matched by
// id first and by fuzzy text second; patterns by id, selector value, then
// normalized step text. Nothing is created when no item matches.
func (e *Engine) RecordOutcome(ctx context.Context, r Report) (*Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	now := e.store.Now().UTC()

	var (
		res *Result
		err error
	)
	switch r.Kind {
	case KindLesson:
		res, err = e.recordLesson(ctx, r, now)
	case KindComponent:
		res, err = e.recordComponent(ctx, r, now)
	case KindPattern:
		res, err = e.recordPattern(ctx, r, now)
	}
	if err != nil {
		return nil, err
	}
	if e.observe != nil {
		e.observe(r.Kind, r.Success)
	}

	event := types.HistoryEvent{
		Timestamp: now,
		JourneyID: r.JourneyID,
		Prompt:    r.Prompt,
		Success:   types.BoolPtr(r.Success),
		Details:   map[string]any{"match": string(res.Match), "confidence": res.Confidence},
	}
	switch r.Kind {
	case KindLesson:
		event.Event, event.LessonID = types.EventLessonApplied, res.ID
	case KindComponent:
		event.Event, event.ComponentID = types.EventComponentUsed, res.ID
	case KindPattern:
		event.Event, event.PatternID = types.EventPatternApplied, res.ID
	}
	res.Event = e.appendEvent(event)
	return res, nil
}

// appendEvent writes to history. The document update has already committed,
// so a failed append is logged rather than returned.
func (e *Engine) appendEvent(event types.HistoryEvent) types.HistoryEvent {
	if e.history == nil {
		return event
	}
	written, err := e.history.Append(event)
	if err != nil {
		e.logger.Warn("failed to append history event", "event", event.Event, "error", err)
		return event
	}
	return written
}

func (e *Engine) recordLesson(ctx context.Context, r Report, now time.Time) (*Result, error) {
	var res Result
	err := e.store.UpdateLessons(ctx, func(doc *types.LessonsDocument) error {
		l, match := e.findLesson(doc, r)
		if l == nil {
			return fmt.Errorf("%w: lesson %s", ErrNotFound, describe(r))
		}

		m := &l.Metrics
		m.Occurrences++
		m.SuccessRate = runningRate(m.SuccessRate, m.Occurrences, r.Success)
		m.LastApplied = &now
		if r.Success {
			m.LastSuccess = &now
		}
		if m.FirstSeen.IsZero() {
			m.FirstSeen = now
		}
		if r.JourneyID != "" && !l.HasJourney(r.JourneyID) {
			l.JourneyIDs = append(l.JourneyIDs, r.JourneyID)
		}
		m.Confidence = Confidence(*m, l.Validation.HumanReviewed, now)
		m.ConfidenceHistory = appendHistory(m.ConfidenceHistory, m.Confidence, now)

		res = Result{Kind: KindLesson, ID: l.ID, Match: match, Confidence: m.Confidence, Uses: m.Occurrences, SuccessRate: m.SuccessRate}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (e *Engine) findLesson(doc *types.LessonsDocument, r Report) (*types.Lesson, MatchKind) {
	// An explicit id is authoritative: no fuzzy fallback on a miss.
	if r.ID != "" {
		if l := doc.Find(r.ID); l != nil && !l.Archived {
			return l, MatchID
		}
		return nil, ""
	}
	for _, text := range []string{r.Selector, r.StepText} {
		if text == "" {
			continue
		}
		if l := bestLesson(doc, text); l != nil {
			e.logger.Debug("matched lesson by fuzzy text", "lesson", l.ID, "text", text)
			return l, MatchFuzzy
		}
	}
	return nil, ""
}

func (e *Engine) recordComponent(ctx context.Context, r Report, now time.Time) (*Result, error) {
	var res Result
	err := e.store.UpdateComponents(ctx, func(doc *types.ComponentsDocument) error {
		var c *types.Component
		match := MatchID
		if r.ID != "" {
			if found := doc.Find(r.ID); found != nil && !found.Archived {
				c = found
			}
		} else {
			for _, text := range []string{r.StepText, r.Selector} {
				if text == "" {
					continue
				}
				if c = bestComponent(doc, text); c != nil {
					match = MatchFuzzy
					break
				}
			}
		}
		if c == nil {
			return fmt.Errorf("%w: component %s", ErrNotFound, describe(r))
		}

		m := &c.Metrics
		m.TotalUses++
		m.SuccessRate = runningRate(m.SuccessRate, m.TotalUses, r.Success)
		m.LastUsed = &now

		res = Result{Kind: KindComponent, ID: c.ID, Match: match, Confidence: m.SuccessRate, Uses: m.TotalUses, SuccessRate: m.SuccessRate}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (e *Engine) recordPattern(ctx context.Context, r Report, now time.Time) (*Result, error) {
	var res Result
	err := e.store.UpdatePatterns(ctx, func(doc *types.PatternsDocument) error {
		p, match := findPattern(doc, r.ID, r.Selector, r.StepText)
		if p == nil {
			return fmt.Errorf("%w: pattern %s", ErrNotFound, describe(r))
		}

		if r.Success {
			p.SuccessCount++
			p.Confidence += PatternSuccessDelta
		} else {
			p.FailCount++
			p.Confidence -= PatternFailureDelta
		}
		p.Confidence = math.Round(math.Max(0, math.Min(PatternCeiling, p.Confidence))*100) / 100
		p.LastUsed = &now
		if r.JourneyID != "" && !contains(p.SourceJourneys, r.JourneyID) {
			p.SourceJourneys = append(p.SourceJourneys, r.JourneyID)
		}

		rate := 0.0
		if n := p.Attempts(); n > 0 {
			rate = float64(p.SuccessCount) / float64(n)
		}
		res = Result{Kind: KindPattern, ID: p.ID, Match: match, Confidence: p.Confidence, Uses: p.Attempts(), SuccessRate: rate}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func describe(r Report) string {
	switch {
	case r.ID != "":
		return fmt.Sprintf("id=%q", r.ID)
	case r.Selector != "":
		return fmt.Sprintf("selector=%q", r.Selector)
	default:
		return fmt.Sprintf("stepText=%q", r.StepText)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
