package learning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/history"
	"github.com/steveyegge/llkb/internal/patterns"
	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/types"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := now.AddDate(0, 0, -n)
	return &t
}

type harness struct {
	store   *storage.Store
	history *history.Log
	engine  *Engine
	cfg     *config.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := func() time.Time { return now }
	cfg := config.Default()
	cfg.Modules = []config.ModuleRule{{Name: "invoice", Paths: []string{"tests/modules/**"}, ImportPath: "@modules/invoice"}}
	store, err := storage.Open(t.TempDir(), cfg.Lock, storage.WithClock(clock))
	require.NoError(t, err)
	log := history.New(store.HistoryPath(), history.WithClock(clock))
	return &harness{store: store, history: log, engine: New(store, log, cfg), cfg: cfg}
}

func (h *harness) seedLessons(t *testing.T, lessons ...types.Lesson) {
	t.Helper()
	require.NoError(t, h.store.UpdateLessons(context.Background(), func(d *types.LessonsDocument) error {
		d.Lessons = append(d.Lessons, lessons...)
		return nil
	}))
}

func (h *harness) events(t *testing.T) []types.HistoryEvent {
	t.Helper()
	events, err := h.history.Read(now)
	require.NoError(t, err)
	return events
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name     string
		metrics  types.LessonMetrics
		reviewed bool
		want     float64
	}{
		{"half occurrences", types.LessonMetrics{Occurrences: 5, SuccessRate: 1, LastSuccess: daysAgo(0)}, false, 0.5},
		{"success dampened", types.LessonMetrics{Occurrences: 10, SuccessRate: 0.25, LastSuccess: daysAgo(0)}, false, 0.5},
		{"success decay", types.LessonMetrics{Occurrences: 10, SuccessRate: 1, LastSuccess: daysAgo(45)}, false, 0.5},
		{"recency floor", types.LessonMetrics{Occurrences: 10, SuccessRate: 1, LastSuccess: daysAgo(200)}, false, 0.3},
		{"never succeeded decays faster", types.LessonMetrics{Occurrences: 10, SuccessRate: 1, FirstSeen: *daysAgo(15)}, false, 0.5},
		{"same age with success", types.LessonMetrics{Occurrences: 10, SuccessRate: 1, LastSuccess: daysAgo(15)}, false, 0.83},
		{"zero rate", types.LessonMetrics{Occurrences: 10, SuccessRate: 0, FirstSeen: now}, false, 0},
		{"reviewed", types.LessonMetrics{Occurrences: 5, SuccessRate: 1, LastSuccess: daysAgo(0)}, true, 0.6},
		{"reviewed clamps", types.LessonMetrics{Occurrences: 10, SuccessRate: 1, LastSuccess: daysAgo(0)}, true, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.metrics, tt.reviewed, now), 1e-9)
		})
	}
}

func TestRunningRateAndHistoryCap(t *testing.T) {
	assert.InDelta(t, 1.0, runningRate(1.0, 10, true), 1e-9)
	assert.InDelta(t, 0.9, runningRate(1.0, 10, false), 1e-9)
	assert.InDelta(t, 1.0, runningRate(0, 1, true), 1e-9)

	var h []types.ConfidencePoint
	for i := 0; i < MaxHistoryPoints+5; i++ {
		h = appendHistory(h, float64(i)/100, now)
	}
	require.Len(t, h, MaxHistoryPoints)
	assert.InDelta(t, 0.05, h[0].Value, 1e-9)
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 0.8, Jaccard("click save invoice button", "click the save invoice button"), 1e-9)
	assert.InDelta(t, 1.0, Jaccard("submit invoice form", "submitInvoiceForm"), 1e-9)
	assert.Zero(t, Jaccard("", "anything"))
	assert.Zero(t, Jaccard("open settings", "close dialog"))
}

func TestNextID(t *testing.T) {
	assert.Equal(t, "L001", nextID("L", nil))
	assert.Equal(t, "L011", nextID("L", []string{"L003", "L010", "custom", "C999"}))
}

func TestRecordLessonOutcome(t *testing.T) {
	h := newHarness(t)
	h.seedLessons(t, types.Lesson{
		ID: "L001", Title: "Save invoice", Category: types.CategorySelector, Scope: types.ScopeUniversal,
		Trigger: "click the save invoice button",
		Metrics: types.LessonMetrics{Occurrences: 9, SuccessRate: 1.0, Confidence: 0.9, FirstSeen: *daysAgo(30), LastSuccess: daysAgo(5)},
	})

	res, err := h.engine.RecordOutcome(context.Background(), Report{Kind: KindLesson, ID: "L001", JourneyID: "JRN-7", Success: true})
	require.NoError(t, err)
	assert.Equal(t, MatchID, res.Match)
	assert.Equal(t, 10, res.Uses)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)

	doc, err := h.store.LoadLessons()
	require.NoError(t, err)
	l := doc.Find("L001")
	require.NotNil(t, l)
	assert.Equal(t, 10, l.Metrics.Occurrences)
	assert.InDelta(t, 1.0, l.Metrics.SuccessRate, 1e-9)
	assert.Greater(t, l.Metrics.Confidence, 0.9)
	assert.True(t, l.Metrics.LastSuccess.Equal(now))
	assert.Equal(t, []string{"JRN-7"}, l.JourneyIDs)
	require.Len(t, l.Metrics.ConfidenceHistory, 1)

	events := h.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventLessonApplied, events[0].Event)
	assert.Equal(t, "L001", events[0].LessonID)
	require.NotNil(t, events[0].Success)
	assert.True(t, *events[0].Success)
}

func TestRecordLessonFuzzyAndNotFound(t *testing.T) {
	h := newHarness(t)
	h.seedLessons(t, types.Lesson{
		ID: "L001", Title: "Save invoice", Category: types.CategorySelector, Scope: types.ScopeUniversal,
		Trigger: "click the save invoice button",
		Metrics: types.LessonMetrics{FirstSeen: now},
	})
	ctx := context.Background()

	res, err := h.engine.RecordOutcome(ctx, Report{Kind: KindLesson, StepText: "click save invoice button", Success: false})
	require.NoError(t, err)
	assert.Equal(t, MatchFuzzy, res.Match)
	assert.Equal(t, "L001", res.ID)
	assert.Zero(t, res.SuccessRate)

	before, err := h.store.LoadLessons()
	require.NoError(t, err)

	_, err = h.engine.RecordOutcome(ctx, Report{Kind: KindLesson, StepText: "open settings menu", Success: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = h.engine.RecordOutcome(ctx, Report{Kind: KindLesson, ID: "L999", Success: true})
	assert.True(t, errors.Is(err, ErrNotFound))

	after, err := h.store.LoadLessons()
	require.NoError(t, err)
	assert.Equal(t, before.Lessons, after.Lessons, "no lesson is created on a miss")
	assert.Len(t, h.events(t), 1)
}

func TestRecordExplicitIDMissSkipsFuzzy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLessons(t, types.Lesson{
		ID: "L001", Title: "Save invoice", Category: types.CategorySelector, Scope: types.ScopeUniversal,
		Trigger: "click the save invoice button",
		Metrics: types.LessonMetrics{Occurrences: 4, SuccessRate: 0.5, FirstSeen: now},
	})
	require.NoError(t, h.store.UpdateComponents(ctx, func(d *types.ComponentsDocument) error {
		d.Components = append(d.Components, types.Component{
			ID: "C001", Name: "submitInvoiceForm", Category: types.ComponentForm, Scope: types.ScopeUniversal,
			Metrics: types.ComponentMetrics{TotalUses: 3, SuccessRate: 1.0},
		})
		return nil
	}))

	tests := []struct {
		name   string
		report Report
	}{
		{"unknown lesson id with matching step text", Report{Kind: KindLesson, ID: "L999", StepText: "click save invoice button", Success: true}},
		{"unknown lesson id with matching selector", Report{Kind: KindLesson, ID: "L999", Selector: "click the save invoice button", Success: true}},
		{"unknown component id with matching step text", Report{Kind: KindComponent, ID: "C999", StepText: "submit invoice form", Success: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.RecordOutcome(ctx, tt.report)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}

	lessons, err := h.store.LoadLessons()
	require.NoError(t, err)
	l := lessons.Find("L001")
	require.NotNil(t, l)
	assert.Equal(t, 4, l.Metrics.Occurrences)
	assert.InDelta(t, 0.5, l.Metrics.SuccessRate, 1e-9)
	assert.Nil(t, l.Metrics.LastSuccess)

	components, err := h.store.LoadComponents()
	require.NoError(t, err)
	c := components.Find("C001")
	require.NotNil(t, c)
	assert.Equal(t, 3, c.Metrics.TotalUses)
	assert.Nil(t, c.Metrics.LastUsed)

	assert.Empty(t, h.events(t))
}

func TestRecordOutcomeRejectsInvalidReport(t *testing.T) {
	h := newHarness(t)
	tests := []Report{
		{Kind: "widget", ID: "X"},
		{Kind: KindLesson},
	}
	for _, r := range tests {
		_, err := h.engine.RecordOutcome(context.Background(), r)
		assert.ErrorIs(t, err, ErrInvalidReport)
	}
}

func TestRecordComponentOutcome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.UpdateComponents(ctx, func(d *types.ComponentsDocument) error {
		d.Components = append(d.Components, types.Component{
			ID: "C001", Name: "submitInvoiceForm", Category: types.ComponentForm, Scope: types.ScopeUniversal,
			Metrics: types.ComponentMetrics{TotalUses: 3, SuccessRate: 1.0},
		})
		return nil
	}))

	var observed []Kind
	engine := New(h.store, h.history, h.cfg, WithOutcomeObserver(func(k Kind, _ bool) { observed = append(observed, k) }))

	res, err := engine.RecordOutcome(ctx, Report{Kind: KindComponent, ID: "C001", Success: false})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Uses)
	assert.InDelta(t, 0.75, res.SuccessRate, 1e-9)

	res, err = engine.RecordOutcome(ctx, Report{Kind: KindComponent, StepText: "submit invoice form", Success: true})
	require.NoError(t, err)
	assert.Equal(t, MatchFuzzy, res.Match)
	assert.Equal(t, 5, res.Uses)
	assert.InDelta(t, 0.8, res.SuccessRate, 1e-9)

	doc, err := h.store.LoadComponents()
	require.NoError(t, err)
	c := doc.Find("C001")
	require.NotNil(t, c.Metrics.LastUsed)
	assert.True(t, c.Metrics.LastUsed.Equal(now))
	assert.Equal(t, []Kind{KindComponent, KindComponent}, observed)

	events := h.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventComponentUsed, events[1].Event)
}

func TestRecordPatternOutcome(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	norm := patterns.NormalizeText("click the save invoice button")
	require.NoError(t, h.store.UpdatePatterns(ctx, func(d *types.PatternsDocument) error {
		d.Patterns = append(d.Patterns, types.DiscoveredPattern{
			ID: "DP-abc", NormalizedText: norm, OriginalText: "click the save invoice button",
			MappedAction: types.ActionClick, Confidence: 0.94, Layer: types.LayerAppSpecific,
			SelectorHints: []types.SelectorHint{{Strategy: types.StrategyTestID, Value: "save-invoice-button", Confidence: 0.9}},
		})
		return nil
	}))

	tests := []struct {
		name   string
		report Report
		match  MatchKind
		want   float64
	}{
		{"success by selector is capped", Report{Kind: KindPattern, Selector: "save-invoice-button", Success: true}, MatchSelector, 0.95},
		{"failure by id", Report{Kind: KindPattern, ID: "DP-abc", Success: false}, MatchID, 0.90},
		{"success by text", Report{Kind: KindPattern, StepText: "Click the Save Invoice button!", JourneyID: "JRN-2", Success: true}, MatchText, 0.92},
	}
	for _, tt := range tests {
		res, err := h.engine.RecordOutcome(ctx, tt.report)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.match, res.Match, tt.name)
		assert.InDelta(t, tt.want, res.Confidence, 1e-9, tt.name)
	}

	doc, err := h.store.LoadPatterns()
	require.NoError(t, err)
	p := doc.Find("DP-abc")
	assert.Equal(t, 2, p.SuccessCount)
	assert.Equal(t, 1, p.FailCount)
	assert.Equal(t, []string{"JRN-2"}, p.SourceJourneys)
	require.NotNil(t, p.LastUsed)

	_, err = h.engine.RecordOutcome(ctx, Report{Kind: KindPattern, Selector: "missing", Success: true})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLessons(t, types.Lesson{ID: "L001", Title: "existing", Category: types.CategoryQuirk, Scope: types.ScopeUniversal, Trigger: "open invoice modal"})
	require.NoError(t, h.store.UpdatePatterns(ctx, func(d *types.PatternsDocument) error {
		d.Patterns = []types.DiscoveredPattern{
			{ID: "DP-1", NormalizedText: "create new invoice", OriginalText: "create new invoice", MappedAction: types.ActionClick,
				Confidence: 0.8, Layer: types.LayerAppSpecific, Category: "crud", Source: types.SourceTemplate, EntityName: "invoice",
				SelectorHints: []types.SelectorHint{{Strategy: types.StrategyTestID, Value: "create-invoice-button", Confidence: 0.9}}},
			{ID: "DP-2", NormalizedText: "see invoice list", MappedAction: types.ActionAssert, Confidence: 0.5, Layer: types.LayerAppSpecific},
			{ID: "DP-3", NormalizedText: "open invoice modal", MappedAction: types.ActionClick, Confidence: 0.9, Layer: types.LayerAppSpecific},
			{ID: "DP-4", NormalizedText: "sort grid column", OriginalText: "sort grid column", MappedAction: types.ActionClick,
				Confidence: 0.75, Layer: types.LayerFramework, TemplateSource: "ag-grid", Source: types.SourceFramework},
		}
		return nil
	}))

	result, err := h.engine.Promote(ctx, 0.7)
	require.NoError(t, err)
	assert.Equal(t, []string{"L002", "L003"}, result.Promoted)
	assert.Equal(t, 1, result.Skipped)

	doc, err := h.store.LoadLessons()
	require.NoError(t, err)
	l := doc.Find("L002")
	require.NotNil(t, l)
	assert.Equal(t, "create new invoice", l.Trigger)
	assert.Equal(t, types.CategoryUIInteract, l.Category)
	assert.Equal(t, types.ScopeAppSpecific, l.Scope)
	assert.Equal(t, `click using testid "create-invoice-button"`, l.Pattern)
	assert.Equal(t, []string{"crud", "template", "invoice"}, l.Tags)
	assert.InDelta(t, 0.8, l.Metrics.Confidence, 1e-9)
	assert.NoError(t, l.Validate())

	assert.Equal(t, types.FrameworkScope("ag-grid"), doc.Find("L003").Scope)

	events := h.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventLessonPromoted, events[0].Event)
	assert.Equal(t, "DP-1", events[0].PatternID)

	again, err := h.engine.Promote(ctx, 0.7)
	require.NoError(t, err)
	assert.Empty(t, again.Promoted)
	assert.Equal(t, 3, again.Skipped)

	_, err = h.engine.Promote(ctx, 1.5)
	assert.Error(t, err)
}

func TestPromoteLastSuccess(t *testing.T) {
	tests := []struct {
		name        string
		success     int
		fail        int
		wantSuccess bool
	}{
		{"failures only", 0, 3, false},
		{"mixed outcomes", 2, 1, true},
		{"never used", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			var used *time.Time
			if tt.success+tt.fail > 0 {
				used = daysAgo(2)
			}
			require.NoError(t, h.store.UpdatePatterns(ctx, func(d *types.PatternsDocument) error {
				d.Patterns = []types.DiscoveredPattern{{
					ID: "DP-1", NormalizedText: "archive invoice", OriginalText: "archive invoice", MappedAction: types.ActionClick,
					Confidence: 0.8, Layer: types.LayerAppSpecific, SuccessCount: tt.success, FailCount: tt.fail, LastUsed: used,
				}}
				return nil
			}))

			result, err := h.engine.Promote(ctx, 0.7)
			require.NoError(t, err)
			require.Equal(t, []string{"L001"}, result.Promoted)

			doc, err := h.store.LoadLessons()
			require.NoError(t, err)
			m := doc.Find("L001").Metrics
			assert.Equal(t, tt.success+tt.fail, m.Occurrences)
			if tt.wantSuccess {
				require.NotNil(t, m.LastSuccess)
				assert.True(t, m.LastSuccess.Equal(*used))
			} else {
				assert.Nil(t, m.LastSuccess)
			}
			if used != nil {
				require.NotNil(t, m.LastApplied)
				assert.True(t, m.LastApplied.Equal(*used))
			} else {
				assert.Nil(t, m.LastApplied)
			}
		})
	}
}

func TestExtractComponent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := ComponentInput{
		Name: "submitInvoiceForm", Category: types.ComponentForm, FilePath: "tests/modules/invoice.ts",
		Description: "fills and submits", OriginalCode: "await page.click(...)", ExtractedFrom: "JRN-1.spec.ts", JourneyID: "JRN-1",
	}

	c, err := h.engine.ExtractComponent(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "C001", c.ID)
	assert.Equal(t, types.ScopeAppSpecific, c.Scope)
	assert.True(t, c.Source.ExtractedAt.Equal(now))

	reg, err := h.store.LoadRegistry()
	require.NoError(t, err)
	m, ok := reg.Lookup("submitInvoiceForm")
	require.True(t, ok)
	assert.Equal(t, "@modules/invoice", m.ImportPath)

	_, err = h.engine.ExtractComponent(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicate)

	bad := in
	bad.Name = "other"
	bad.Category = "widget"
	_, err = h.engine.ExtractComponent(ctx, bad)
	assert.Error(t, err)

	events := h.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventComponentExtracted, events[0].Event)
	assert.Equal(t, "C001", events[0].ComponentID)
}

func TestArchiveStale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lesson := func(id string, occ int, conf float64, lastApplied *time.Time) types.Lesson {
		return types.Lesson{ID: id, Title: id, Category: types.CategoryQuirk, Scope: types.ScopeUniversal,
			Metrics: types.LessonMetrics{Occurrences: occ, Confidence: conf, FirstSeen: *daysAgo(300), LastApplied: lastApplied}}
	}
	done := lesson("L004", 1, 0.9, daysAgo(400))
	done.Archived = true
	h.seedLessons(t,
		lesson("L001", 3, 0.9, daysAgo(200)),
		lesson("L002", 6, 0.1, daysAgo(1)),
		lesson("L003", 2, 0.1, daysAgo(1)),
		done,
	)
	require.NoError(t, h.store.UpdateComponents(ctx, func(d *types.ComponentsDocument) error {
		d.Components = []types.Component{
			{ID: "C001", Name: "old", Category: types.ComponentForm, Scope: types.ScopeUniversal,
				Metrics: types.ComponentMetrics{LastUsed: daysAgo(200)}, Source: types.ComponentSource{ExtractedAt: *daysAgo(365)}},
			{ID: "C002", Name: "new", Category: types.ComponentForm, Scope: types.ScopeUniversal,
				Source: types.ComponentSource{ExtractedAt: *daysAgo(10)}},
		}
		return nil
	}))

	result, err := h.engine.ArchiveStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"L001", "L002"}, result.Lessons)
	assert.Equal(t, []string{"C001"}, result.Components)

	doc, err := h.store.LoadLessons()
	require.NoError(t, err)
	assert.True(t, doc.Find("L001").Archived)
	assert.False(t, doc.Find("L003").Archived)
	assert.Len(t, doc.Lessons, 4, "archiving never deletes")

	components, err := h.store.LoadComponents()
	require.NoError(t, err)
	assert.Equal(t, []string{"C002"}, components.ComponentsByCategory["form"])

	events := h.events(t)
	require.Len(t, events, 3)
	assert.Equal(t, ReasonStale, events[0].Details["reason"])
	assert.Equal(t, ReasonLowConfidence, events[1].Details["reason"])
	assert.Equal(t, types.EventComponentArchived, events[2].Event)
}

func TestRefresh(t *testing.T) {
	h := newHarness(t)
	h.seedLessons(t,
		types.Lesson{ID: "L001", Title: "decays", Category: types.CategoryQuirk, Scope: types.ScopeUniversal,
			Metrics: types.LessonMetrics{Occurrences: 10, SuccessRate: 1, Confidence: 1.0, LastSuccess: daysAgo(45)}},
		types.Lesson{ID: "L002", Title: "unused", Category: types.CategoryQuirk, Scope: types.ScopeUniversal,
			Metrics: types.LessonMetrics{Confidence: 0.7}},
	)

	changed, err := h.engine.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	doc, err := h.store.LoadLessons()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, doc.Find("L001").Metrics.Confidence, 1e-9)
	assert.InDelta(t, 0.7, doc.Find("L002").Metrics.Confidence, 1e-9)
}
