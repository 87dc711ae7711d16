package relevance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/types"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func fixtures() ([]types.Lesson, []types.Component) {
	lessons := []types.Lesson{
		{
			ID: "L1", Title: "Use testid for invoice form", Category: types.CategorySelector, Scope: types.ScopeUniversal,
			Trigger: "submit button", JourneyIDs: []string{"JRN-1"},
			Metrics: types.LessonMetrics{Confidence: 0.8, SuccessRate: 1.0, Occurrences: 10, LastSuccess: ago(24 * time.Hour)},
		},
		{
			ID: "L2", Title: "Wait for spinner", Category: types.CategoryTiming, Scope: types.ScopeAppSpecific,
			Trigger: "loading overlay",
			Metrics: types.LessonMetrics{Confidence: 0.5, SuccessRate: 0.5, Occurrences: 1},
		},
		{
			ID: "L3", Title: "Invoice grid rows", Category: types.CategorySelector, Scope: types.FrameworkScope("react"),
			Metrics: types.LessonMetrics{Confidence: 0.6, SuccessRate: 0.6, Occurrences: 2},
		},
		{
			ID: "L4", Title: "Archived invoice form submit", Category: types.CategorySelector, Scope: types.ScopeUniversal,
			Archived: true,
			Metrics:  types.LessonMetrics{Confidence: 1.0},
		},
	}
	components := []types.Component{
		{
			ID: "C1", Name: "submitInvoiceForm", Description: "Fills and submits the invoice form",
			Category: types.ComponentForm, Scope: types.ScopeUniversal,
			Metrics: types.ComponentMetrics{TotalUses: 6, SuccessRate: 1.0, LastUsed: ago(48 * time.Hour)},
		},
	}
	return lessons, components
}

var journey = Journey{ID: "JRN-1", Description: "Submit the invoice form", Categories: []string{"selector"}}

func TestKeywords(t *testing.T) {
	assert.Equal(t,
		[]string{"detail", "form", "order", "submit", "verify"},
		Keywords("Submit the Orders form, then verify orderDetails!"))
	assert.Empty(t, Keywords("a an to"))
}

func TestScopeScore(t *testing.T) {
	react := &types.AppProfile{Frameworks: []string{"react"}, UILibraries: []string{"mui"}}
	tests := []struct {
		name    string
		scope   types.Scope
		profile *types.AppProfile
		want    float64
		ok      bool
	}{
		{"universal", types.ScopeUniversal, react, ScopeScoreUniversal, true},
		{"framework match", types.FrameworkScope("react"), react, ScopeScoreFramework, true},
		{"ui library match", types.FrameworkScope("mui"), react, ScopeScoreFramework, true},
		{"framework mismatch", types.FrameworkScope("angular"), react, 0, false},
		{"no profile", types.FrameworkScope("angular"), nil, ScopeScoreFramework, true},
		{"app specific", types.ScopeAppSpecific, react, ScopeScoreAppSpecific, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := scopeScore(tt.scope, tt.profile)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestRank(t *testing.T) {
	lessons, components := fixtures()
	opts := Options{MaxLessons: 10, MaxComponents: 10, MinRelevance: 0.3, SortBy: SortByRelevance, Now: now}

	ranked := Rank(journey, lessons, components, &types.AppProfile{Frameworks: []string{"react"}}, opts)

	assert.Equal(t, []string{"form", "invoice", "submit"}, ranked.Keywords)
	require.Len(t, ranked.Lessons, 2)
	assert.Equal(t, "L1", ranked.Lessons[0].Lesson.ID)
	assert.InDelta(t, 1.0, ranked.Lessons[0].Relevance, 1e-9, "clamped")
	assert.InDelta(t, 0.10, ranked.Lessons[0].Breakdown.History, 1e-9)
	assert.InDelta(t, 0.10, ranked.Lessons[0].Breakdown.Bonus, 1e-9)
	assert.Equal(t, "L3", ranked.Lessons[1].Lesson.ID)
	assert.InDelta(t, 0.58, ranked.Lessons[1].Relevance, 1e-9)
	assert.Equal(t, 1, ranked.Excluded, "L2 is below minimum relevance")

	require.Len(t, ranked.Components, 1)
	assert.InDelta(t, 0.8, ranked.Components[0].Relevance, 1e-9)
}

func TestRankExcludesMismatchedFramework(t *testing.T) {
	lessons, _ := fixtures()
	opts := Options{MinRelevance: 0.3, Now: now}

	ranked := Rank(journey, lessons, nil, &types.AppProfile{Frameworks: []string{"vue"}}, opts)
	require.Len(t, ranked.Lessons, 1)
	assert.Equal(t, "L1", ranked.Lessons[0].Lesson.ID)
	assert.Equal(t, 2, ranked.Excluded)
}

func TestRankSortAndLimit(t *testing.T) {
	lessons := []types.Lesson{
		{ID: "LA", Title: "Dismiss cookie banner", Category: types.CategoryQuirk, Scope: types.ScopeUniversal,
			Metrics: types.LessonMetrics{Confidence: 0.95}},
		{ID: "LB", Title: "Invoice form submit", Category: types.CategorySelector, Scope: types.ScopeUniversal,
			Metrics: types.LessonMetrics{Confidence: 0.6}},
	}

	byRelevance := Rank(journey, lessons, nil, nil, Options{Now: now, SortBy: SortByRelevance})
	require.Len(t, byRelevance.Lessons, 2)
	assert.Equal(t, "LB", byRelevance.Lessons[0].Lesson.ID)

	byConfidence := Rank(journey, lessons, nil, nil, Options{Now: now, SortBy: SortByConfidence})
	assert.Equal(t, "LA", byConfidence.Lessons[0].Lesson.ID)

	limited := Rank(journey, lessons, nil, nil, Options{Now: now, MaxLessons: 1})
	require.Len(t, limited.Lessons, 1)
	assert.Equal(t, "LB", limited.Lessons[0].Lesson.ID)
}

func TestCategoryNeutralWithoutJourneyCategories(t *testing.T) {
	lessons, _ := fixtures()
	ranked := Rank(Journey{Description: "anything"}, lessons[:1], nil, nil, Options{Now: now})
	require.Len(t, ranked.Lessons, 1)
	assert.InDelta(t, WeightCategory*neutralCategory, ranked.Lessons[0].Breakdown.Category, 1e-9)
	assert.Zero(t, ranked.Lessons[0].Breakdown.History)
}

func TestAssembleAndMarkdown(t *testing.T) {
	ctx := context.Background()
	store, err := storage.Open(t.TempDir(), config.Default().Lock, storage.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	lessons, components := fixtures()
	require.NoError(t, store.UpdateLessons(ctx, func(d *types.LessonsDocument) error {
		d.Lessons = lessons
		return nil
	}))
	require.NoError(t, store.UpdateComponents(ctx, func(d *types.ComponentsDocument) error {
		d.Components = components
		return nil
	}))
	require.NoError(t, store.UpdateRegistry(ctx, func(d *types.RegistryDocument) error {
		d.Modules = []types.Module{{Name: "invoice", FilePath: "tests/modules/invoice.ts", ImportPath: "@modules/invoice", Exports: []string{"submitInvoiceForm"}}}
		return nil
	}))

	ranked, err := Assemble(store, journey, Options{MinRelevance: 0.3})
	require.NoError(t, err)
	require.Len(t, ranked.Components, 1)
	assert.Equal(t, "@modules/invoice", ranked.Components[0].ImportPath)

	md := ranked.Markdown()
	assert.Contains(t, md, "## Learned context for JRN-1")
	assert.Contains(t, md, "**Use testid for invoice form**")
	assert.Contains(t, md, "  - When: submit button")
	assert.Contains(t, md, "`submitInvoiceForm` from `@modules/invoice`")
	assert.NotContains(t, md, "Archived invoice form submit")
}

func TestMarkdownEmpty(t *testing.T) {
	r := &RankedContext{}
	assert.True(t, r.Empty())
	assert.Contains(t, r.Markdown(), "No relevant lessons or components")
}
