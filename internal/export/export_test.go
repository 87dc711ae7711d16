package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/types"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func samplePatterns() []types.DiscoveredPattern {
	return []types.DiscoveredPattern{
		{ID: "DP-1", NormalizedText: "create new invoice", MappedAction: types.ActionClick, Confidence: 0.8,
			Layer: types.LayerAppSpecific, Source: types.SourceTemplate,
			SelectorHints: []types.SelectorHint{
				{Strategy: types.StrategyText, Value: "New invoice", Confidence: 0.6},
				{Strategy: types.StrategyTestID, Value: "create-invoice", Confidence: 0.9},
			}},
		{ID: "DP-2", NormalizedText: "create new invoice", MappedAction: types.ActionClick, Confidence: 0.75,
			Layer: types.LayerAppSpecific, Source: types.SourceDiscovery},
		{ID: "DP-3", NormalizedText: "see invoice list", MappedAction: types.ActionAssert, Confidence: 0.9,
			Layer: types.LayerAppSpecific, Source: types.SourceDiscovery},
		{ID: "DP-4", NormalizedText: "toggle new checkout", MappedAction: types.ActionCheck, Confidence: 0.5,
			Layer: types.LayerAppSpecific, Source: types.SourceSignal},
	}
}

func sampleLessons() []types.Lesson {
	return []types.Lesson{
		{ID: "L002", Title: "Grid needs settle", Category: types.CategoryTiming, Scope: types.FrameworkScope("ag-grid"),
			Trigger: "sort grid column", Pattern: "wait for grid idle", Metrics: types.LessonMetrics{Confidence: 0.8, Occurrences: 6, SuccessRate: 0.9}},
		{ID: "L001", Title: "Prefer test ids", Category: types.CategorySelector, Scope: types.ScopeUniversal,
			Trigger: "button, with text", Pattern: "use data-testid", Tags: []string{"selector"},
			Metrics: types.LessonMetrics{Confidence: 0.9, Occurrences: 10, SuccessRate: 1}},
		{ID: "L003", Title: "Weak", Category: types.CategorySelector, Scope: types.ScopeAppSpecific,
			Metrics: types.LessonMetrics{Confidence: 0.3}},
		{ID: "L004", Title: "Archived", Category: types.CategoryTiming, Scope: types.ScopeAppSpecific,
			Metrics: types.LessonMetrics{Confidence: 0.95}, Archived: true},
	}
}

func TestBuildGlossary(t *testing.T) {
	g := BuildGlossary(samplePatterns(), 0.7)
	require.Len(t, g, 2)
	assert.Equal(t, GlossaryEntry{Action: "click", Selector: "create-invoice", Strategy: "testid", Confidence: 0.8, Source: "template"},
		g["create new invoice"])
	assert.Equal(t, GlossaryEntry{Action: "assert", Confidence: 0.9, Source: "discovery"}, g["see invoice list"])
}

func TestBuildFragment(t *testing.T) {
	modules := []types.Module{
		{Name: "invoice", ImportPath: "@modules/invoice", Exports: []string{"createInvoice"}},
		{Name: "auth", ImportPath: "@modules/auth", Exports: []string{"login"}},
	}
	f := BuildFragment(samplePatterns(), sampleLessons(), modules, 0.7)

	var ids []string
	for _, p := range f.Patterns {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"DP-3", "DP-1", "DP-2"}, ids)
	assert.Equal(t, "create-invoice", f.Patterns[1].Selector)

	require.Len(t, f.SelectorOverrides, 1)
	assert.Equal(t, SelectorOverride{LessonID: "L001", When: "button, with text", Use: "use data-testid", Confidence: 0.9}, f.SelectorOverrides[0])
	require.Len(t, f.TimingHints, 1)
	assert.Equal(t, "L002", f.TimingHints[0].LessonID)

	require.Len(t, f.Modules, 2)
	assert.Equal(t, "auth", f.Modules[0].Name)
}

func TestBundleWritesFiles(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	store, err := storage.Open(t.TempDir(), cfg.Lock, storage.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	require.NoError(t, store.UpdatePatterns(ctx, func(d *types.PatternsDocument) error {
		d.Patterns = samplePatterns()
		return nil
	}))
	require.NoError(t, store.UpdateLessons(ctx, func(d *types.LessonsDocument) error {
		d.Lessons = sampleLessons()
		return nil
	}))

	out := filepath.Join(t.TempDir(), "bundle")
	result, err := Bundle(ctx, store, cfg, out)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Patterns)
	assert.Equal(t, 2, result.GlossaryEntries)
	assert.Equal(t, 1, result.SelectorOverrides)
	assert.Equal(t, 0, result.Modules)

	data, err := os.ReadFile(result.ConfigPath)
	require.NoError(t, err)
	var fragment ConfigFragment
	require.NoError(t, yaml.Unmarshal(data, &fragment))
	assert.Equal(t, types.CurrentVersion, fragment.Version)
	assert.True(t, now.Equal(fragment.GeneratedAt))
	assert.Len(t, fragment.Patterns, 3)
	assert.Contains(t, string(data), "additionalPatterns:")

	data, err = os.ReadFile(result.GlossaryPath)
	require.NoError(t, err)
	var glossary map[string]GlossaryEntry
	require.NoError(t, json.Unmarshal(data, &glossary))
	assert.Equal(t, "assert", glossary["see invoice list"].Action)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"markdown", FormatMarkdown, false},
		{"MD", FormatMarkdown, false},
		{" csv ", FormatCSV, false},
		{"json", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLessonsFormats(t *testing.T) {
	lessons := sampleLessons()

	var md bytes.Buffer
	require.NoError(t, Lessons(&md, lessons, FormatMarkdown))
	assert.Contains(t, md.String(), "## L001: Prefer test ids")
	assert.Contains(t, md.String(), "- Confidence: 0.90 (10 occurrences, 100% success)")
	assert.Contains(t, md.String(), "- When: button, with text")
	assert.Less(t, bytes.Index(md.Bytes(), []byte("L001")), bytes.Index(md.Bytes(), []byte("L002")))

	var c bytes.Buffer
	require.NoError(t, Lessons(&c, lessons, FormatCSV))
	rows, err := csv.NewReader(&c).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, []string{"L001", "Prefer test ids", "selector", "universal", "button, with text", "use data-testid",
		"0.90", "10", "1.00", "false", "false"}, rows[1])

	var j bytes.Buffer
	require.NoError(t, Lessons(&j, lessons, FormatJSON))
	var decoded []types.Lesson
	require.NoError(t, json.Unmarshal(j.Bytes(), &decoded))
	assert.Len(t, decoded, 4)
	assert.Equal(t, "L001", decoded[0].ID)

	assert.Error(t, Lessons(&j, lessons, Format("yaml")))
}

func TestComponentsFormats(t *testing.T) {
	components := []types.Component{
		{ID: "C002", Name: "loginAs", Category: types.ComponentAuth, Scope: types.ScopeUniversal, FilePath: "tests/modules/auth.ts",
			Metrics: types.ComponentMetrics{TotalUses: 4, SuccessRate: 0.75}},
		{ID: "C001", Name: "createInvoice", Category: types.ComponentForm, Scope: types.ScopeAppSpecific,
			Description: "Fills and submits the invoice form"},
	}

	var md bytes.Buffer
	require.NoError(t, Components(&md, components, FormatMarkdown))
	assert.Contains(t, md.String(), "## C001: `createInvoice`")
	assert.Contains(t, md.String(), "Fills and submits the invoice form")
	assert.Contains(t, md.String(), "- Uses: 4 (75% success)")

	var c bytes.Buffer
	require.NoError(t, Components(&c, components, FormatCSV))
	rows, err := csv.NewReader(&c).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "C001", rows[1][0])
	assert.Equal(t, "0.75", rows[2][7])

	var empty bytes.Buffer
	require.NoError(t, Components(&empty, nil, FormatMarkdown))
	assert.Contains(t, empty.String(), "_No components._")
}
