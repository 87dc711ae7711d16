package discovery

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/history"
	"github.com/steveyegge/llkb/internal/metrics"
	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/types"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func sampleProject(t *testing.T) string {
	return writeProject(t, map[string]string{
		"package.json": `{"dependencies": {"react": "18.2.0", "@mui/material": "5.0.0"}}`,
		"src/api/invoices.ts": `
export interface InvoiceDto { id: string }
export async function listInvoices() { return fetch('/api/invoices') }
`,
		"src/components/InvoiceForm.tsx": `
export function InvoiceForm() {
  return <form><input name="amount" data-testid="invoice-amount" /></form>
}
`,
		"src/pages/orders/[id].tsx": `export default function OrderPage() { return null }`,
		"src/locales/en.json":       `{"invoice": {"save": "Save invoice"}}`,
		"src/tracking.ts": `
analytics.track('Invoice Created')
const enabled = useFlag('new-checkout')
`,
	})
}

func newOrchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	base := []Option{WithLogger(logger), WithClock(func() time.Time { return testNow })}
	return NewOrchestrator(config.Default(), append(base, opts...)...)
}

func TestRunPersistsDocuments(t *testing.T) {
	project := sampleProject(t)
	storeRoot := t.TempDir()
	m := metrics.New(nil)

	result, err := newOrchestrator(t, WithMetrics(m)).Run(context.Background(), project, storeRoot, Options{})
	require.NoError(t, err)
	require.True(t, result.Success, result.Summary())
	assert.Empty(t, result.Errors)
	require.NotEmpty(t, result.Patterns)
	assert.Equal(t, len(result.Patterns), result.Stats.AfterQuality)
	assert.GreaterOrEqual(t, result.Stats.BeforeQuality, result.Stats.AfterQuality)
	assert.NoError(t, result.Stats.Quality.Validate())

	var names []string
	for _, s := range result.Stats.Stages {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StageMining, StageFrameworks, StageSignals, StageGenerate, StageQuality, StagePersist}, names)

	store, err := storage.Open(storeRoot, config.Default().Lock)
	require.NoError(t, err)

	doc, err := store.LoadPatterns()
	require.NoError(t, err)
	assert.Equal(t, types.CurrentVersion, doc.Version)
	assert.Len(t, doc.Patterns, len(result.Patterns))
	assert.Equal(t, result.Stats.BeforeQuality, doc.Metadata.BeforeQuality)
	assert.Contains(t, doc.Metadata.Frameworks, "react")
	assert.Contains(t, doc.Metadata.Frameworks, "mui")

	profile, err := store.LoadProfile()
	require.NoError(t, err)
	assert.Equal(t, []string{"react"}, profile.Frameworks)
	assert.Equal(t, []string{"mui"}, profile.UILibraries)
	assert.Contains(t, profile.Entities, "invoice")
	assert.NotEmpty(t, profile.Fingerprint)
	assert.Equal(t, 1, profile.ElementCount["analyticsEvents"])
	assert.Equal(t, 1, profile.ElementCount["featureFlags"])

	banks, err := filepath.Glob(filepath.Join(storeRoot, storage.PatternBankDir, "*.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, banks)

	events, err := history.New(store.HistoryPath()).Read(testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, types.EventDiscoveryRun, events[0].Event)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiscoveryRuns.WithLabelValues("success")))
	assert.Positive(t, testutil.ToFloat64(m.CacheMisses))
}

func TestRunPreservesUsageAcrossRuns(t *testing.T) {
	project := sampleProject(t)
	storeRoot := t.TempDir()
	o := newOrchestrator(t)

	first, err := o.Run(context.Background(), project, storeRoot, Options{})
	require.NoError(t, err)
	id := first.Patterns[0].ID

	store, err := storage.Open(storeRoot, config.Default().Lock)
	require.NoError(t, err)
	used := testNow.Add(-time.Hour)
	require.NoError(t, store.UpdatePatterns(context.Background(), func(doc *types.PatternsDocument) error {
		p := doc.Find(id)
		p.SuccessCount = 4
		p.FailCount = 1
		p.Confidence = 0.91
		p.LastUsed = &used
		p.SourceJourneys = []string{"JRN-7"}
		return nil
	}))

	second, err := o.Run(context.Background(), project, storeRoot, Options{})
	require.NoError(t, err)
	assert.Equal(t, first.Profile.Fingerprint, second.Profile.Fingerprint)

	doc, err := store.LoadPatterns()
	require.NoError(t, err)
	p := doc.Find(id)
	require.NotNil(t, p)
	assert.Equal(t, 4, p.SuccessCount)
	assert.Equal(t, 1, p.FailCount)
	assert.Equal(t, 0.91, p.Confidence)
	assert.Contains(t, p.SourceJourneys, "JRN-7")
	require.NotNil(t, p.LastUsed)
	assert.True(t, used.Equal(*p.LastUsed))
}

func TestRunContinuesPastSignalFailure(t *testing.T) {
	project := writeProject(t, map[string]string{
		"src/components/CustomerForm.tsx": `export function CustomerForm() { return <form><input name="email" /></form> }`,
		"src/locales/en.json":             `{"broken": `,
	})

	result, err := newOrchestrator(t).Run(context.Background(), project, t.TempDir(), Options{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "i18n pass failed")
	assert.NotEmpty(t, result.Patterns)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	project := sampleProject(t)
	storeRoot := filepath.Join(t.TempDir(), "llkb")

	result, err := newOrchestrator(t).Run(context.Background(), project, storeRoot, Options{
		DryRun:      true,
		SkipSignals: true,
		Frameworks:  []string{"vue", "vuetify"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"vue"}, result.Profile.Frameworks)
	assert.Equal(t, []string{"vuetify"}, result.Profile.UILibraries)
	assert.Equal(t, 0, result.Profile.ElementCount["i18nKeys"])
	assert.Zero(t, result.Stats.BySource[string(types.SourceSignal)])

	_, err = os.Stat(storeRoot)
	assert.True(t, os.IsNotExist(err))
}

func TestRunFailsOnMissingProject(t *testing.T) {
	result, err := newOrchestrator(t).Run(context.Background(), filepath.Join(t.TempDir(), "missing"), t.TempDir(), Options{})
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

func TestFingerprintIgnoresOrder(t *testing.T) {
	a := &types.AppProfile{Frameworks: []string{"react", "next"}, Entities: []string{"order", "invoice"}}
	b := &types.AppProfile{Frameworks: []string{"next", "react"}, Entities: []string{"invoice", "order"}}
	assert.Equal(t, fingerprint(a), fingerprint(b))

	b.Routes = []string{"/orders"}
	assert.NotEqual(t, fingerprint(a), fingerprint(b))
}

func TestMergeJourneys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, mergeJourneys([]string{"a", "b"}, []string{"b", "c"}))
	assert.Equal(t, []string{}, mergeJourneys(nil, nil))
}
