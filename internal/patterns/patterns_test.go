package patterns

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/llkb/internal/mining"
	"github.com/steveyegge/llkb/internal/types"
)

func findByText(ps []types.DiscoveredPattern, text string) (types.DiscoveredPattern, bool) {
	for _, p := range ps {
		if p.NormalizedText == text {
			return p, true
		}
	}
	return types.DiscoveredPattern{}, false
}

func invoiceEntity(sources ...string) mining.Entity {
	return mining.Entity{Name: "invoice", DisplayName: "Invoice", Plural: "invoices", Sources: sources}
}

func TestSeed(t *testing.T) {
	assert.Equal(t, SeedDiscovery, Seed(types.SourceDiscovery))
	assert.Equal(t, SeedTemplate, Seed(types.SourceTemplate))
	assert.Equal(t, SeedFramework, Seed(types.SourceFramework))
	assert.Equal(t, SeedSignal, Seed(types.SourceSignal))

	assert.InDelta(t, 0.80, seed(types.SourceDiscovery, evidenceBonus), 1e-9)
	assert.Equal(t, MaxInitialConfidence, seed(types.SourceDiscovery, 0.5))
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Click the Save button!", "click the save button"},
		{"  The   Invoice  ", "invoice"},
		{"an order", "order"},
		{"fill e-mail_address.field", "fill e-mail_address.field"},
		{"Verify: 'Total' (USD)", "verify total usd"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.in))
		})
	}
}

func TestID(t *testing.T) {
	a := ID("create new invoice", types.ActionClick, OriginCRUD, "invoice")
	b := ID("create new invoice", types.ActionClick, OriginCRUD, "invoice")
	c := ID("create new invoice", types.ActionClick, OriginForm, "invoice")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "DP-"))
	assert.Len(t, a, 15)
}

func TestFromStructureCRUD(t *testing.T) {
	ps := FromStructure(&mining.Result{
		Entities: []mining.Entity{invoiceEntity("rest_path")},
		Routes:   []mining.Route{{Path: "/api/invoices", Source: "rest", Entity: "invoice"}},
	})

	create, ok := findByText(ps, "create new invoice")
	require.True(t, ok)
	assert.Equal(t, types.ActionClick, create.MappedAction)
	assert.GreaterOrEqual(t, create.Confidence, 0.6)
	assert.Equal(t, types.SourceTemplate, create.Source)
	assert.Equal(t, OriginCRUD, create.TemplateSource)
	assert.Equal(t, "invoice", create.EntityName)
	assert.Equal(t, types.LayerAppSpecific, create.Layer)
	best, ok := create.BestSelector()
	require.True(t, ok)
	assert.Equal(t, types.StrategyTestID, best.Strategy)
	assert.Equal(t, "create-invoice-button", best.Value)

	search, ok := findByText(ps, "search invoices")
	require.True(t, ok)
	assert.Equal(t, types.ActionFill, search.MappedAction)

	_, ok = findByText(ps, "verify invoice saved successfully")
	assert.True(t, ok)
	_, ok = findByText(ps, "see success message")
	assert.True(t, ok)

	// REST routes are not navigable pages.
	for _, p := range ps {
		assert.NotEqual(t, OriginNavigation, p.TemplateSource)
		require.NoError(t, p.Validate())
	}
}

func TestFromStructureForm(t *testing.T) {
	ps := FromStructure(&mining.Result{
		Entities: []mining.Entity{invoiceEntity("ts_declaration", "rest_path")},
		Forms: []mining.Form{{
			Name:   "InvoiceForm",
			Entity: "invoice",
			Fields: []mining.Field{
				{Name: "amount", Label: "Amount", Selector: "invoice-amount"},
				{Name: "isPaid"},
				{Name: "customerId", Label: "Customer"},
				{Name: "attachment", Label: "Attachment"},
			},
		}},
	})

	tests := []struct {
		text   string
		action types.Action
	}{
		{"fill amount field", types.ActionFill},
		{"check is paid field", types.ActionCheck},
		{"select customer field", types.ActionSelect},
		{"upload attachment field", types.ActionUpload},
		{"submit invoice form", types.ActionClick},
		{"verify invoice form validation error", types.ActionAssert},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			p, ok := findByText(ps, tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.action, p.MappedAction)
			assert.Equal(t, types.SourceDiscovery, p.Source)
			// two extractors agreed on the entity
			assert.InDelta(t, SeedDiscovery+evidenceBonus, p.Confidence, 1e-9)
		})
	}

	amount, _ := findByText(ps, "fill amount field")
	best, _ := amount.BestSelector()
	assert.Equal(t, types.SelectorHint{Strategy: types.StrategyTestID, Value: "invoice-amount", Confidence: 0.9}, best)

	// "save invoice" exists under both crud and form origins with distinct ids.
	var saves []types.DiscoveredPattern
	for _, p := range ps {
		if p.NormalizedText == "save invoice" {
			saves = append(saves, p)
		}
	}
	require.Len(t, saves, 2)
	assert.NotEqual(t, saves[0].ID, saves[1].ID)
}

func TestFromStructureTableModalNavigation(t *testing.T) {
	ps := FromStructure(&mining.Result{
		Tables: []mining.Table{{Name: "OrderTable", Entity: "order", Columns: []mining.Column{{Key: "total", Header: "Total"}}}},
		Modals: []mining.Modal{{Name: "DeleteOrderModal", Entity: "order", Title: "Delete Order"}},
		Routes: []mining.Route{
			{Path: "/orders/:id", Source: "router", Entity: "order"},
			{Path: "/", Source: "file"},
		},
	})

	for _, text := range []string{
		"sort orders by total",
		"verify orders table shows total",
		"click order row",
		"go to next page of orders",
		"open delete order dialog",
		"verify delete order dialog is visible",
		"go to order details page",
		"go to home page",
		"verify home page is loaded",
	} {
		_, ok := findByText(ps, text)
		assert.True(t, ok, "missing %q", text)
	}

	nav, _ := findByText(ps, "go to order details page")
	assert.Equal(t, types.ActionNavigate, nav.MappedAction)
	assert.Equal(t, `a[href="/orders/:id"]`, nav.SelectorHints[0].Value)
}

func TestRouteName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "home"},
		{"/orders", "orders"},
		{"/orders/:id", "order details"},
		{"/line-items/{itemId}", "line item details"},
		{"/admin/userSettings", "admin user settings"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, routeName(tt.path))
		})
	}
}

func TestFrameworkPatterns(t *testing.T) {
	ps := FrameworkPatterns([]string{"mui", "unknown", "mui"})
	require.Len(t, ps, len(frameworkPacks["mui"]))
	for _, p := range ps {
		assert.Equal(t, types.LayerFramework, p.Layer)
		assert.Equal(t, types.SourceFramework, p.Source)
		assert.Equal(t, SeedFramework, p.Confidence)
		assert.Equal(t, "mui", p.TemplateSource)
		assert.NoError(t, p.Validate())
	}

	assert.Empty(t, FrameworkPatterns(nil))
	assert.Contains(t, Packs(), "ag-grid")
	for _, name := range Packs() {
		assert.NotEmpty(t, FrameworkPatterns([]string{name}), name)
	}
}

func TestFromSignals(t *testing.T) {
	ps := FromSignals(&mining.Signals{
		I18nKeys: []mining.I18nKey{
			{Key: "invoice.actions.saveButton", Text: "Save Invoice"},
			{Key: "invoice.search.placeholder", Text: "Search invoices"},
			{Key: "invoice.emptyState"},
		},
		AnalyticsEvents: []mining.AnalyticsEvent{{Name: "invoice_created", Provider: "segment"}},
		FeatureFlags:    []mining.FeatureFlag{{Name: "newCheckout", Provider: "launchdarkly"}},
	})

	tests := []struct {
		text   string
		action types.Action
	}{
		{"click save invoice", types.ActionClick},
		{"fill search invoices", types.ActionFill},
		{"see empty state", types.ActionAssert},
		{"verify invoice created event is tracked", types.ActionAssert},
		{"enable new checkout feature", types.ActionCheck},
		{"verify new checkout feature is visible", types.ActionAssert},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			p, ok := findByText(ps, tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.action, p.MappedAction)
			assert.Equal(t, types.SourceSignal, p.Source)
			assert.Equal(t, SeedSignal, p.Confidence)
		})
	}
}

func TestGeneratorCapsAndSorts(t *testing.T) {
	in := Input{
		Mined:      &mining.Result{Entities: []mining.Entity{invoiceEntity("rest_path")}},
		Signals:    &mining.Signals{FeatureFlags: []mining.FeatureFlag{{Name: "beta"}}},
		Frameworks: []string{"react"},
	}

	all := NewGenerator(0).Generate(in)
	require.Greater(t, len(all), 5)
	capped := NewGenerator(5).Generate(in)
	require.Len(t, capped, 5)
	for i := 1; i < len(capped); i++ {
		assert.GreaterOrEqual(t, capped[i-1].Confidence, capped[i].Confidence)
	}

	ids := make(map[string]bool)
	for _, p := range all {
		assert.False(t, ids[p.ID], "duplicate id %s", p.ID)
		ids[p.ID] = true
	}
}

func TestMergeByID(t *testing.T) {
	a := draft{text: "save", action: types.ActionClick, source: types.SourceTemplate, hints: hints(role("button:Save"))}.build()
	b := draft{text: "save", action: types.ActionClick, source: types.SourceTemplate, bonus: 0.1,
		hints: hints(text("Save"), types.SelectorHint{Strategy: types.StrategyRole, Value: "button:Save", Confidence: 0.95})}.build()

	merged := mergeByID([]types.DiscoveredPattern{a, b})
	require.Len(t, merged, 1)
	assert.InDelta(t, SeedTemplate+0.1, merged[0].Confidence, 1e-9)
	assert.ElementsMatch(t, []types.SelectorHint{
		{Strategy: types.StrategyRole, Value: "button:Save", Confidence: 0.95},
		{Strategy: types.StrategyText, Value: "Save", Confidence: hintText},
	}, merged[0].SelectorHints)
}
