package patterns

import (
	"sort"

	"github.com/steveyegge/llkb/internal/types"
)

// packEntry is one pattern of a framework pack. The concern becomes the
// pattern category.
type packEntry struct {
	text    string
	action  types.Action
	concern string
	hints   []types.SelectorHint
}

// frameworkPacks holds the patterns shipped for each framework or UI library.
var frameworkPacks = map[string][]packEntry{
	"mui": {
		{"open mui select", types.ActionClick, "select", hints(role("combobox"), css(".MuiSelect-select"))},
		{"choose option from mui select", types.ActionClick, "select", hints(role("option"), css(".MuiMenuItem-root"))},
		{"close mui snackbar", types.ActionClick, "notification", hints(css(".MuiSnackbar-root button"))},
		{"verify mui alert is visible", types.ActionAssert, "notification", hints(role("alert"), css(".MuiAlert-root"))},
		{"sort mui data grid column", types.ActionClick, "table", hints(role("columnheader"), css(".MuiDataGrid-columnHeader"))},
		{"open mui date picker", types.ActionClick, "form", hints(role("button:Choose date"), css(".MuiPickersPopper-root"))},
	},
	"antd": {
		{"open antd select", types.ActionClick, "select", hints(css(".ant-select-selector"))},
		{"choose option from antd select", types.ActionClick, "select", hints(css(".ant-select-item-option"))},
		{"confirm antd popconfirm", types.ActionClick, "modal", hints(css(".ant-popconfirm .ant-btn-primary"))},
		{"verify antd message is visible", types.ActionAssert, "notification", hints(css(".ant-message-notice"))},
		{"go to next antd table page", types.ActionClick, "table", hints(css(".ant-pagination-next"))},
		{"verify antd form item error", types.ActionAssert, "form", hints(css(".ant-form-item-explain-error"))},
	},
	"ag-grid": {
		{"sort ag-grid column", types.ActionClick, "table", hints(css(".ag-header-cell"))},
		{"filter ag-grid column", types.ActionFill, "table", hints(css(".ag-floating-filter-input input"))},
		{"select ag-grid row", types.ActionClick, "table", hints(css(".ag-row .ag-selection-checkbox"))},
		{"verify ag-grid has rows", types.ActionAssert, "table", hints(css(".ag-center-cols-container .ag-row"))},
		{"wait for ag-grid to load", types.ActionWait, "timing", hints(css(".ag-overlay-loading-wrapper"))},
	},
	"tanstack-table": {
		{"sort tanstack table column", types.ActionClick, "table", hints(role("columnheader"))},
		{"go to next tanstack table page", types.ActionClick, "table", hints(role("button:Next"), text(">"))},
		{"verify tanstack table has rows", types.ActionAssert, "table", hints(css("tbody tr"))},
	},
	"chakra": {
		{"open chakra menu", types.ActionClick, "menu", hints(role("button"), css(".chakra-menu__menu-button"))},
		{"verify chakra toast is visible", types.ActionAssert, "notification", hints(role("status"), css(".chakra-toast"))},
		{"close chakra modal", types.ActionClick, "modal", hints(css(".chakra-modal__close-btn"))},
	},
	"angular-material": {
		{"open mat select", types.ActionClick, "select", hints(role("combobox"), css("mat-select"))},
		{"choose mat option", types.ActionClick, "select", hints(role("option"), css("mat-option"))},
		{"verify mat snackbar is visible", types.ActionAssert, "notification", hints(css("mat-snack-bar-container"))},
		{"close mat dialog", types.ActionClick, "modal", hints(css("[mat-dialog-close]"))},
		{"go to next mat paginator page", types.ActionClick, "table", hints(css(".mat-mdc-paginator-navigation-next"))},
	},
	"vuetify": {
		{"open vuetify select", types.ActionClick, "select", hints(css(".v-select"))},
		{"choose vuetify list item", types.ActionClick, "select", hints(css(".v-list-item"))},
		{"verify vuetify snackbar is visible", types.ActionAssert, "notification", hints(css(".v-snackbar"))},
		{"sort vuetify data table column", types.ActionClick, "table", hints(css(".v-data-table-header th"))},
	},
	"element-plus": {
		{"open element select", types.ActionClick, "select", hints(css(".el-select"))},
		{"choose element select option", types.ActionClick, "select", hints(css(".el-select-dropdown__item"))},
		{"verify element message is visible", types.ActionAssert, "notification", hints(css(".el-message"))},
		{"confirm element message box", types.ActionClick, "modal", hints(css(".el-message-box__btns .el-button--primary"))},
	},
	"primereact": {
		{"open prime dropdown", types.ActionClick, "select", hints(css(".p-dropdown"))},
		{"choose prime dropdown item", types.ActionClick, "select", hints(css(".p-dropdown-item"))},
		{"verify prime toast is visible", types.ActionAssert, "notification", hints(css(".p-toast-message"))},
		{"sort prime datatable column", types.ActionClick, "table", hints(css(".p-sortable-column"))},
	},
	"bootstrap": {
		{"close bootstrap alert", types.ActionClick, "notification", hints(css(".alert .btn-close"))},
		{"open bootstrap dropdown", types.ActionClick, "menu", hints(css(".dropdown-toggle"))},
		{"close bootstrap modal", types.ActionClick, "modal", hints(css(".modal .btn-close"))},
		{"verify bootstrap invalid feedback", types.ActionAssert, "form", hints(css(".invalid-feedback"))},
	},
	"react": {
		{"wait for loading spinner to disappear", types.ActionWait, "timing", hints(role("progressbar"), css("[aria-busy=true]"))},
		{"verify page heading", types.ActionAssert, "navigation", hints(role("heading"))},
	},
	"next": {
		{"wait for next route change", types.ActionWait, "timing", hints(css("#__next"))},
		{"verify next page is rendered", types.ActionAssert, "navigation", hints(css("#__next main"))},
	},
	"vue": {
		{"wait for vue transition", types.ActionWait, "timing", hints(css(".v-enter-active, .v-leave-active"))},
		{"verify vue app is mounted", types.ActionAssert, "navigation", hints(css("#app"))},
	},
	"nuxt": {
		{"wait for nuxt page to load", types.ActionWait, "timing", hints(css("#__nuxt"))},
		{"verify nuxt loading indicator is hidden", types.ActionAssert, "timing", hints(css(".nuxt-loading-indicator"))},
	},
	"angular": {
		{"wait for angular to stabilize", types.ActionWait, "timing", hints(css("app-root"))},
		{"verify angular form control is invalid", types.ActionAssert, "form", hints(css(".ng-invalid.ng-touched"))},
		{"verify angular router outlet renders", types.ActionAssert, "navigation", hints(css("router-outlet + *"))},
	},
	"svelte": {
		{"wait for svelte transition", types.ActionWait, "timing", hints(css("[class*=svelte-]"))},
		{"verify svelte page is rendered", types.ActionAssert, "navigation", hints(css("main"))},
	},
}

// Packs returns the names of every framework pack, sorted.
func Packs() []string {
	names := make([]string, 0, len(frameworkPacks))
	for name := range frameworkPacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FrameworkPatterns returns the pack patterns for every detected framework
// and UI library. Unknown names are ignored.
func FrameworkPatterns(detected []string) []types.DiscoveredPattern {
	var drafts []draft
	seen := make(map[string]bool)
	for _, name := range detected {
		if seen[name] {
			continue
		}
		seen[name] = true
		for _, e := range frameworkPacks[name] {
			drafts = append(drafts, draft{
				text:           e.text,
				action:         e.action,
				category:       e.concern,
				source:         types.SourceFramework,
				layer:          types.LayerFramework,
				templateSource: name,
				hints:          e.hints,
			})
		}
	}
	return buildAll(drafts)
}
