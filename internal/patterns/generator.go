package patterns

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/steveyegge/llkb/internal/mining"
	"github.com/steveyegge/llkb/internal/types"
)

// Template origins recorded in DiscoveredPattern.TemplateSource.
const (
	OriginCRUD         = "crud"
	OriginForm         = "form"
	OriginTable        = "table"
	OriginModal        = "modal"
	OriginNavigation   = "navigation"
	OriginNotification = "notification"
	OriginI18n         = "i18n"
	OriginAnalytics    = "analytics"
	OriginFeatureFlag  = "feature-flag"
)

// Input is everything the generator expands.
type Input struct {
	Mined      *mining.Result
	Signals    *mining.Signals
	Frameworks []string // detected frameworks and UI libraries
}

// Generator expands mined elements into candidate patterns.
type Generator struct {
	maxPatterns int
}

// NewGenerator creates a generator that emits at most maxPatterns patterns.
// A non-positive maxPatterns disables the cap.
func NewGenerator(maxPatterns int) *Generator {
	return &Generator{maxPatterns: maxPatterns}
}

// Generate expands structure, framework packs and signals, merges identical
// ids and applies the output cap.
func (g *Generator) Generate(in Input) []types.DiscoveredPattern {
	var out []types.DiscoveredPattern
	if in.Mined != nil {
		out = append(out, FromStructure(in.Mined)...)
	}
	out = append(out, FrameworkPatterns(in.Frameworks)...)
	if in.Signals != nil {
		out = append(out, FromSignals(in.Signals)...)
	}
	return Cap(mergeByID(out), g.maxPatterns)
}

// FromStructure expands the CRUD, notification, form, table, modal and
// navigation templates over mined structure.
func FromStructure(r *mining.Result) []types.DiscoveredPattern {
	var drafts []draft
	for _, e := range r.Entities {
		drafts = append(drafts, crudTemplates(e)...)
		drafts = append(drafts, notificationTemplates(e)...)
	}
	if len(r.Entities) > 0 {
		drafts = append(drafts, globalNotificationTemplates()...)
	}

	multiSource := make(map[string]bool)
	for _, e := range r.Entities {
		if len(e.Sources) > 1 {
			multiSource[e.Name] = true
		}
	}
	bonusFor := func(entity string) float64 {
		if multiSource[entity] {
			return evidenceBonus
		}
		return 0
	}

	for _, f := range r.Forms {
		drafts = append(drafts, formTemplates(f, bonusFor(f.Entity))...)
	}
	for _, t := range r.Tables {
		drafts = append(drafts, tableTemplates(t, bonusFor(t.Entity))...)
	}
	for _, m := range r.Modals {
		drafts = append(drafts, modalTemplates(m, bonusFor(m.Entity))...)
	}
	for _, rt := range r.Routes {
		if rt.Source == "rest" {
			continue
		}
		drafts = append(drafts, navigationTemplates(rt)...)
	}
	return buildAll(drafts)
}

func buildAll(drafts []draft) []types.DiscoveredPattern {
	out := make([]types.DiscoveredPattern, 0, len(drafts))
	for _, s := range drafts {
		if strings.TrimSpace(s.text) == "" {
			continue
		}
		out = append(out, s.build())
	}
	return out
}

func crudTemplates(e mining.Entity) []draft {
	n, plural, display := e.Name, e.Plural, e.DisplayName
	k := kebab(n)
	crud := func(text string, action types.Action, h ...types.SelectorHint) draft {
		return draft{text: text, action: action, category: OriginCRUD, source: types.SourceTemplate,
			templateSource: OriginCRUD, entity: n, hints: h}
	}
	return []draft{
		crud("create new "+n, types.ActionClick, testID("create-"+k+"-button"), role("button:Create "+display), text("New "+display)),
		crud("add "+n, types.ActionClick, testID("add-"+k+"-button"), role("button:Add "+display)),
		crud("edit "+n, types.ActionClick, testID("edit-"+k+"-button"), role("button:Edit")),
		crud("delete "+n, types.ActionClick, testID("delete-"+k+"-button"), role("button:Delete")),
		crud("save "+n, types.ActionClick, role("button:Save"), text("Save")),
		crud("view "+n+" details", types.ActionClick, role("link:"+display)),
		crud("search "+plural, types.ActionFill, placeholder("Search "+plural), role("searchbox")),
		crud("verify "+n+" is created", types.ActionAssert, text(display+" created")),
		crud("verify "+n+" is deleted", types.ActionAssert, text(display+" deleted")),
		crud("open "+plural+" list", types.ActionNavigate, css(`a[href*="`+kebab(plural)+`"]`)),
	}
}

func notificationTemplates(e mining.Entity) []draft {
	return []draft{{
		text: "verify " + e.Name + " saved successfully", action: types.ActionAssert,
		category: OriginNotification, source: types.SourceTemplate, templateSource: OriginNotification,
		entity: e.Name, hints: hints(role("alert"), text(e.DisplayName+" saved")),
	}}
}

func globalNotificationTemplates() []draft {
	note := func(text string, action types.Action, h ...types.SelectorHint) draft {
		return draft{text: text, action: action, category: OriginNotification, source: types.SourceTemplate,
			templateSource: OriginNotification, hints: h}
	}
	return []draft{
		note("see success message", types.ActionAssert, role("alert"), css(".toast-success, [role=status]")),
		note("see error message", types.ActionAssert, role("alert"), css(".error, [aria-invalid=true]")),
		note("dismiss notification", types.ActionClick, role("button:Close"), css("[aria-label=Close]")),
	}
}

func formTemplates(f mining.Form, bonus float64) []draft {
	subject := f.Entity
	if subject == "" {
		subject = mining.Humanize(strings.TrimSuffix(f.Name, "Form"))
	}
	form := func(text string, action types.Action, h ...types.SelectorHint) draft {
		return draft{text: text, action: action, category: OriginForm, source: types.SourceDiscovery,
			templateSource: OriginForm, entity: f.Entity, hints: h, bonus: bonus}
	}

	drafts := []draft{
		form("submit "+subject+" form", types.ActionClick, role("button:Submit"), css(`form button[type="submit"]`)),
		form("save "+subject, types.ActionClick, role("button:Save"), text("Save")),
		form("verify "+subject+" form validation error", types.ActionAssert, css(`[aria-invalid="true"]`)),
	}
	for _, field := range f.Fields {
		fieldLabel := field.Label
		if fieldLabel == "" {
			fieldLabel = mining.Humanize(field.Name)
		}
		var h []types.SelectorHint
		if field.Selector != "" {
			h = append(h, testID(field.Selector))
		}
		h = append(h, label(fieldLabel), css(fmt.Sprintf(`[name="%s"]`, field.Name)))
		action := types.ActionFill
		lower := strings.ToLower(field.Name)
		switch {
		case isBoolName(field.Name) || strings.Contains(lower, "agree") || strings.Contains(lower, "accept"):
			action = types.ActionCheck
		case strings.HasSuffix(lower, "id") || strings.Contains(lower, "status") || strings.Contains(lower, "type") || strings.Contains(lower, "country"):
			action = types.ActionSelect
		case strings.Contains(lower, "file") || strings.Contains(lower, "upload") || strings.Contains(lower, "attachment"):
			action = types.ActionUpload
		}
		verb := map[types.Action]string{
			types.ActionFill:   "fill",
			types.ActionCheck:  "check",
			types.ActionSelect: "select",
			types.ActionUpload: "upload",
		}[action]
		drafts = append(drafts, form(verb+" "+strings.ToLower(fieldLabel)+" field", action, h...))
	}
	return drafts
}

func tableTemplates(t mining.Table, bonus float64) []draft {
	subject := t.Entity
	plural := subject
	if subject == "" {
		subject = mining.Humanize(t.Name)
		plural = subject
	} else if e, ok := mining.NormalizeEntity(subject); ok {
		plural = e.Plural
	}
	table := func(text string, action types.Action, h ...types.SelectorHint) draft {
		return draft{text: text, action: action, category: OriginTable, source: types.SourceDiscovery,
			templateSource: OriginTable, entity: t.Entity, hints: h, bonus: bonus}
	}

	drafts := []draft{
		table("click "+subject+" row", types.ActionClick, role("row")),
		table("go to next page of "+plural, types.ActionClick, role("button:Next page")),
		table("verify "+plural+" table is visible", types.ActionAssert, role("table"), role("grid")),
	}
	for _, col := range t.Columns {
		header := strings.ToLower(col.Header)
		drafts = append(drafts,
			table("sort "+plural+" by "+header, types.ActionClick, role("columnheader:"+col.Header)),
			table("verify "+plural+" table shows "+header, types.ActionAssert, role("columnheader:"+col.Header), text(col.Header)),
		)
	}
	return drafts
}

func modalTemplates(m mining.Modal, bonus float64) []draft {
	subject := strings.ToLower(m.Title)
	if subject == "" {
		subject = mining.Humanize(m.Name)
	}
	modal := func(text string, action types.Action, h ...types.SelectorHint) draft {
		return draft{text: text, action: action, category: OriginModal, source: types.SourceDiscovery,
			templateSource: OriginModal, entity: m.Entity, hints: h, bonus: bonus}
	}
	dialog := role("dialog")
	if m.Title != "" {
		dialog = role("dialog:" + m.Title)
	}
	return []draft{
		modal("open "+subject+" dialog", types.ActionClick, text(m.Title)),
		modal("close "+subject+" dialog", types.ActionClick, role("button:Close"), css(`[role="dialog"] [aria-label="Close"]`)),
		modal("confirm "+subject, types.ActionClick, role("button:Confirm"), role("button:OK")),
		modal("verify "+subject+" dialog is visible", types.ActionAssert, dialog),
	}
}

func navigationTemplates(rt mining.Route) []draft {
	name := routeName(rt.Path)
	nav := func(text string, action types.Action, h ...types.SelectorHint) draft {
		return draft{text: text, action: action, category: OriginNavigation, source: types.SourceDiscovery,
			templateSource: OriginNavigation, entity: rt.Entity, hints: h}
	}
	return []draft{
		nav("go to "+name+" page", types.ActionNavigate, css(fmt.Sprintf(`a[href="%s"]`, rt.Path))),
		nav("verify "+name+" page is loaded", types.ActionAssert, css("main"), role("heading")),
	}
}

// isBoolName matches "isActive", "hasAccess", "is_active".
func isBoolName(name string) bool {
	for _, prefix := range []string{"is", "has"} {
		rest, ok := strings.CutPrefix(name, prefix)
		if ok && rest != "" && (unicode.IsUpper(rune(rest[0])) || rest[0] == '_') {
			return true
		}
	}
	return false
}

// routeName turns a route path into a phrase: "/orders" -> "orders",
// "/orders/:id" -> "order details", "/" -> "home".
func routeName(path string) string {
	var words []string
	param := false
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		switch {
		case seg == "":
		case strings.HasPrefix(seg, ":") || strings.HasPrefix(seg, "{") || strings.HasPrefix(seg, "$"):
			param = true
		default:
			words = append(words, mining.Humanize(seg))
		}
	}
	if len(words) == 0 {
		return "home"
	}
	if param {
		last := words[len(words)-1]
		if e, ok := mining.NormalizeEntity(last); ok {
			words[len(words)-1] = e.Name
		}
		words = append(words, "details")
	}
	return strings.Join(words, " ")
}
