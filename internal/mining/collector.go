package mining

import (
	"path"
	"sort"
	"strings"
)

// collector accumulates extractor output. Forms, tables and modals declared
// in a file receive the fields, columns and titles found in that same file.
type collector struct {
	entities map[string]*Entity
	routes   map[string]Route
	forms    map[string]*Form
	tables   map[string]*Table
	modals   map[string]*Modal

	i18n      map[string]*I18nKey
	analytics map[string]AnalyticsEvent
	flags     map[string]FeatureFlag

	// Per-file scratch, reset by beginFile.
	file       SourceFile
	fileForms  []string
	fileTables []string
	fileModals []string
	fields     []Field
	columns    []Column
	titles     []string
}

func newCollector() *collector {
	return &collector{
		entities:  make(map[string]*Entity),
		routes:    make(map[string]Route),
		forms:     make(map[string]*Form),
		tables:    make(map[string]*Table),
		modals:    make(map[string]*Modal),
		i18n:      make(map[string]*I18nKey),
		analytics: make(map[string]AnalyticsEvent),
		flags:     make(map[string]FeatureFlag),
	}
}

func (c *collector) addEntity(raw, source string, f SourceFile) {
	if e, ok := NormalizeEntity(raw); ok {
		c.mergeEntity(e, source, f)
	}
}

func (c *collector) mergeEntity(e Entity, source string, f SourceFile) {
	existing, ok := c.entities[e.Name]
	if !ok {
		e.Sources = nil
		e.Files = nil
		existing = &e
		c.entities[e.Name] = existing
	}
	existing.Sources = appendUnique(existing.Sources, source)
	existing.Files = appendUnique(existing.Files, f.Rel)
}

func (c *collector) addRoute(r Route) {
	if existing, ok := c.routes[r.Path]; ok {
		if existing.Entity == "" && r.Entity != "" {
			existing.Entity = r.Entity
			c.routes[r.Path] = existing
		}
		return
	}
	c.routes[r.Path] = r
}

// addNavigableRoute records a UI route and derives an entity from its first
// static segment.
func (c *collector) addNavigableRoute(p, source string, f SourceFile) {
	p = strings.TrimRight(p, "/")
	if p == "" {
		p = "/"
	}
	var entity string
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if e, ok := entityFromSegment(seg); ok {
			c.mergeEntity(e, "route", f)
			entity = e.Name
			break
		}
	}
	c.addRoute(Route{Path: p, Source: source, File: f.Rel, Entity: entity})
}

func (c *collector) addForm(name, entity string, f SourceFile) {
	key := f.Rel + "#" + name
	if _, ok := c.forms[key]; !ok {
		c.forms[key] = &Form{Name: name, File: f.Rel, Entity: entity}
		c.fileForms = append(c.fileForms, key)
	}
	if entity != "" {
		if e, ok := NormalizeEntity(entity); ok {
			c.mergeEntity(e, "form_component", f)
		}
	}
}

func (c *collector) addTable(name, entity string, f SourceFile) {
	key := f.Rel + "#" + name
	if _, ok := c.tables[key]; !ok {
		c.tables[key] = &Table{Name: name, File: f.Rel, Entity: entity}
		c.fileTables = append(c.fileTables, key)
	}
	if entity != "" {
		if e, ok := NormalizeEntity(entity); ok {
			c.mergeEntity(e, "table_component", f)
		}
	}
}

func (c *collector) addModal(name, entity string, f SourceFile) {
	key := f.Rel + "#" + name
	if _, ok := c.modals[key]; !ok {
		c.modals[key] = &Modal{Name: name, File: f.Rel, Entity: entity}
		c.fileModals = append(c.fileModals, key)
	}
}

func (c *collector) addField(field Field) {
	if field.Label == "" {
		field.Label = Humanize(field.Name)
	}
	c.fields = append(c.fields, field)
}

func (c *collector) addColumn(col Column) {
	if col.Header == "" {
		col.Header = Humanize(col.Key)
	}
	c.columns = append(c.columns, col)
}

func (c *collector) addModalTitle(title string) {
	c.titles = append(c.titles, strings.TrimSpace(title))
}

func (c *collector) addI18nKey(key, text string, f SourceFile) {
	if existing, ok := c.i18n[key]; ok {
		if existing.Text == "" && text != "" {
			existing.Text = text
		}
		return
	}
	c.i18n[key] = &I18nKey{Key: key, Text: text, File: f.Rel}
}

func (c *collector) addAnalyticsEvent(name, provider string, f SourceFile) {
	name = strings.TrimSpace(name)
	if _, ok := c.analytics[name]; !ok && name != "" {
		c.analytics[name] = AnalyticsEvent{Name: name, Provider: provider, File: f.Rel}
	}
}

func (c *collector) addFeatureFlag(name, provider string, f SourceFile) {
	if _, ok := c.flags[name]; !ok {
		c.flags[name] = FeatureFlag{Name: name, Provider: provider, File: f.Rel}
	}
}

func (c *collector) beginFile(f SourceFile) {
	c.file = f
	c.fileForms = c.fileForms[:0]
	c.fileTables = c.fileTables[:0]
	c.fileModals = c.fileModals[:0]
	c.fields = c.fields[:0]
	c.columns = c.columns[:0]
	c.titles = c.titles[:0]
}

// endFile attaches the file's fields, columns and titles to the components
// it declared. A file named like a form or table that declared none gets one
// named after the file.
func (c *collector) endFile() {
	base := strings.TrimSuffix(path.Base(c.file.Rel), c.file.Ext)
	lowerBase := strings.ToLower(base)

	if len(c.fields) > 0 && len(c.fileForms) == 0 && strings.Contains(lowerBase, "form") {
		name := componentName(base)
		c.addForm(name, entityFromComponent(name, "Form"), c.file)
	}
	if len(c.columns) > 0 && len(c.fileTables) == 0 &&
		(strings.Contains(lowerBase, "table") || strings.Contains(lowerBase, "grid") || strings.Contains(lowerBase, "list")) {
		name := componentName(base)
		c.addTable(name, entityFromComponent(name, "Table", "Grid", "List"), c.file)
	}

	for _, key := range c.fileForms {
		form := c.forms[key]
		for _, field := range c.fields {
			form.Fields = appendField(form.Fields, field)
		}
	}
	for _, key := range c.fileTables {
		table := c.tables[key]
		for _, col := range c.columns {
			table.Columns = appendColumn(table.Columns, col)
		}
	}
	if len(c.titles) > 0 {
		for _, key := range c.fileModals {
			if m := c.modals[key]; m.Title == "" {
				m.Title = c.titles[0]
			}
		}
	}
}

func (c *collector) result() *Result {
	r := &Result{
		Entities: make([]Entity, 0, len(c.entities)),
		Routes:   make([]Route, 0, len(c.routes)),
		Forms:    make([]Form, 0, len(c.forms)),
		Tables:   make([]Table, 0, len(c.tables)),
		Modals:   make([]Modal, 0, len(c.modals)),
	}
	for _, k := range sortedKeys(c.entities) {
		e := *c.entities[k]
		sort.Strings(e.Sources)
		sort.Strings(e.Files)
		r.Entities = append(r.Entities, e)
	}
	for _, k := range sortedKeys(c.routes) {
		r.Routes = append(r.Routes, c.routes[k])
	}
	for _, k := range sortedKeys(c.forms) {
		r.Forms = append(r.Forms, *c.forms[k])
	}
	for _, k := range sortedKeys(c.tables) {
		r.Tables = append(r.Tables, *c.tables[k])
	}
	for _, k := range sortedKeys(c.modals) {
		r.Modals = append(r.Modals, *c.modals[k])
	}
	return r
}

func (c *collector) i18nKeys() []I18nKey {
	out := make([]I18nKey, 0, len(c.i18n))
	for _, k := range sortedKeys(c.i18n) {
		out = append(out, *c.i18n[k])
	}
	return out
}

func (c *collector) analyticsEvents() []AnalyticsEvent {
	out := make([]AnalyticsEvent, 0, len(c.analytics))
	for _, k := range sortedKeys(c.analytics) {
		out = append(out, c.analytics[k])
	}
	return out
}

func (c *collector) featureFlags() []FeatureFlag {
	out := make([]FeatureFlag, 0, len(c.flags))
	for _, k := range sortedKeys(c.flags) {
		out = append(out, c.flags[k])
	}
	return out
}

// componentName turns a file base name into a PascalCase component name
// ("invoice-form" -> "InvoiceForm").
func componentName(base string) string {
	var b strings.Builder
	for _, w := range splitWords(base) {
		b.WriteString(strings.ToUpper(w[:1]) + w[1:])
	}
	return b.String()
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func appendField(fields []Field, f Field) []Field {
	for i, existing := range fields {
		if existing.Name == f.Name {
			if existing.Selector == "" {
				fields[i].Selector = f.Selector
			}
			return fields
		}
	}
	return append(fields, f)
}

func appendColumn(cols []Column, col Column) []Column {
	for _, existing := range cols {
		if existing.Key == col.Key {
			return cols
		}
	}
	return append(cols, col)
}
