package mining

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names a mined element type. Each kind owns one row of the extractor table.
type Kind string

const (
	KindEntity    Kind = "entity"
	KindRoute     Kind = "route"
	KindForm      Kind = "form"
	KindTable     Kind = "table"
	KindModal     Kind = "modal"
	KindI18n      Kind = "i18n"
	KindAnalytics Kind = "analytics"
	KindFlag      Kind = "flag"
)

// Entity is a domain noun mined from declarations, models and paths.
type Entity struct {
	Name        string   `json:"name"`        // singular, lower case, space separated ("line item")
	DisplayName string   `json:"displayName"` // title case ("Line Item")
	Plural      string   `json:"plural"`      // "line items"
	Sources     []string `json:"sources"`     // extractor names that produced it
	Files       []string `json:"files"`
}

// Route is a navigable path.
type Route struct {
	Path   string `json:"path"`
	Source string `json:"source"` // rest, graphql, router, file
	File   string `json:"file"`
	Entity string `json:"entity,omitempty"`
}

// Field is one input of a form.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Selector string `json:"selector,omitempty"` // data-testid when declared
}

// Form is a form component or schema with its fields.
type Form struct {
	Name   string  `json:"name"`
	File   string  `json:"file"`
	Entity string  `json:"entity,omitempty"`
	Fields []Field `json:"fields"`
}

// Column is one column of a table or grid.
type Column struct {
	Key    string `json:"key"`
	Header string `json:"header"`
}

// Table is a table or grid component with its columns.
type Table struct {
	Name    string   `json:"name"`
	File    string   `json:"file"`
	Entity  string   `json:"entity,omitempty"`
	Columns []Column `json:"columns"`
}

// Modal is a dialog, modal or drawer component.
type Modal struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Entity string `json:"entity,omitempty"`
	Title  string `json:"title,omitempty"`
}

// I18nKey is a translation key, with its default text when a locale file defines it.
type I18nKey struct {
	Key  string `json:"key"`
	Text string `json:"text,omitempty"`
	File string `json:"file"`
}

// AnalyticsEvent is a tracked analytics event name.
type AnalyticsEvent struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	File     string `json:"file"`
}

// FeatureFlag is a feature flag key referenced by the code.
type FeatureFlag struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	File     string `json:"file"`
}

// Result is the structural output of a scan.
type Result struct {
	Entities []Entity `json:"entities"`
	Routes   []Route  `json:"routes"`
	Forms    []Form   `json:"forms"`
	Tables   []Table  `json:"tables"`
	Modals   []Modal  `json:"modals"`
}

// Counts returns the number of mined elements per kind.
func (r *Result) Counts() map[string]int {
	return map[string]int{
		string(KindEntity): len(r.Entities),
		string(KindRoute):  len(r.Routes),
		string(KindForm):   len(r.Forms),
		string(KindTable):  len(r.Tables),
		string(KindModal):  len(r.Modals),
	}
}

// EntityNames returns the entity names in order.
func (r *Result) EntityNames() []string {
	names := make([]string, len(r.Entities))
	for i, e := range r.Entities {
		names[i] = e.Name
	}
	return names
}

// RoutePaths returns the route paths in order.
func (r *Result) RoutePaths() []string {
	paths := make([]string, len(r.Routes))
	for i, rt := range r.Routes {
		paths[i] = rt.Path
	}
	return paths
}

// Signals is the output of the passive signal passes.
type Signals struct {
	I18nKeys        []I18nKey        `json:"i18nKeys"`
	AnalyticsEvents []AnalyticsEvent `json:"analyticsEvents"`
	FeatureFlags    []FeatureFlag    `json:"featureFlags"`
}

// Stats records what the scanner walked, read and skipped. Skips and cap
// hits are counted here and never reported as errors.
type Stats struct {
	DirsScanned     int            `json:"dirsScanned"`
	DirsRefused     int            `json:"dirsRefused"`
	FilesFound      int            `json:"filesFound"`
	FilesRead       int            `json:"filesRead"`
	FilesSkipped    int            `json:"filesSkipped"`
	SymlinksRefused int            `json:"symlinksRefused"`
	DepthLimitHits  int            `json:"depthLimitHits"`
	FileLimitHit    bool           `json:"fileLimitHit"`
	RegexCapHits    int            `json:"regexCapHits"`
	Matches         map[string]int `json:"matches"` // by extractor name
}

// String returns a one-line summary.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dirs=%d refused=%d files=%d read=%d skipped=%d symlinks=%d depthHits=%d capHits=%d",
		s.DirsScanned, s.DirsRefused, s.FilesFound, s.FilesRead, s.FilesSkipped,
		s.SymlinksRefused, s.DepthLimitHits, s.RegexCapHits)
	if s.FileLimitHit {
		b.WriteString(" (file limit reached)")
	}
	return b.String()
}

func (s Stats) clone() Stats {
	out := s
	out.Matches = make(map[string]int, len(s.Matches))
	for k, v := range s.Matches {
		out.Matches[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
