package mining

import (
	"regexp"
	"strings"
)

// extractor is one row of the extraction table: a named pattern and the
// handler that turns each submatch into mined elements.
type extractor struct {
	name   string
	re     *regexp.Regexp
	exts   map[string]bool // nil applies to every selected file
	handle func(c *collector, f SourceFile, m []string)
}

func exts(list ...string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, e := range list {
		m[e] = true
	}
	return m
}

const quote = "['\"`]"

var (
	codeExts    = exts(".ts", ".tsx", ".js", ".jsx", ".mjs", ".vue", ".svelte")
	typedExts   = exts(".ts", ".tsx", ".vue", ".svelte")
	markupExts  = exts(".tsx", ".jsx", ".vue", ".svelte", ".ts", ".js")
	prismaExts  = exts(".prisma")
	graphqlExts = exts(".graphql", ".gql")
)

var (
	testIDAttr = regexp.MustCompile(`data-(?:testid|test-id|test|cy)=["']([^"']+)["']`)
	labelAttr  = regexp.MustCompile(`\blabel=["']([^"'{}]+)["']`)
)

// structuralKinds is the order structural extractors run per file.
var structuralKinds = []Kind{KindEntity, KindRoute, KindForm, KindTable, KindModal}

// extractors is the table of every regular-expression pass, keyed by the
// element kind it produces.
var extractors = map[Kind][]extractor{
	KindEntity: {
		{
			name: "ts_declaration",
			re:   regexp.MustCompile(`(?m)^[ \t]*(?:export[ \t]+)?(?:declare[ \t]+)?(?:interface|type)[ \t]+([A-Z][A-Za-z0-9]*)\b`),
			exts: typedExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addEntity(m[1], "ts_declaration", f)
			},
		},
		{
			name: "class",
			re:   regexp.MustCompile(`(?m)^[ \t]*(?:export[ \t]+)?(?:default[ \t]+)?(?:abstract[ \t]+)?class[ \t]+([A-Z][A-Za-z0-9]*)`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addEntity(m[1], "class", f)
			},
		},
		{
			name: "orm_entity",
			re:   regexp.MustCompile(`@Entity\([^)]*\)\s*(?:export\s+)?(?:default\s+)?class\s+([A-Z][A-Za-z0-9]*)`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addEntity(m[1], "orm_entity", f)
			},
		},
		{
			name: "prisma_model",
			re:   regexp.MustCompile(`(?m)^model\s+([A-Z][A-Za-z0-9]*)\s*\{`),
			exts: prismaExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addEntity(m[1], "prisma_model", f)
			},
		},
		{
			name: "odm_model",
			re:   regexp.MustCompile(`\b(?:model|define)\(\s*['"]([A-Z][A-Za-z0-9]*)['"]`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addEntity(m[1], "odm_model", f)
			},
		},
		{
			name: "graphql_type",
			re:   regexp.MustCompile(`(?m)^\s*(?:type|input)\s+([A-Z][A-Za-z0-9]*)\b[^{\n]*\{`),
			exts: graphqlExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addEntity(m[1], "graphql_type", f)
			},
		},
		{
			name: "graphql_operation",
			re:   regexp.MustCompile(`\b(?:query|mutation)\s+([A-Z][A-Za-z0-9]*)\s*[({]`),
			handle: func(c *collector, f SourceFile, m []string) {
				c.addEntity(stripOperationVerb(m[1]), "graphql_operation", f)
			},
		},
	},
	KindRoute: {
		{
			name: "rest_path",
			re:   regexp.MustCompile(quote + `(/api/(?:v\d+/)?([a-z][a-z0-9_-]*)(?:/[^'"` + "`" + `\s?]*)?)` + quote),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				e, ok := entityFromSegment(m[2])
				if ok {
					c.mergeEntity(e, "rest_path", f)
				}
				c.addRoute(Route{Path: m[1], Source: "rest", File: f.Rel, Entity: e.Name})
			},
		},
		{
			name: "router_path",
			re:   regexp.MustCompile(`\bpath\s*:\s*['"](/[^'"\s]*)['"]`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addNavigableRoute(m[1], "router", f)
			},
		},
		{
			name: "jsx_route",
			re:   regexp.MustCompile(`<Route\b[^>]*?\bpath=["'](/[^"'\s]*)["']`),
			exts: markupExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addNavigableRoute(m[1], "router", f)
			},
		},
		{
			name: "link_href",
			re:   regexp.MustCompile(`<(?:Link|NavLink|router-link|a)\b[^>]*?\b(?:to|href)=["'](/[a-z][^"'\s#?]*)["']`),
			exts: markupExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addNavigableRoute(m[1], "router", f)
			},
		},
	},
	KindForm: {
		{
			name: "form_component",
			re:   regexp.MustCompile(`\b(?:function|const|class)\s+([A-Z][A-Za-z0-9]*Form)\b`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addForm(m[1], entityFromComponent(m[1], "Form"), f)
			},
		},
		{
			name: "form_schema",
			re:   regexp.MustCompile(`\b(?:const|let|var)\s+([a-zA-Z][A-Za-z0-9]*?)(?:Form)?Schema\s*=\s*(?:z|yup|Yup)\.object`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				name := strings.ToUpper(m[1][:1]) + m[1][1:] + "Form"
				c.addForm(name, entityFromComponent(m[1]), f)
			},
		},
		{
			name: "hook_form_register",
			re:   regexp.MustCompile(`\bregister\(\s*['"]([A-Za-z_][A-Za-z0-9_.]*)['"]`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addField(Field{Name: m[1]})
			},
		},
		{
			name: "input_element",
			re:   regexp.MustCompile(`<(?:input|select|textarea|Input|TextField|Select|Textarea|Field|FormField|Checkbox|DatePicker|Form\.Item|el-input|v-text-field)\b[^>]*?\bname=["']([A-Za-z_][A-Za-z0-9_.]*)["'][^>]*>`),
			exts: markupExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addField(fieldFromTag(m[1], m[0]))
			},
		},
		{
			name: "schema_field",
			re:   regexp.MustCompile(`(?m)^\s*([a-zA-Z_][A-Za-z0-9_]*)\s*:\s*(?:z|yup|Yup)\.[a-z]+\(`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addField(Field{Name: m[1]})
			},
		},
		{
			name: "bound_control",
			re:   regexp.MustCompile(`\b(?:formControlName|v-model(?:\.[a-z]+)?)=["'](?:form\.|model\.|state\.)?([A-Za-z_][A-Za-z0-9_]*)["']`),
			exts: markupExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addField(Field{Name: m[1]})
			},
		},
	},
	KindTable: {
		{
			name: "table_component",
			re:   regexp.MustCompile(`\b(?:function|const|class)\s+([A-Z][A-Za-z0-9]*(?:Table|Grid|List))\b`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addTable(m[1], entityFromComponent(m[1], "Table", "Grid", "List"), f)
			},
		},
		{
			name: "column_def",
			re:   regexp.MustCompile(`\{\s*(?:field|accessorKey|dataIndex|prop)\s*:\s*['"]([A-Za-z_][A-Za-z0-9_.]*)['"](?:[^{}]*?\b(?:headerName|header|title|label)\s*:\s*['"]([^'"]+)['"])?`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addColumn(Column{Key: m[1], Header: m[2]})
			},
		},
		{
			name: "header_cell",
			re:   regexp.MustCompile(`<th\b[^>]*>\s*([A-Za-z][A-Za-z0-9 ]{0,40}?)\s*</th>`),
			exts: markupExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addColumn(Column{Key: strings.ReplaceAll(strings.ToLower(m[1]), " ", "_"), Header: m[1]})
			},
		},
		{
			name: "mat_column",
			re:   regexp.MustCompile(`\bmatColumnDef=["']([A-Za-z_][A-Za-z0-9_]*)["']`),
			handle: func(c *collector, f SourceFile, m []string) {
				c.addColumn(Column{Key: m[1]})
			},
		},
	},
	KindModal: {
		{
			name: "modal_component",
			re:   regexp.MustCompile(`\b(?:function|const|class)\s+([A-Z][A-Za-z0-9]*(?:Modal|Dialog|Drawer))\b`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addModal(m[1], entityFromComponent(m[1], "Modal", "Dialog", "Drawer"), f)
			},
		},
		{
			name: "modal_title",
			re:   regexp.MustCompile(`<(?:Modal|Dialog|Drawer|v-dialog|el-dialog|DialogTitle)\b[^>]*?\btitle=["']([^"'{}]+)["']`),
			exts: markupExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addModalTitle(m[1])
			},
		},
		{
			name: "dialog_open",
			re:   regexp.MustCompile(`\bdialog\.open\(\s*([A-Z][A-Za-z0-9]*)`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				name := strings.TrimSuffix(m[1], "Component")
				c.addModal(name, entityFromComponent(name, "Modal", "Dialog", "Drawer"), f)
			},
		},
	},
	KindI18n: {
		{
			name: "translate_call",
			re:   regexp.MustCompile(`(?:^|[^A-Za-z0-9_.])(?:t|i18n\.t|\$t|translate)\(\s*['"]([A-Za-z][\w-]*(?:\.[\w-]+)+)['"]`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addI18nKey(m[1], "", f)
			},
		},
		{
			name: "format_message",
			re:   regexp.MustCompile(`formatMessage\(\s*\{\s*id\s*:\s*['"]([^'"]+)['"](?:[^}]*?\bdefaultMessage\s*:\s*['"]([^'"]+)['"])?`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addI18nKey(m[1], m[2], f)
			},
		},
		{
			name: "formatted_message",
			re:   regexp.MustCompile(`<FormattedMessage\b[^>]*?\bid=["']([^"']+)["'](?:[^>]*?\bdefaultMessage=["']([^"']+)["'])?`),
			exts: markupExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addI18nKey(m[1], m[2], f)
			},
		},
		{
			name: "translate_pipe",
			re:   regexp.MustCompile(`['"]([A-Za-z][\w-]*(?:\.[\w-]+)+)['"]\s*\|\s*translate\b`),
			handle: func(c *collector, f SourceFile, m []string) {
				c.addI18nKey(m[1], "", f)
			},
		},
	},
	KindAnalytics: {
		{
			name: "sdk_track",
			re:   regexp.MustCompile(`\b(analytics|mixpanel|amplitude|segment|posthog|heap|rudderanalytics)\.(?:track|capture|logEvent)\(\s*['"]([^'"\n]{2,80})['"]`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addAnalyticsEvent(m[2], m[1], f)
			},
		},
		{
			name: "track_function",
			re:   regexp.MustCompile(`(?:^|[^.\w])(?:trackEvent|logEvent|track)\(\s*['"]([^'"\n]{2,80})['"]`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addAnalyticsEvent(m[1], "custom", f)
			},
		},
		{
			name: "gtag_event",
			re:   regexp.MustCompile(`\bgtag\(\s*['"]event['"]\s*,\s*['"]([^'"\n]{2,80})['"]`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addAnalyticsEvent(m[1], "gtag", f)
			},
		},
	},
	KindFlag: {
		{
			name: "flag_hook",
			re:   regexp.MustCompile(`\b(useFlag|useFeatureFlag|useFeatureFlagEnabled|useFeature|useGate|isFeatureEnabled|isEnabled|checkGate|getFeatureFlag)\(\s*['"]([A-Za-z][\w.:-]{1,80})['"]`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addFeatureFlag(m[2], flagProvider(m[1]), f)
			},
		},
		{
			name: "ld_variation",
			re:   regexp.MustCompile(`\bvariation\(\s*['"]([A-Za-z][\w.:-]{1,80})['"]`),
			exts: codeExts,
			handle: func(c *collector, f SourceFile, m []string) {
				c.addFeatureFlag(m[1], "launchdarkly", f)
			},
		},
	},
}

func fieldFromTag(name, tag string) Field {
	field := Field{Name: name}
	if m := testIDAttr.FindStringSubmatch(tag); m != nil {
		field.Selector = m[1]
	}
	if m := labelAttr.FindStringSubmatch(tag); m != nil {
		field.Label = m[1]
	}
	return field
}

func flagProvider(fn string) string {
	switch fn {
	case "useGate", "checkGate":
		return "statsig"
	case "useFeatureFlagEnabled", "getFeatureFlag":
		return "posthog"
	case "isEnabled":
		return "unleash"
	default:
		return "generic"
	}
}

var operationVerbs = []string{"Get", "List", "Fetch", "Create", "Update", "Delete", "Remove", "Search", "All", "Add", "Edit"}

// stripOperationVerb removes a leading verb from a GraphQL operation name
// ("GetInvoices" -> "Invoices").
func stripOperationVerb(name string) string {
	for _, v := range operationVerbs {
		if strings.HasPrefix(name, v) && len(name) > len(v) {
			return name[len(v):]
		}
	}
	return name
}
