package mining

import (
	"strings"
	"unicode"

	"github.com/steveyegge/llkb/internal/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Suffixes stripped from raw names ("InvoiceDto" -> "Invoice"), longest first.
var entitySuffixes = []string{
	"Interface", "Document", "Response", "Payload", "Request", "Record",
	"Entity", "Schema", "Model", "Input", "Type", "Data", "Dto", "DTO",
}

// Names ending in one of these describe plumbing, not domain nouns.
var excludedSuffixes = []string{
	"Props", "State", "Context", "Config", "Options", "Handler", "Provider",
	"Service", "Controller", "Store", "Hook", "Component", "Page", "Layout",
	"Params", "Args",
	"Form", "Table", "Grid", "List", "Modal", "Dialog", "Drawer", "View",
	"Screen", "Button", "Card", "Panel", "Section", "Widget", "Menu", "Error",
	"Exception", "Module", "Guard", "Resolver", "Repository", "Factory",
	"Helper", "Utils", "Client", "Api", "Query", "Mutation", "Listener",
	"Middleware", "Router", "Routes", "Fragment",
}

var stopwords = map[string]bool{
	"app": true, "application": true, "index": true, "main": true, "root": true,
	"base": true, "default": true, "error": true, "event": true, "props": true,
	"state": true, "config": true, "util": true, "utils": true, "helper": true,
	"api": true, "test": true, "mock": true, "type": true, "data": true,
	"item": true, "value": true, "response": true, "request": true, "result": true,
	"param": true, "option": true, "react": true, "component": true, "module": true,
	"string": true, "number": true, "boolean": true, "date": true, "object": true,
	"array": true, "record": true, "map": true, "set": true, "promise": true,
	"function": true, "window": true, "document": true, "node": true, "element": true,
	"query": true, "mutation": true, "subscription": true, "context": true,
	"store": true, "service": true, "schema": true, "model": true, "entity": true,
	"new": true, "edit": true, "create": true, "update": true, "delete": true,
	"list": true, "detail": true, "details": true, "v1": true, "v2": true, "v3": true,
	"auth": true, "login": true, "logout": true, "health": true, "status": true,
	"graphql": true, "rest": true, "route": true, "router": true, "layout": true,
	"page": true, "home": true, "dashboard": true, "settings": true, "search": true,
	"table": true, "form": true, "modal": true, "dialog": true, "drawer": true,
	"grid": true, "button": true, "input": true, "field": true, "column": true,
}

var titleCase = cases.Title(language.Und)

// NormalizeEntity turns a raw mined identifier into an Entity. It reports
// false when the name is plumbing, a stopword, or too short to be useful.
func NormalizeEntity(raw string) (Entity, bool) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return Entity{}, false
	}
	// IUser -> User
	if len(name) > 2 && name[0] == 'I' && unicode.IsUpper(rune(name[1])) && unicode.IsLower(rune(name[2])) {
		name = name[1:]
	}
	for _, s := range excludedSuffixes {
		if strings.HasSuffix(name, s) {
			return Entity{}, false
		}
	}
	for _, s := range entitySuffixes {
		if strings.HasSuffix(name, s) && len(name) > len(s) {
			name = strings.TrimSuffix(name, s)
			break
		}
	}

	parts := splitWords(name)
	if len(parts) == 0 {
		return Entity{}, false
	}
	for i := range parts {
		parts[i] = strings.ToLower(parts[i])
	}
	parts[len(parts)-1] = inflect.Singularize(parts[len(parts)-1])

	lower := strings.Join(parts, " ")
	if len(lower) < 3 || len(lower) > 40 || stopwords[lower] {
		return Entity{}, false
	}
	if !unicode.IsLetter(rune(lower[0])) {
		return Entity{}, false
	}

	plural := make([]string, len(parts))
	copy(plural, parts)
	plural[len(plural)-1] = inflect.Pluralize(parts[len(parts)-1])

	return Entity{
		Name:        lower,
		DisplayName: titleCase.String(lower),
		Plural:      strings.Join(plural, " "),
	}, true
}

// splitWords splits camelCase, PascalCase, snake_case, kebab-case and
// spaced identifiers into words. Acronym runs stay together ("HTTPServer" ->
// "HTTP", "Server").
func splitWords(s string) []string {
	var words []string
	var cur []rune
	runes := []rune(s)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.' || r == '/':
			flush()
			continue
		case unicode.IsUpper(r) && len(cur) > 0:
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// Humanize turns an identifier into a lower-case phrase ("firstName" -> "first name").
func Humanize(s string) string {
	parts := splitWords(s)
	for i := range parts {
		parts[i] = strings.ToLower(parts[i])
	}
	return strings.Join(parts, " ")
}

// entityFromComponent strips a UI suffix from a component name and
// normalizes the rest ("InvoiceForm" -> "invoice").
func entityFromComponent(name string, suffixes ...string) string {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) && len(name) > len(s) {
			name = strings.TrimSuffix(name, s)
			break
		}
	}
	for _, prefix := range []string{"Create", "Edit", "Update", "New", "Delete", "Add"} {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) && unicode.IsUpper(rune(name[len(prefix)])) {
			name = name[len(prefix):]
			break
		}
	}
	if e, ok := NormalizeEntity(name); ok {
		return e.Name
	}
	return ""
}

// entityFromSegment derives an entity from a path segment ("invoices",
// "line-items").
func entityFromSegment(segment string) (Entity, bool) {
	if segment == "" || strings.ContainsAny(segment, ":{}[]$") {
		return Entity{}, false
	}
	return NormalizeEntity(segment)
}
