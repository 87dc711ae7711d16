// Package inflect pluralizes and singularizes English entity names.
//
// Rules are applied from the most specific to the most general. Irregular
// words and uncountable words are checked before any rule.
package inflect

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type rule struct {
	re   *regexp.Regexp
	repl string
}

func rules(pairs ...string) []rule {
	out := make([]rule, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, rule{re: regexp.MustCompile(pairs[i]), repl: pairs[i+1]})
	}
	return out
}

// Ordered most specific first; the first matching rule wins.
var pluralRules = rules(
	`(quiz)$`, `${1}zes`,
	`(matr|vert|ind)(ix|ex)$`, `${1}ices`,
	`(x|ch|ss|sh|zz)$`, `${1}es`,
	`([^aeiouy]|qu)y$`, `${1}ies`,
	`(hive)$`, `${1}s`,
	`(wol|shel|hal|cal|sel|el)f$`, `${1}ves`,
	`sis$`, `ses`,
	`([ti])um$`, `${1}a`,
	`(buffal|tomat|potat|her|ech)o$`, `${1}oes`,
	`(bu|alia|statu|campu|viru|octopu)s$`, `${1}ses`,
	`(ax|test)is$`, `${1}es`,
	`s$`, `s`,
	`$`, `s`,
)

var singularRules = rules(
	`(quiz)zes$`, `${1}`,
	`(matr)ices$`, `${1}ix`,
	`(vert|ind)ices$`, `${1}ex`,
	`(alias|status|campus|virus|octopus|bus)(es)?$`, `${1}`,
	`(buffal|tomat|potat|her|ech)oes$`, `${1}o`,
	`^(ax|test)es$`, `${1}is`,
	`(x|ch|ss|sh|zz)es$`, `${1}`,
	`(m)ovies$`, `${1}ovie`,
	`([^aeiouy]|qu)ies$`, `${1}y`,
	`(wol|shel|hal|cal|sel|el)ves$`, `${1}f`,
	`(hive)s$`, `${1}`,
	`^(analy|ba|diagno|parenthe|progno|synop|the|cri)ses$`, `${1}sis`,
	`([ti])a$`, `${1}um`,
	`(ss)$`, `${1}`,
	`(us)$`, `${1}`,
	`(is)$`, `${1}`,
	`s$`, ``,
)

// irregular maps singular to plural.
var irregular = map[string]string{
	"person":    "people",
	"child":     "children",
	"man":       "men",
	"woman":     "women",
	"mouse":     "mice",
	"goose":     "geese",
	"foot":      "feet",
	"tooth":     "teeth",
	"ox":        "oxen",
	"leaf":      "leaves",
	"life":      "lives",
	"knife":     "knives",
	"wife":      "wives",
	"criterion": "criteria",
}

var irregularPlural = func() map[string]string {
	m := make(map[string]string, len(irregular))
	for s, p := range irregular {
		m[p] = s
	}
	return m
}()

var uncountable = map[string]bool{
	"equipment":   true,
	"information": true,
	"rice":        true,
	"money":       true,
	"species":     true,
	"series":      true,
	"fish":        true,
	"sheep":       true,
	"deer":        true,
	"news":        true,
	"data":        true,
	"metadata":    true,
	"feedback":    true,
	"software":    true,
	"hardware":    true,
}

var (
	upper = cases.Upper(language.Und)
	title = cases.Title(language.Und, cases.NoLower)
)

// IsUncountable reports whether word has no distinct plural form.
func IsUncountable(word string) bool {
	return uncountable[strings.ToLower(word)]
}

// IsIrregular reports whether word is the singular or plural of an irregular noun.
func IsIrregular(word string) bool {
	lower := strings.ToLower(word)
	_, s := irregular[lower]
	_, p := irregularPlural[lower]
	return s || p
}

// Pluralize returns the plural form of word, preserving its case pattern.
func Pluralize(word string) string {
	return inflect(word, pluralize)
}

// Singularize returns the singular form of word, preserving its case pattern.
func Singularize(word string) string {
	return inflect(word, singularize)
}

func pluralize(lower string) string {
	if uncountable[lower] {
		return lower
	}
	if p, ok := irregular[lower]; ok {
		return p
	}
	if _, ok := irregularPlural[lower]; ok {
		return lower
	}
	return apply(lower, pluralRules)
}

func singularize(lower string) string {
	if uncountable[lower] {
		return lower
	}
	if s, ok := irregularPlural[lower]; ok {
		return s
	}
	if _, ok := irregular[lower]; ok {
		return lower
	}
	return apply(lower, singularRules)
}

func apply(word string, rs []rule) string {
	for _, r := range rs {
		if r.re.MatchString(word) {
			return r.re.ReplaceAllString(word, r.repl)
		}
	}
	return word
}

// inflect runs fn over the last word of a compound name ("LineItem",
// "line_item", "line item") and restores the case pattern of the input.
func inflect(word string, fn func(string) string) string {
	if word == "" {
		return word
	}
	head, tail := splitLast(word)
	if tail == "" {
		return word
	}
	return head + restoreCase(tail, fn(strings.ToLower(tail)))
}

// splitLast separates the final word of a camelCase, snake_case, kebab-case
// or spaced identifier.
func splitLast(word string) (string, string) {
	cut := 0
	for i := len(word) - 1; i > 0; i-- {
		ch := word[i]
		if ch == '_' || ch == '-' || ch == ' ' {
			cut = i + 1
			break
		}
		if isUpper(ch) && !isUpper(word[i-1]) {
			cut = i
			break
		}
	}
	return word[:cut], word[cut:]
}

// restoreCase applies the case pattern of original to inflected: upper,
// title, or lower. Mixed input keeps the shared prefix verbatim.
func restoreCase(original, inflected string) string {
	switch {
	case len(original) > 1 && original == strings.ToUpper(original):
		return upper.String(inflected)
	case isUpper(original[0]) && original[1:] == strings.ToLower(original[1:]):
		return title.String(inflected)
	case original == strings.ToLower(original):
		return inflected
	}
	n := 0
	for n < len(original) && n < len(inflected) && strings.EqualFold(original[n:n+1], inflected[n:n+1]) {
		n++
	}
	return original[:n] + inflected[n:]
}

func isUpper(ch byte) bool {
	return ch >= 'A' && ch <= 'Z'
}
