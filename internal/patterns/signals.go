package patterns

import (
	"strings"

	"github.com/steveyegge/llkb/internal/mining"
	"github.com/steveyegge/llkb/internal/types"
)

// FromSignals turns i18n keys, analytics events and feature flags into
// weak-tier patterns.
func FromSignals(s *mining.Signals) []types.DiscoveredPattern {
	var drafts []draft
	for _, k := range s.I18nKeys {
		drafts = append(drafts, i18nTemplates(k)...)
	}
	for _, e := range s.AnalyticsEvents {
		drafts = append(drafts, draft{
			text:           "verify " + mining.Humanize(e.Name) + " event is tracked",
			action:         types.ActionAssert,
			category:       OriginAnalytics,
			source:         types.SourceSignal,
			templateSource: OriginAnalytics,
			hints:          hints(css(`[data-track="` + e.Name + `"]`)),
		})
	}
	for _, f := range s.FeatureFlags {
		name := mining.Humanize(f.Name)
		flag := func(text string, action types.Action, h ...types.SelectorHint) draft {
			return draft{text: text, action: action, category: OriginFeatureFlag, source: types.SourceSignal,
				templateSource: OriginFeatureFlag, hints: h}
		}
		drafts = append(drafts,
			flag("enable "+name+" feature", types.ActionCheck, testID("flag-"+kebab(name))),
			flag("verify "+name+" feature is visible", types.ActionAssert, css(`[data-feature="`+f.Name+`"]`)),
		)
	}
	return buildAll(drafts)
}

// i18nTemplates derives patterns from a translation key. The leaf of the key
// decides the action: button and action keys are clicks, labels and
// placeholders are fills, everything else is an assertion on the text.
func i18nTemplates(k mining.I18nKey) []draft {
	leaf := k.Key
	if i := strings.LastIndexAny(leaf, ".:"); i >= 0 {
		leaf = leaf[i+1:]
	}
	phrase := strings.ToLower(k.Text)
	if phrase == "" {
		phrase = mining.Humanize(leaf)
	}
	if strings.TrimSpace(phrase) == "" {
		return nil
	}

	sig := func(text string, action types.Action, h ...types.SelectorHint) draft {
		return draft{text: text, action: action, category: OriginI18n, source: types.SourceSignal,
			templateSource: OriginI18n, hints: h}
	}
	visible := k.Text
	if visible == "" {
		visible = phrase
	}

	lowerKey := strings.ToLower(k.Key)
	switch {
	case strings.Contains(lowerKey, "button") || strings.Contains(lowerKey, "action") || strings.Contains(lowerKey, "btn"):
		return []draft{sig("click "+phrase, types.ActionClick, role("button:"+visible), text(visible))}
	case strings.Contains(lowerKey, "placeholder"):
		return []draft{sig("fill "+phrase, types.ActionFill, placeholder(visible))}
	case strings.Contains(lowerKey, "label"):
		return []draft{sig("fill "+phrase+" field", types.ActionFill, label(visible))}
	default:
		return []draft{sig("see "+phrase, types.ActionAssert, text(visible))}
	}
}
