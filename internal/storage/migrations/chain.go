package migrations

import (
	"fmt"
	"time"
)

// Schema versions.
const (
	CurrentVersion = "1.0.0"
	OldestVersion  = "0.5.0"
)

// Default returns the manager with the full LLKB migration chain.
func Default() *Manager {
	m := NewManager(CurrentVersion, OldestVersion)
	m.Register(Migration{
		From:        "0.5.0",
		To:          "0.9.0",
		Description: "rename trigger_text, backfill confidence history and validation",
		Up:          upTo090,
	})
	m.Register(Migration{
		From:        "0.9.0",
		To:          "1.0.0",
		Description: "backfill archived, scope, tags and extraction time",
		Up:          upTo100,
	})
	return m
}

func upTo090(doc Document, tree map[string]any) error {
	if doc != Lessons {
		return nil
	}
	return eachItem(tree, "lessons", func(l map[string]any) {
		if old, ok := l["trigger_text"]; ok {
			if _, exists := l["trigger"]; !exists {
				l["trigger"] = old
			}
			delete(l, "trigger_text")
		}
		metrics, ok := l["metrics"].(map[string]any)
		if !ok {
			metrics = map[string]any{}
			l["metrics"] = metrics
		}
		setDefault(metrics, "confidenceHistory", []any{})
		setDefault(l, "validation", map[string]any{"humanReviewed": false})
	})
}

func upTo100(doc Document, tree map[string]any) error {
	switch doc {
	case Lessons:
		return eachItem(tree, "lessons", func(l map[string]any) {
			setDefault(l, "archived", false)
			setDefault(l, "scope", "app-specific")
			setDefault(l, "tags", []any{})
			setDefault(l, "journeyIds", []any{})
		})
	case Components:
		extractedAt := time.Unix(0, 0).UTC().Format(time.RFC3339)
		if s, ok := tree["lastUpdated"].(string); ok && s != "" {
			extractedAt = s
		}
		return eachItem(tree, "components", func(c map[string]any) {
			setDefault(c, "archived", false)
			setDefault(c, "scope", "app-specific")
			source, ok := c["source"].(map[string]any)
			if !ok {
				source = map[string]any{}
				c["source"] = source
			}
			setDefault(source, "extractedAt", extractedAt)
		})
	}
	return nil
}

// eachItem applies fn to every object in tree[key]. A missing key is an
// empty list; anything other than a list of objects is an error.
func eachItem(tree map[string]any, key string, fn func(map[string]any)) error {
	raw, ok := tree[key]
	if !ok || raw == nil {
		tree[key] = []any{}
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("%s is %T, want a list", key, raw)
	}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("%s[%d] is %T, want an object", key, i, item)
		}
		fn(obj)
	}
	return nil
}

func setDefault(m map[string]any, key string, value any) {
	if v, ok := m[key]; !ok || v == nil {
		m[key] = value
	}
}
