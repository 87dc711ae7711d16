// Package registry maintains registry.json, the index from extracted
// components to the source modules that export them. The document is always
// rebuilt from components.json and the configured module rules.
package registry

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/types"
)

// Build groups active components by file and resolves each file's import
// path. The first rule with a matching glob wins; files no rule covers get a
// relative import path derived from the file path.
func Build(components []types.Component, rules []config.ModuleRule) []types.Module {
	byFile := make(map[string]*types.Module)
	for _, c := range components {
		if c.Archived || c.FilePath == "" {
			continue
		}
		file := filepath.ToSlash(c.FilePath)
		m, ok := byFile[file]
		if !ok {
			m = resolve(file, rules)
			byFile[file] = m
		}
		m.Exports = append(m.Exports, c.Name)
		m.Components = append(m.Components, c.ID)
	}

	modules := make([]types.Module, 0, len(byFile))
	for _, m := range byFile {
		sort.Strings(m.Exports)
		sort.Strings(m.Components)
		modules = append(modules, *m)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].FilePath < modules[j].FilePath })
	return modules
}

func resolve(file string, rules []config.ModuleRule) *types.Module {
	for _, rule := range rules {
		if Matches(rule, file) {
			return &types.Module{Name: rule.Name, FilePath: file, ImportPath: rule.ImportPath}
		}
	}
	trimmed := strings.TrimSuffix(file, path.Ext(file))
	importPath := trimmed
	if !strings.HasPrefix(importPath, ".") && !strings.HasPrefix(importPath, "/") {
		importPath = "./" + importPath
	}
	return &types.Module{Name: path.Base(trimmed), FilePath: file, ImportPath: importPath}
}

// Matches reports whether any of the rule's globs matches file.
func Matches(rule config.ModuleRule, file string) bool {
	file = filepath.ToSlash(file)
	for _, pattern := range rule.Paths {
		if ok, _ := doublestar.Match(pattern, file); ok {
			return true
		}
	}
	return false
}

// Rebuild recomputes registry.json from the current components.
func Rebuild(ctx context.Context, store *storage.Store, rules []config.ModuleRule) (*types.RegistryDocument, error) {
	components, err := store.LoadComponents()
	if err != nil {
		return nil, fmt.Errorf("failed to load components: %w", err)
	}
	modules := Build(components.Components, rules)

	var saved types.RegistryDocument
	err = store.UpdateRegistry(ctx, func(d *types.RegistryDocument) error {
		d.Modules = modules
		saved = *d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save registry: %w", err)
	}
	return &saved, nil
}

// ImportFor returns the import path for a component name from the saved
// registry.
func ImportFor(store *storage.Store, componentName string) (string, bool, error) {
	doc, err := store.LoadRegistry()
	if err != nil {
		return "", false, err
	}
	m, ok := doc.Lookup(componentName)
	if !ok {
		return "", false, nil
	}
	return m.ImportPath, true, nil
}
