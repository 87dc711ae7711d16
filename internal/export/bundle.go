// Package export renders the knowledge store for the test generator: a
// config fragment and glossary bundle, and flat exports of lessons and
// components.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/types"
)

// Bundle file names inside the output directory.
const (
	ConfigFragmentFile = "autogen-config.yml"
	GlossaryFile       = "glossary.json"
)

// ConfigFragment is the content of autogen-config.yml.
type ConfigFragment struct {
	Version           string             `yaml:"version"`
	GeneratedAt       time.Time          `yaml:"generatedAt"`
	MinConfidence     float64            `yaml:"minConfidence"`
	Patterns          []PatternEntry     `yaml:"additionalPatterns"`
	SelectorOverrides []SelectorOverride `yaml:"selectorOverrides"`
	TimingHints       []TimingHint       `yaml:"timingHints"`
	Modules           []ModuleMapping    `yaml:"modules"`
}

// PatternEntry is one additional phrase the generator should recognise.
type PatternEntry struct {
	ID         string  `yaml:"id"`
	Phrase     string  `yaml:"phrase"`
	Action     string  `yaml:"action"`
	Selector   string  `yaml:"selector,omitempty"`
	Strategy   string  `yaml:"strategy,omitempty"`
	Confidence float64 `yaml:"confidence"`
	Source     string  `yaml:"source"`
}

// SelectorOverride comes from a selector lesson.
type SelectorOverride struct {
	LessonID   string  `yaml:"lessonId"`
	When       string  `yaml:"when"`
	Use        string  `yaml:"use"`
	Confidence float64 `yaml:"confidence"`
}

// TimingHint comes from a timing lesson.
type TimingHint struct {
	LessonID   string  `yaml:"lessonId"`
	When       string  `yaml:"when"`
	Hint       string  `yaml:"hint"`
	Confidence float64 `yaml:"confidence"`
}

// ModuleMapping tells the generator where reusable components are imported from.
type ModuleMapping struct {
	Name       string   `yaml:"name"`
	ImportPath string   `yaml:"importPath"`
	Exports    []string `yaml:"exports"`
}

// GlossaryEntry is the structured action a phrase maps to.
type GlossaryEntry struct {
	Action     string  `json:"action"`
	Selector   string  `json:"selector,omitempty"`
	Strategy   string  `json:"strategy,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"`
}

// BundleResult reports what Bundle wrote.
type BundleResult struct {
	ConfigPath        string `json:"configPath"`
	GlossaryPath      string `json:"glossaryPath"`
	Patterns          int    `json:"patterns"`
	SelectorOverrides int    `json:"selectorOverrides"`
	TimingHints       int    `json:"timingHints"`
	Modules           int    `json:"modules"`
	GlossaryEntries   int    `json:"glossaryEntries"`
}

// Bundle writes autogen-config.yml and glossary.json into outDir. Patterns
// and lessons below cfg.Export.MinConfidence are left out, as are archived
// lessons.
func Bundle(ctx context.Context, store *storage.Store, cfg *config.Config, outDir string) (*BundleResult, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	minConfidence := cfg.Export.MinConfidence

	patterns, err := store.LoadPatterns()
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns: %w", err)
	}
	lessons, err := store.LoadLessons()
	if err != nil {
		return nil, fmt.Errorf("failed to load lessons: %w", err)
	}
	registry, err := store.LoadRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fragment := BuildFragment(patterns.Patterns, lessons.Lessons, registry.Modules, minConfidence)
	fragment.GeneratedAt = store.Now().UTC()
	glossary := BuildGlossary(patterns.Patterns, minConfidence)

	data, err := yaml.Marshal(fragment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config fragment: %w", err)
	}
	result := &BundleResult{
		ConfigPath:        filepath.Join(outDir, ConfigFragmentFile),
		GlossaryPath:      filepath.Join(outDir, GlossaryFile),
		Patterns:          len(fragment.Patterns),
		SelectorOverrides: len(fragment.SelectorOverrides),
		TimingHints:       len(fragment.TimingHints),
		Modules:           len(fragment.Modules),
		GlossaryEntries:   len(glossary),
	}
	if err := storage.WriteFileAtomic(result.ConfigPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", ConfigFragmentFile, err)
	}
	if err := storage.WriteJSON(result.GlossaryPath, glossary); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", GlossaryFile, err)
	}

	store.Logger().Info("export bundle written", "dir", outDir,
		"patterns", result.Patterns, "glossary", result.GlossaryEntries)
	return result, nil
}

// BuildFragment assembles the config fragment. Patterns are ordered by
// confidence, highest first; lessons and modules by id and name.
func BuildFragment(patterns []types.DiscoveredPattern, lessons []types.Lesson, modules []types.Module, minConfidence float64) *ConfigFragment {
	f := &ConfigFragment{
		Version:           types.CurrentVersion,
		MinConfidence:     minConfidence,
		Patterns:          []PatternEntry{},
		SelectorOverrides: []SelectorOverride{},
		TimingHints:       []TimingHint{},
		Modules:           []ModuleMapping{},
	}

	for _, p := range byConfidence(patterns, minConfidence) {
		e := PatternEntry{
			ID:         p.ID,
			Phrase:     p.NormalizedText,
			Action:     string(p.MappedAction),
			Confidence: p.Confidence,
			Source:     string(p.Source),
		}
		if hint, ok := p.BestSelector(); ok {
			e.Selector = hint.Value
			e.Strategy = string(hint.Strategy)
		}
		f.Patterns = append(f.Patterns, e)
	}

	active := make([]types.Lesson, 0, len(lessons))
	for _, l := range lessons {
		if !l.Archived && l.Metrics.Confidence >= minConfidence {
			active = append(active, l)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	for _, l := range active {
		switch l.Category {
		case types.CategorySelector:
			f.SelectorOverrides = append(f.SelectorOverrides, SelectorOverride{
				LessonID: l.ID, When: l.Trigger, Use: l.Pattern, Confidence: l.Metrics.Confidence,
			})
		case types.CategoryTiming:
			f.TimingHints = append(f.TimingHints, TimingHint{
				LessonID: l.ID, When: l.Trigger, Hint: l.Pattern, Confidence: l.Metrics.Confidence,
			})
		}
	}

	for _, m := range modules {
		f.Modules = append(f.Modules, ModuleMapping{
			Name:       m.Name,
			ImportPath: m.ImportPath,
			Exports:    append([]string{}, m.Exports...),
		})
	}
	sort.Slice(f.Modules, func(i, j int) bool {
		if f.Modules[i].Name != f.Modules[j].Name {
			return f.Modules[i].Name < f.Modules[j].Name
		}
		return f.Modules[i].ImportPath < f.Modules[j].ImportPath
	})
	return f
}

// BuildGlossary maps each normalized phrase to its action. When patterns
// share a phrase the most confident one wins.
func BuildGlossary(patterns []types.DiscoveredPattern, minConfidence float64) map[string]GlossaryEntry {
	glossary := make(map[string]GlossaryEntry)
	for _, p := range byConfidence(patterns, minConfidence) {
		if _, ok := glossary[p.NormalizedText]; ok {
			continue
		}
		e := GlossaryEntry{
			Action:     string(p.MappedAction),
			Confidence: p.Confidence,
			Source:     string(p.Source),
		}
		if hint, ok := p.BestSelector(); ok {
			e.Selector = hint.Value
			e.Strategy = string(hint.Strategy)
		}
		glossary[p.NormalizedText] = e
	}
	return glossary
}

func byConfidence(patterns []types.DiscoveredPattern, minConfidence float64) []types.DiscoveredPattern {
	out := make([]types.DiscoveredPattern, 0, len(patterns))
	for _, p := range patterns {
		if p.Confidence >= minConfidence {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}
