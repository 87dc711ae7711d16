// Package config loads the LLKB store configuration (config.yml) and applies
// LLKB_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultRoot is the store root used when none is configured.
const DefaultRoot = ".artk/llkb"

// FileName is the config file name inside the store root.
const FileName = "config.yml"

// Config holds all LLKB configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Enabled   bool            `yaml:"enabled"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Cache     CacheConfig     `yaml:"cache"`
	Quality   QualityConfig   `yaml:"quality"`
	Lock      LockConfig      `yaml:"lock"`
	Retention RetentionConfig `yaml:"retention"`
	Injection InjectionConfig `yaml:"injection"`
	Export    ExportConfig    `yaml:"export"`

	// Modules maps component file globs to import paths for the registry.
	Modules []ModuleRule `yaml:"modules"`
}

// DiscoveryConfig bounds the mining engine and pattern generator.
type DiscoveryConfig struct {
	MaxDepth          int      `yaml:"maxDepth" env:"LLKB_MAX_DEPTH"`
	MaxFiles          int      `yaml:"maxFiles" env:"LLKB_MAX_FILES"`
	MaxFileSizeBytes  int64    `yaml:"maxFileSizeBytes" env:"LLKB_MAX_FILE_SIZE"`
	RegexIterationCap int      `yaml:"regexIterationCap" env:"LLKB_REGEX_ITERATION_CAP"`
	MaxPatterns       int      `yaml:"maxPatterns" env:"LLKB_MAX_PATTERNS"`
	SourceDirs        []string `yaml:"sourceDirs" env:"LLKB_SOURCE_DIRS" envSeparator:","`
	ExcludeGlobs      []string `yaml:"excludeGlobs" env:"LLKB_EXCLUDE_GLOBS" envSeparator:","`
	PassiveSignals    bool     `yaml:"passiveSignals" env:"LLKB_PASSIVE_SIGNALS"`

	// Frameworks overrides package.json detection when non-empty.
	Frameworks []string `yaml:"frameworks" env:"LLKB_FRAMEWORKS" envSeparator:","`
}

// CacheConfig bounds the content cache.
type CacheConfig struct {
	MaxMemoryMB          int `yaml:"maxMemoryMB" env:"LLKB_CACHE_MAX_MEMORY_MB"`
	MaxFiles             int `yaml:"maxFiles" env:"LLKB_CACHE_MAX_FILES"`
	EvictionBatchPercent int `yaml:"evictionBatchPercent" env:"LLKB_CACHE_EVICTION_BATCH_PERCENT"`
}

// QualityConfig tunes the quality control pipeline.
type QualityConfig struct {
	MinConfidence     float64 `yaml:"minConfidence" env:"LLKB_MIN_CONFIDENCE"`
	CrossSourceBoost  float64 `yaml:"crossSourceBoost" env:"LLKB_CROSS_SOURCE_BOOST"`
	ConfidenceCeiling float64 `yaml:"confidenceCeiling" env:"LLKB_CONFIDENCE_CEILING"`
	StaleAfterDays    int     `yaml:"staleAfterDays" env:"LLKB_STALE_AFTER_DAYS"`
	SignalWeighting   bool    `yaml:"signalWeighting" env:"LLKB_SIGNAL_WEIGHTING"`
	PruneStale        bool    `yaml:"pruneStale" env:"LLKB_PRUNE_STALE"`
}

// LockConfig tunes the advisory document lock.
type LockConfig struct {
	StaleAfter    time.Duration `yaml:"staleAfter" env:"LLKB_LOCK_STALE_AFTER"`
	RetryInterval time.Duration `yaml:"retryInterval" env:"LLKB_LOCK_RETRY_INTERVAL"`
	MaxWait       time.Duration `yaml:"maxWait" env:"LLKB_LOCK_MAX_WAIT"`
}

// RetentionConfig controls history pruning and lesson archiving.
type RetentionConfig struct {
	// HistoryDays is how many calendar days of history files are kept
	HistoryDays int `yaml:"historyDays" env:"LLKB_HISTORY_DAYS"`

	// ArchiveHistory compresses pruned history days instead of only deleting them
	ArchiveHistory bool `yaml:"archiveHistory" env:"LLKB_ARCHIVE_HISTORY"`

	// LessonStaleDays archives lessons and components unused for this long
	LessonStaleDays int `yaml:"lessonStaleDays" env:"LLKB_LESSON_STALE_DAYS"`

	// ArchiveBelowConfidence archives well-exercised lessons that never became reliable
	ArchiveBelowConfidence float64 `yaml:"archiveBelowConfidence" env:"LLKB_ARCHIVE_BELOW_CONFIDENCE"`
}

// InjectionConfig controls how ranked context is assembled.
type InjectionConfig struct {
	MaxLessons    int     `yaml:"maxLessons" env:"LLKB_MAX_LESSONS"`
	MaxComponents int     `yaml:"maxComponents" env:"LLKB_MAX_COMPONENTS"`
	MinRelevance  float64 `yaml:"minRelevance" env:"LLKB_MIN_RELEVANCE"`
	SortBy        string  `yaml:"sortBy" env:"LLKB_SORT_BY"`
}

// ExportConfig controls the export bundle.
type ExportConfig struct {
	MinConfidence float64 `yaml:"minConfidence" env:"LLKB_EXPORT_MIN_CONFIDENCE"`
}

// ModuleRule maps component file globs (doublestar syntax) to an import path.
type ModuleRule struct {
	Name       string   `yaml:"name"`
	Paths      []string `yaml:"paths"`
	ImportPath string   `yaml:"importPath"`
}

// DefaultSourceDirs is the allow-list of conventional source directories.
var DefaultSourceDirs = []string{
	"src", "app", "components", "pages", "routes", "forms", "tables", "modals",
	"views", "screens", "features", "modules", "models", "entities", "types",
	"api", "services", "store", "stores", "hooks", "lib", "layouts", "containers",
	"dialogs", "schemas", "graphql", "prisma", "i18n", "locales", "public/locales",
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Enabled: true,
		Discovery: DiscoveryConfig{
			MaxDepth:          20,
			MaxFiles:          5000,
			MaxFileSizeBytes:  1 << 20,
			RegexIterationCap: 1000,
			MaxPatterns:       2000,
			SourceDirs:        append([]string(nil), DefaultSourceDirs...),
			ExcludeGlobs:      []string{"**/*.test.*", "**/*.spec.*", "**/*.stories.*", "**/*.d.ts"},
			PassiveSignals:    true,
		},
		Cache: CacheConfig{
			MaxMemoryMB:          100,
			MaxFiles:             5000,
			EvictionBatchPercent: 10,
		},
		Quality: QualityConfig{
			MinConfidence:     0.5,
			CrossSourceBoost:  0.1,
			ConfidenceCeiling: 0.95,
			StaleAfterDays:    90,
			SignalWeighting:   true,
			PruneStale:        false,
		},
		Lock: LockConfig{
			StaleAfter:    30 * time.Second,
			RetryInterval: 50 * time.Millisecond,
			MaxWait:       5 * time.Second,
		},
		Retention: RetentionConfig{
			HistoryDays:            90,
			ArchiveHistory:         true,
			LessonStaleDays:        180,
			ArchiveBelowConfidence: 0.2,
		},
		Injection: InjectionConfig{
			MaxLessons:    10,
			MaxComponents: 10,
			MinRelevance:  0.3,
			SortBy:        "relevance",
		},
		Export: ExportConfig{
			MinConfidence: 0.7,
		},
	}
}

// Path returns the config file path for a store root.
func Path(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads a YAML config file at path and merges it over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrCreate loads config.yml from the store root, writing the defaults
// first if the file does not exist. Environment overrides are applied last.
func LoadOrCreate(root string) (*Config, error) {
	path := Path(root)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Default().Save(path); err != nil {
			return nil, err
		}
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOptional loads config.yml from the store root if present and falls back
// to the defaults otherwise. It never writes. Environment overrides are applied.
func LoadOptional(root string) (*Config, error) {
	path := Path(root)
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// ApplyEnv overlays LLKB_* environment variables onto cfg and re-validates.
//
// Environment variables (unset variables leave the loaded value untouched):
//   - LLKB_ENABLED, LLKB_PASSIVE_SIGNALS, LLKB_SIGNAL_WEIGHTING, LLKB_PRUNE_STALE
//   - LLKB_MAX_DEPTH, LLKB_MAX_FILES, LLKB_MAX_FILE_SIZE, LLKB_REGEX_ITERATION_CAP
//   - LLKB_MIN_CONFIDENCE, LLKB_CROSS_SOURCE_BOOST, LLKB_CONFIDENCE_CEILING
//   - LLKB_LOCK_STALE_AFTER, LLKB_LOCK_RETRY_INTERVAL, LLKB_LOCK_MAX_WAIT (durations)
//   - LLKB_HISTORY_DAYS, LLKB_LESSON_STALE_DAYS, LLKB_EXPORT_MIN_CONFIDENCE
func ApplyEnv(cfg *Config) error {
	// Sections are parsed one by one so the module rule list is never touched.
	targets := []any{&cfg.Discovery, &cfg.Cache, &cfg.Quality, &cfg.Lock,
		&cfg.Retention, &cfg.Injection, &cfg.Export}
	for _, target := range targets {
		if err := env.Parse(target); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
	}
	enabled := struct {
		Enabled bool `env:"LLKB_ENABLED"`
	}{Enabled: cfg.Enabled}
	if err := env.Parse(&enabled); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.Enabled = enabled.Enabled

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return nil
}

// CacheMaxMemoryBytes returns the cache memory ceiling in bytes.
func (c *Config) CacheMaxMemoryBytes() int64 {
	return int64(c.Cache.MaxMemoryMB) << 20
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	d := c.Discovery
	if d.MaxDepth < 1 || d.MaxDepth > 100 {
		return fmt.Errorf("discovery.maxDepth must be between 1 and 100 (got %d)", d.MaxDepth)
	}
	if d.MaxFiles < 1 || d.MaxFiles > 1000000 {
		return fmt.Errorf("discovery.maxFiles must be between 1 and 1000000 (got %d)", d.MaxFiles)
	}
	if d.MaxFileSizeBytes < 1 {
		return fmt.Errorf("discovery.maxFileSizeBytes must be positive (got %d)", d.MaxFileSizeBytes)
	}
	if d.RegexIterationCap < 1 {
		return fmt.Errorf("discovery.regexIterationCap must be positive (got %d)", d.RegexIterationCap)
	}
	if d.MaxPatterns < 1 {
		return fmt.Errorf("discovery.maxPatterns must be positive (got %d)", d.MaxPatterns)
	}

	if c.Cache.MaxMemoryMB < 1 {
		return fmt.Errorf("cache.maxMemoryMB must be positive (got %d)", c.Cache.MaxMemoryMB)
	}
	if c.Cache.MaxFiles < 1 {
		return fmt.Errorf("cache.maxFiles must be positive (got %d)", c.Cache.MaxFiles)
	}
	if c.Cache.EvictionBatchPercent < 1 || c.Cache.EvictionBatchPercent > 100 {
		return fmt.Errorf("cache.evictionBatchPercent must be between 1 and 100 (got %d)",
			c.Cache.EvictionBatchPercent)
	}

	q := c.Quality
	if err := unit("quality.minConfidence", q.MinConfidence); err != nil {
		return err
	}
	if err := unit("quality.crossSourceBoost", q.CrossSourceBoost); err != nil {
		return err
	}
	if err := unit("quality.confidenceCeiling", q.ConfidenceCeiling); err != nil {
		return err
	}
	if q.MinConfidence > q.ConfidenceCeiling {
		return fmt.Errorf("quality.minConfidence (%.2f) must be <= quality.confidenceCeiling (%.2f)",
			q.MinConfidence, q.ConfidenceCeiling)
	}
	if q.StaleAfterDays < 1 {
		return fmt.Errorf("quality.staleAfterDays must be positive (got %d)", q.StaleAfterDays)
	}

	if c.Lock.StaleAfter <= 0 {
		return fmt.Errorf("lock.staleAfter must be positive (got %v)", c.Lock.StaleAfter)
	}
	if c.Lock.RetryInterval <= 0 {
		return fmt.Errorf("lock.retryInterval must be positive (got %v)", c.Lock.RetryInterval)
	}
	if c.Lock.MaxWait < c.Lock.RetryInterval {
		return fmt.Errorf("lock.maxWait (%v) must be >= lock.retryInterval (%v)",
			c.Lock.MaxWait, c.Lock.RetryInterval)
	}

	if c.Retention.HistoryDays < 1 || c.Retention.HistoryDays > 3650 {
		return fmt.Errorf("retention.historyDays must be between 1 and 3650 (got %d)", c.Retention.HistoryDays)
	}
	if c.Retention.LessonStaleDays < 1 {
		return fmt.Errorf("retention.lessonStaleDays must be positive (got %d)", c.Retention.LessonStaleDays)
	}
	if err := unit("retention.archiveBelowConfidence", c.Retention.ArchiveBelowConfidence); err != nil {
		return err
	}

	if c.Injection.MaxLessons < 0 || c.Injection.MaxComponents < 0 {
		return fmt.Errorf("injection limits cannot be negative")
	}
	if err := unit("injection.minRelevance", c.Injection.MinRelevance); err != nil {
		return err
	}
	if c.Injection.SortBy != "relevance" && c.Injection.SortBy != "confidence" {
		return fmt.Errorf("injection.sortBy must be 'relevance' or 'confidence' (got %q)", c.Injection.SortBy)
	}

	if err := unit("export.minConfidence", c.Export.MinConfidence); err != nil {
		return err
	}

	for i, m := range c.Modules {
		if m.Name == "" || m.ImportPath == "" || len(m.Paths) == 0 {
			return fmt.Errorf("modules[%d] requires name, importPath and at least one path", i)
		}
	}
	return nil
}

func unit(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%s must be between 0.0 and 1.0 (got %.2f)", name, v)
	}
	return nil
}
