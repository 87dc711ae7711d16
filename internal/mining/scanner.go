// Package mining scans a project's conventional source directories and
// extracts entities, routes, forms, tables, modals and passive signals with
// bounded regular-expression passes.
package mining

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/steveyegge/llkb/internal/cache"
	"github.com/steveyegge/llkb/internal/config"
)

// Directories never descended into, wherever they appear.
var refusedDirs = map[string]bool{
	"node_modules":     true,
	"dist":             true,
	"build":            true,
	"out":              true,
	"coverage":         true,
	"vendor":           true,
	"target":           true,
	"__snapshots__":    true,
	"__generated__":    true,
	"storybook-static": true,
}

var sourceExts = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true, ".mjs": true,
	".vue": true, ".svelte": true, ".graphql": true, ".gql": true, ".prisma": true,
}

// Path segments under which .json files are treated as locale files.
var localeSegments = map[string]bool{
	"locales": true, "i18n": true, "lang": true, "translations": true, "messages": true,
}

// Options bounds a scan.
type Options struct {
	SourceDirs        []string
	ExcludeGlobs      []string
	MaxDepth          int
	MaxFiles          int
	RegexIterationCap int
	Logger            *slog.Logger
}

// OptionsFromConfig builds scan options from the discovery config section.
func OptionsFromConfig(cfg config.DiscoveryConfig) Options {
	return Options{
		SourceDirs:        cfg.SourceDirs,
		ExcludeGlobs:      cfg.ExcludeGlobs,
		MaxDepth:          cfg.MaxDepth,
		MaxFiles:          cfg.MaxFiles,
		RegexIterationCap: cfg.RegexIterationCap,
	}
}

// SourceFile is a file selected by the walk.
type SourceFile struct {
	Path string // absolute
	Rel  string // slash separated, relative to the project root
	Ext  string
}

// IsLocale reports whether the file is a locale JSON document.
func (f SourceFile) IsLocale() bool {
	return f.Ext == ".json"
}

// Scanner mines one project root. It reads all content through the run's
// cache and is safe for concurrent use by the passive signal passes.
type Scanner struct {
	root   string
	opts   Options
	cache  *cache.Cache
	logger *slog.Logger

	walkOnce sync.Once
	files    []SourceFile
	walkErr  error

	mu    sync.Mutex
	stats Stats
}

// NewScanner creates a scanner for projectRoot. The root is resolved through
// symlinks so escape checks compare real paths.
func NewScanner(projectRoot string, c *cache.Cache, opts Options) (*Scanner, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", projectRoot)
	}

	def := config.Default().Discovery
	if len(opts.SourceDirs) == 0 {
		opts.SourceDirs = def.SourceDirs
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = def.MaxDepth
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = def.MaxFiles
	}
	if opts.RegexIterationCap <= 0 {
		opts.RegexIterationCap = def.RegexIterationCap
	}
	if c == nil {
		c = cache.New(cache.DefaultConfig())
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{
		root:   resolved,
		opts:   opts,
		cache:  c,
		logger: logger,
		stats:  Stats{Matches: make(map[string]int)},
	}, nil
}

// Root returns the resolved project root.
func (s *Scanner) Root() string {
	return s.root
}

// Stats returns a snapshot of the scan counters.
func (s *Scanner) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.clone()
}

func (s *Scanner) count(fn func(st *Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Files walks the allow-listed source directories once and returns the
// selected files. Hitting the depth or file ceiling stops silently.
func (s *Scanner) Files(ctx context.Context) ([]SourceFile, error) {
	s.walkOnce.Do(func() {
		s.files, s.walkErr = s.walk(ctx)
	})
	return s.files, s.walkErr
}

func (s *Scanner) walk(ctx context.Context) ([]SourceFile, error) {
	var files []SourceFile
	seen := make(map[string]bool)
	limitHit := false

	for _, dir := range s.opts.SourceDirs {
		start := filepath.Join(s.root, filepath.FromSlash(dir))
		info, err := os.Lstat(start)
		if err != nil || !info.IsDir() {
			if err == nil && info.Mode()&fs.ModeSymlink != 0 {
				if !s.resolvesInside(start) {
					s.count(func(st *Stats) { st.SymlinksRefused++ })
					continue
				}
				// An in-root symlinked source dir is walked through its target.
				resolved, _ := filepath.EvalSymlinks(start)
				start = resolved
			} else {
				continue
			}
		}

		err = filepath.WalkDir(start, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // Skip entries we can't read
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			rel, err := filepath.Rel(s.root, path)
			if err != nil || strings.HasPrefix(rel, "..") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.Type()&fs.ModeSymlink != 0 {
				s.count(func(st *Stats) { st.SymlinksRefused++ })
				return nil
			}

			if d.IsDir() {
				if path != start && s.refuseDir(rel, d.Name()) {
					s.count(func(st *Stats) { st.DirsRefused++ })
					return filepath.SkipDir
				}
				if depth(rel) > s.opts.MaxDepth {
					s.count(func(st *Stats) { st.DepthLimitHits++ })
					s.logger.Debug("depth limit reached", "dir", rel, "maxDepth", s.opts.MaxDepth)
					return filepath.SkipDir
				}
				if seen[rel+"/"] {
					return filepath.SkipDir
				}
				seen[rel+"/"] = true
				s.count(func(st *Stats) { st.DirsScanned++ })
				return nil
			}

			if seen[rel] || s.excluded(rel) {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(rel))
			if !sourceExts[ext] && !(ext == ".json" && underLocaleDir(rel)) {
				return nil
			}
			// the ceiling is hit only when a further file is refused
			if len(files) >= s.opts.MaxFiles {
				limitHit = true
				s.count(func(st *Stats) { st.FileLimitHit = true })
				return fs.SkipAll
			}
			seen[rel] = true
			files = append(files, SourceFile{Path: path, Rel: rel, Ext: ext})
			return nil
		})
		if err != nil {
			return files, fmt.Errorf("walking %s: %w", dir, err)
		}
		if limitHit {
			break
		}
	}

	s.count(func(st *Stats) { st.FilesFound = len(files) })
	s.logger.Debug("walk complete", "root", s.root, "files", len(files))
	return files, nil
}

func (s *Scanner) refuseDir(rel, name string) bool {
	if strings.HasPrefix(name, ".") || refusedDirs[name] {
		return true
	}
	return s.excluded(rel)
}

func (s *Scanner) excluded(rel string) bool {
	for _, pattern := range s.opts.ExcludeGlobs {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if !strings.HasSuffix(pattern, "/**") {
			if ok, _ := doublestar.Match(pattern+"/**", rel); ok {
				return true
			}
		}
	}
	return false
}

// resolvesInside reports whether path, after resolving symlinks, stays
// inside the project root.
func (s *Scanner) resolvesInside(path string) bool {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(s.root, resolved)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// read returns file content through the cache, counting skips.
func (s *Scanner) read(f SourceFile) (string, bool) {
	content, ok := s.cache.Get(f.Path)
	if !ok {
		s.count(func(st *Stats) { st.FilesSkipped++ })
		s.logger.Debug("file skipped", "file", f.Rel)
		return "", false
	}
	s.count(func(st *Stats) { st.FilesRead++ })
	return content, true
}

func depth(rel string) int {
	if rel == "." || rel == "" {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func underLocaleDir(rel string) bool {
	parts := strings.Split(rel, "/")
	for _, p := range parts[:len(parts)-1] {
		if localeSegments[p] {
			return true
		}
	}
	return false
}
