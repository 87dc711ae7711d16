// Package watch re-triggers discovery when project sources change. It
// watches the allow-listed source directories recursively and coalesces
// bursts of file system events into a single callback.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when New is given a non-positive debounce.
const DefaultDebounce = 500 * time.Millisecond

// ChangeFunc receives the root-relative, slash-separated paths that changed
// within one debounce window, sorted.
type ChangeFunc func(ctx context.Context, changed []string)

// Watcher watches source directories under a project root.
type Watcher struct {
	root     string
	dirs     []string
	debounce time.Duration
	onChange ChangeFunc
	excludes []string
	logger   *slog.Logger

	fsw *fsnotify.Watcher
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithExcludes ignores paths matching any of the doublestar globs, matched
// against the root-relative path.
func WithExcludes(globs []string) Option {
	return func(w *Watcher) { w.excludes = globs }
}

// New starts watching dirs (relative to root). Directories that do not exist
// are skipped; at least one must exist.
func New(root string, dirs []string, debounce time.Duration, onChange ChangeFunc, opts ...Option) (*Watcher, error) {
	if onChange == nil {
		return nil, errors.New("watch: onChange is required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	w := &Watcher{
		root:     abs,
		dirs:     dirs,
		debounce: debounce,
		onChange: onChange,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.fsw, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	watched := 0
	for _, dir := range dirs {
		path := filepath.Join(abs, filepath.FromSlash(dir))
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			w.logger.Debug("watch dir skipped", "dir", dir)
			continue
		}
		n, err := w.addTree(path)
		if err != nil {
			w.fsw.Close()
			return nil, err
		}
		watched += n
	}
	if watched == 0 {
		w.fsw.Close()
		return nil, fmt.Errorf("watch: none of %v exist under %s", dirs, abs)
	}
	w.logger.Info("watching sources", "root", abs, "directories", watched)
	return w, nil
}

// addTree watches path and every non-ignored directory below it.
func (w *Watcher) addTree(path string) (int, error) {
	n := 0
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish between the event and the walk.
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && w.ignored(p) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		n++
		return nil
	})
	return n, err
}

// ignored reports whether a path is hidden or excluded.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") || part == "node_modules" {
			return true
		}
	}
	for _, glob := range w.excludes {
		if ok, _ := doublestar.Match(glob, rel); ok {
			return true
		}
	}
	return false
}

// Run delivers coalesced changes until ctx is done, then closes the
// watcher. The callback runs on Run's goroutine; events arriving meanwhile
// are queued and form the next batch.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if _, err := w.addTree(event.Name); err != nil {
						w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
					}
				}
			}
			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil {
				continue
			}
			pending[filepath.ToSlash(rel)] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			w.logger.Debug("sources changed", "files", len(changed))
			w.onChange(ctx, changed)
		}
	}
}

// Close stops watching without waiting for Run.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !w.ignored(event.Name)
}
