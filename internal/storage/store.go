// Package storage is the LLKB knowledge store: versioned JSON documents under
// a store root, updated through a lock-protected read-modify-write cycle and
// persisted with atomic renames.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/storage/migrations"
	"github.com/steveyegge/llkb/internal/types"
)

// File names inside the store root.
const (
	LessonsFile    = "lessons.json"
	ComponentsFile = "components.json"
	AnalyticsFile  = "analytics.json"
	PatternsFile   = "discovered-patterns.json"
	ProfileFile    = "discovered-profile.json"
	RegistryFile   = "registry.json"
	PatternBankDir = "patterns"
	HistoryDir     = "history"

	// BackupSuffix is appended to a document path for its pre-migration copy.
	BackupSuffix = ".pre-migration.bak"
)

var fileNames = map[migrations.Document]string{
	migrations.Lessons:    LessonsFile,
	migrations.Components: ComponentsFile,
	migrations.Analytics:  AnalyticsFile,
	migrations.Patterns:   PatternsFile,
	migrations.Profile:    ProfileFile,
	migrations.Registry:   RegistryFile,
}

// Documents lists every versioned document kind in a stable order.
func Documents() []migrations.Document {
	return []migrations.Document{
		migrations.Lessons, migrations.Components, migrations.Analytics,
		migrations.Patterns, migrations.Profile, migrations.Registry,
	}
}

// Store is a knowledge store rooted at a directory.
type Store struct {
	root       string
	lock       LockOptions
	migrations *migrations.Manager
	logger     *slog.Logger
	now        func() time.Time
	onLockWait func(doc string, waited time.Duration)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the clock used for lastUpdated stamps and lock staleness.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLockObserver is called with the wait time of every acquired lock.
func WithLockObserver(fn func(doc string, waited time.Duration)) Option {
	return func(s *Store) { s.onLockWait = fn }
}

// WithHolder names this process in lock files.
func WithHolder(holder string) Option {
	return func(s *Store) { s.lock.Holder = holder }
}

// Open prepares the store root and returns a Store.
func Open(root string, lock config.LockConfig, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root %s: %w", root, err)
	}
	s := &Store{
		root: root,
		lock: LockOptions{
			StaleAfter:    lock.StaleAfter,
			RetryInterval: lock.RetryInterval,
			MaxWait:       lock.MaxWait,
		},
		migrations: migrations.Default(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lock.Logger = s.logger
	s.lock.Now = s.now
	return s, nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// Path returns the file path of a document.
func (s *Store) Path(doc migrations.Document) string {
	return filepath.Join(s.root, fileNames[doc])
}

// HistoryPath returns the history directory.
func (s *Store) HistoryPath() string {
	return filepath.Join(s.root, HistoryDir)
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.now() }

// Logger returns the store logger.
func (s *Store) Logger() *slog.Logger { return s.logger }

type document interface {
	Header() *types.Envelope
}

func newLessons() *types.LessonsDocument {
	return &types.LessonsDocument{Envelope: fresh(), Lessons: []types.Lesson{}}
}

func newComponents() *types.ComponentsDocument {
	return &types.ComponentsDocument{
		Envelope:             fresh(),
		Components:           []types.Component{},
		ComponentsByCategory: map[string][]string{},
		ComponentsByScope:    map[string][]string{},
	}
}

func newAnalytics() *types.AnalyticsDocument {
	return &types.AnalyticsDocument{Envelope: fresh()}
}

func newPatterns() *types.PatternsDocument {
	return &types.PatternsDocument{Envelope: fresh(), Patterns: []types.DiscoveredPattern{}}
}

func newProfile() *types.AppProfile {
	return &types.AppProfile{Envelope: fresh()}
}

func newRegistry() *types.RegistryDocument {
	return &types.RegistryDocument{Envelope: fresh(), Modules: []types.Module{}}
}

func fresh() types.Envelope {
	return types.Envelope{Version: types.CurrentVersion}
}

// LoadLessons reads lessons.json without taking the lock. A missing file
// yields an empty document.
func (s *Store) LoadLessons() (*types.LessonsDocument, error) {
	return load(s, migrations.Lessons, newLessons)
}

// LoadComponents reads components.json without taking the lock.
func (s *Store) LoadComponents() (*types.ComponentsDocument, error) {
	return load(s, migrations.Components, newComponents)
}

// LoadAnalytics reads analytics.json without taking the lock.
func (s *Store) LoadAnalytics() (*types.AnalyticsDocument, error) {
	return load(s, migrations.Analytics, newAnalytics)
}

// LoadPatterns reads discovered-patterns.json without taking the lock.
func (s *Store) LoadPatterns() (*types.PatternsDocument, error) {
	return load(s, migrations.Patterns, newPatterns)
}

// LoadProfile reads discovered-profile.json without taking the lock.
func (s *Store) LoadProfile() (*types.AppProfile, error) {
	return load(s, migrations.Profile, newProfile)
}

// LoadRegistry reads registry.json without taking the lock.
func (s *Store) LoadRegistry() (*types.RegistryDocument, error) {
	return load(s, migrations.Registry, newRegistry)
}

// UpdateLessons applies fn to lessons.json under the document lock.
func (s *Store) UpdateLessons(ctx context.Context, fn func(*types.LessonsDocument) error) error {
	return update(ctx, s, migrations.Lessons, newLessons, fn)
}

// UpdateComponents applies fn to components.json under the document lock.
// The category and scope indexes are rebuilt after fn.
func (s *Store) UpdateComponents(ctx context.Context, fn func(*types.ComponentsDocument) error) error {
	return update(ctx, s, migrations.Components, newComponents, func(d *types.ComponentsDocument) error {
		if err := fn(d); err != nil {
			return err
		}
		d.Reindex()
		return nil
	})
}

// UpdateAnalytics applies fn to analytics.json under the document lock.
func (s *Store) UpdateAnalytics(ctx context.Context, fn func(*types.AnalyticsDocument) error) error {
	return update(ctx, s, migrations.Analytics, newAnalytics, fn)
}

// UpdatePatterns applies fn to discovered-patterns.json under the document lock.
func (s *Store) UpdatePatterns(ctx context.Context, fn func(*types.PatternsDocument) error) error {
	return update(ctx, s, migrations.Patterns, newPatterns, fn)
}

// UpdateProfile applies fn to discovered-profile.json under the document lock.
func (s *Store) UpdateProfile(ctx context.Context, fn func(*types.AppProfile) error) error {
	return update(ctx, s, migrations.Profile, newProfile, fn)
}

// UpdateRegistry applies fn to registry.json under the document lock.
func (s *Store) UpdateRegistry(ctx context.Context, fn func(*types.RegistryDocument) error) error {
	return update(ctx, s, migrations.Registry, newRegistry, fn)
}

// load reads a document, migrating it in memory when it is older than the
// current version. Nothing is written.
func load[D document](s *Store, kind migrations.Document, empty func() D) (D, error) {
	path := s.Path(kind)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return empty(), nil
	}
	if err != nil {
		var zero D
		return zero, newError(CodeReadFailed, "load", path, err)
	}
	migrated, _, err := s.migrate(kind, path, data)
	if err != nil {
		var zero D
		return zero, err
	}
	return decode(path, migrated, empty)
}

func decode[D document](path string, data []byte, empty func() D) (D, error) {
	doc := empty()
	if err := json.Unmarshal(data, doc); err != nil {
		var zero D
		return zero, newError(CodeCorruptDocument, "load", path, err)
	}
	return doc, nil
}

// migrate runs the migration chain over raw document bytes and maps
// failures onto store error codes.
func (s *Store) migrate(kind migrations.Document, path string, data []byte) ([]byte, []string, error) {
	if _, err := migrations.Version(data); err != nil {
		return nil, nil, newError(CodeCorruptDocument, "migrate", path, err)
	}
	out, applied, err := s.migrations.Apply(kind, data)
	switch {
	case err == nil:
		return out, applied, nil
	case errors.Is(err, migrations.ErrUnsupportedVersion), errors.Is(err, migrations.ErrMissingVersion):
		return nil, nil, newError(CodeUnsupportedVersion, "migrate", path, err)
	default:
		return nil, nil, newError(CodeMigrationFailed, "migrate", path, err)
	}
}

// migrateFile upgrades the document on disk. The original is copied to
// <path>.pre-migration.bak first and restored if the migrated document cannot
// be written or decoded. The caller must hold the document lock.
func migrateFile[D document](s *Store, kind migrations.Document, empty func() D) ([]string, error) {
	path := s.Path(kind)
	original, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, newError(CodeReadFailed, "migrate", path, err)
	}
	migrated, applied, err := s.migrate(kind, path, original)
	if err != nil || len(applied) == 0 {
		return nil, err
	}

	backup := path + BackupSuffix
	if err := WriteFileAtomic(backup, original, 0644); err != nil {
		return nil, newError(CodeMigrationFailed, "migrate", path, fmt.Errorf("failed to back up: %w", err))
	}
	restore := func(cause error) error {
		if err := WriteFileAtomic(path, original, 0644); err != nil {
			s.logger.Error("failed to restore document from backup", "path", path, "backup", backup, "error", err)
		}
		return newError(CodeMigrationFailed, "migrate", path, cause)
	}

	doc, err := decode(path, migrated, empty)
	if err != nil {
		return nil, restore(err)
	}
	h := doc.Header()
	h.Version = types.CurrentVersion
	h.LastUpdated = s.now().UTC()
	if err := WriteJSON(path, doc); err != nil {
		return nil, restore(err)
	}

	s.logger.Warn("migrated document", "path", path, "steps", applied, "backup", backup)
	return applied, nil
}

// update runs the locked read-modify-write cycle for one document.
func update[D document](ctx context.Context, s *Store, kind migrations.Document, empty func() D, fn func(D) error) error {
	path := s.Path(kind)
	lock, err := AcquireLock(ctx, path, s.lock)
	if err != nil {
		return err
	}
	if s.onLockWait != nil {
		s.onLockWait(string(kind), lock.Waited)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			s.logger.Warn("failed to release lock", "path", path, "error", err)
		}
	}()

	if _, err := migrateFile(s, kind, empty); err != nil {
		return err
	}
	doc, err := load(s, kind, empty)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return newError(CodeUpdateRejected, "update", path, err)
	}

	h := doc.Header()
	h.Version = types.CurrentVersion
	h.LastUpdated = s.now().UTC()
	return WriteJSON(path, doc)
}

// Migrate upgrades every document on disk to the current version, taking
// each document's lock in turn. It returns the applied steps per document.
func (s *Store) Migrate(ctx context.Context) (map[string][]string, error) {
	report := make(map[string][]string)
	run := func(kind migrations.Document, fn func() ([]string, error)) error {
		path := s.Path(kind)
		lock, err := AcquireLock(ctx, path, s.lock)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()
		applied, err := fn()
		if err != nil {
			return err
		}
		if len(applied) > 0 {
			report[string(kind)] = applied
		}
		return nil
	}

	steps := []struct {
		kind migrations.Document
		fn   func() ([]string, error)
	}{
		{migrations.Lessons, func() ([]string, error) { return migrateFile(s, migrations.Lessons, newLessons) }},
		{migrations.Components, func() ([]string, error) { return migrateFile(s, migrations.Components, newComponents) }},
		{migrations.Analytics, func() ([]string, error) { return migrateFile(s, migrations.Analytics, newAnalytics) }},
		{migrations.Patterns, func() ([]string, error) { return migrateFile(s, migrations.Patterns, newPatterns) }},
		{migrations.Profile, func() ([]string, error) { return migrateFile(s, migrations.Profile, newProfile) }},
		{migrations.Registry, func() ([]string, error) { return migrateFile(s, migrations.Registry, newRegistry) }},
	}
	for _, step := range steps {
		if err := run(step.kind, step.fn); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Snapshot summarizes the store contents.
type Snapshot struct {
	Root             string    `json:"root"`
	Lessons          int       `json:"lessons"`
	ActiveLessons    int       `json:"activeLessons"`
	Components       int       `json:"components"`
	ActiveComponents int       `json:"activeComponents"`
	Patterns         int       `json:"patterns"`
	Modules          int       `json:"modules"`
	AvgConfidence    float64   `json:"avgConfidence"`
	LastDiscovery    time.Time `json:"lastDiscovery,omitempty"`
	Frameworks       []string  `json:"frameworks"`
}

// Snapshot reads every document and counts its contents.
func (s *Store) Snapshot() (*Snapshot, error) {
	lessons, err := s.LoadLessons()
	if err != nil {
		return nil, err
	}
	components, err := s.LoadComponents()
	if err != nil {
		return nil, err
	}
	patterns, err := s.LoadPatterns()
	if err != nil {
		return nil, err
	}
	registry, err := s.LoadRegistry()
	if err != nil {
		return nil, err
	}
	profile, err := s.LoadProfile()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Root:             s.root,
		Lessons:          len(lessons.Lessons),
		ActiveLessons:    len(lessons.Active()),
		Components:       len(components.Components),
		ActiveComponents: len(components.Active()),
		Patterns:         len(patterns.Patterns),
		Modules:          len(registry.Modules),
		LastDiscovery:    patterns.Metadata.GeneratedAt,
		Frameworks:       append(append([]string(nil), profile.Frameworks...), profile.UILibraries...),
	}
	active := lessons.Active()
	if len(active) > 0 {
		var sum float64
		for _, l := range active {
			sum += l.Metrics.Confidence
		}
		snap.AvgConfidence = sum / float64(len(active))
	}
	return snap, nil
}

var bankNameUnsafe = regexp.MustCompile(`[^a-z0-9-]+`)

// BankName turns a pattern category into a bank file stem.
func BankName(category string) string {
	name := strings.Trim(bankNameUnsafe.ReplaceAllString(strings.ToLower(category), "-"), "-")
	if name == "" {
		return "general"
	}
	return name
}

// WritePatternBanks writes patterns/<category>.json for every category in
// patterns and removes banks for categories no longer present. It returns the
// written paths.
func (s *Store) WritePatternBanks(ctx context.Context, patterns []types.DiscoveredPattern) ([]string, error) {
	dir := filepath.Join(s.root, PatternBankDir)
	byCategory := make(map[string][]types.DiscoveredPattern)
	for _, p := range patterns {
		name := BankName(p.Category)
		byCategory[name] = append(byCategory[name], p)
	}

	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	now := s.now().UTC()
	written := make([]string, 0, len(names))
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		bank := byCategory[name]
		sort.SliceStable(bank, func(i, j int) bool {
			if bank[i].Confidence != bank[j].Confidence {
				return bank[i].Confidence > bank[j].Confidence
			}
			return bank[i].ID < bank[j].ID
		})
		path := filepath.Join(dir, name+".json")
		doc := types.PatternBank{
			Envelope: types.Envelope{Version: types.CurrentVersion, LastUpdated: now},
			Category: name,
			Patterns: bank,
		}
		if err := WriteJSON(path, doc); err != nil {
			return written, err
		}
		keep[path] = true
		written = append(written, path)
	}

	existing, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return written, fmt.Errorf("failed to list pattern banks: %w", err)
	}
	for _, path := range existing {
		if !keep[path] {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to remove stale pattern bank", "path", path, "error", err)
			}
		}
	}
	return written, nil
}

// LockStatus describes a lock file found in the store.
type LockStatus struct {
	Path  string        `json:"path"`
	Info  *LockInfo     `json:"info,omitempty"`
	Age   time.Duration `json:"age"`
	Stale bool          `json:"stale"`
}

// Locks lists lock files in the store root.
func (s *Store) Locks() ([]LockStatus, error) {
	paths, err := filepath.Glob(filepath.Join(s.root, "*.lock"))
	if err != nil {
		return nil, err
	}
	opts := s.lock.withDefaults()
	out := make([]LockStatus, 0, len(paths))
	for _, path := range paths {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		status := LockStatus{Path: path, Age: s.now().Sub(st.ModTime())}
		status.Stale = status.Age > opts.StaleAfter
		if data, err := os.ReadFile(path); err == nil {
			var info LockInfo
			if json.Unmarshal(data, &info) == nil {
				status.Info = &info
			}
		}
		out = append(out, status)
	}
	return out, nil
}
