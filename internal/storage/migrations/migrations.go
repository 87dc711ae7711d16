// Package migrations upgrades persisted LLKB documents from older schema
// versions. Migrations operate on the decoded JSON tree so fields that no
// longer exist in the Go types can still be read and renamed.
package migrations

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Document names a migrated file by its role.
type Document string

const (
	Lessons    Document = "lessons"
	Components Document = "components"
	Analytics  Document = "analytics"
	Patterns   Document = "patterns"
	Profile    Document = "profile"
	Registry   Document = "registry"
)

var (
	// ErrUnsupportedVersion means the document is newer than this build or
	// older than the oldest migration.
	ErrUnsupportedVersion = errors.New("unsupported document version")
	// ErrMissingVersion means the document has no version field.
	ErrMissingVersion = errors.New("document has no version")
)

// Migration upgrades a document tree from one version to the next.
type Migration struct {
	From        string
	To          string
	Description string
	Up          func(doc Document, tree map[string]any) error
}

// Manager holds the migration chain.
type Manager struct {
	current    string
	oldest     string
	migrations []Migration
}

// NewManager creates a manager for documents at current, accepting versions
// back to oldest.
func NewManager(current, oldest string) *Manager {
	return &Manager{current: current, oldest: oldest}
}

// Register adds a migration to the manager
func (m *Manager) Register(migration Migration) {
	m.migrations = append(m.migrations, migration)
}

// sortMigrations sorts migrations by source version
func (m *Manager) sortMigrations() {
	sort.Slice(m.migrations, func(i, j int) bool {
		return semver.Compare(v(m.migrations[i].From), v(m.migrations[j].From)) < 0
	})
}

// Current returns the version documents are migrated to.
func (m *Manager) Current() string { return m.current }

// Check reports whether a document at version needs migrating. Versions
// outside [oldest, current], or older versions no migration starts from,
// fail with ErrUnsupportedVersion.
func (m *Manager) Check(version string) (bool, error) {
	if version == "" {
		return false, ErrMissingVersion
	}
	if !semver.IsValid(v(version)) {
		return false, fmt.Errorf("%w: %q is not a version", ErrUnsupportedVersion, version)
	}
	if semver.Compare(v(version), v(m.current)) > 0 {
		return false, fmt.Errorf("%w: %s is newer than %s", ErrUnsupportedVersion, version, m.current)
	}
	if semver.Compare(v(version), v(m.oldest)) < 0 {
		return false, fmt.Errorf("%w: %s is older than %s", ErrUnsupportedVersion, version, m.oldest)
	}
	if semver.Compare(v(version), v(m.current)) == 0 {
		return false, nil
	}
	if !m.startsStep(version) {
		return false, fmt.Errorf("%w: no migration starts at %s", ErrUnsupportedVersion, version)
	}
	return true, nil
}

func (m *Manager) startsStep(version string) bool {
	for _, mig := range m.migrations {
		if semver.Compare(v(version), v(mig.From)) == 0 {
			return true
		}
	}
	return false
}

// Version extracts the version field from raw document JSON.
func Version(data []byte) (string, error) {
	var head struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	return head.Version, nil
}

// Apply migrates raw document JSON to the current version. It returns the
// migrated JSON and the descriptions of applied steps; data is returned
// unchanged when already current.
func (m *Manager) Apply(doc Document, data []byte) ([]byte, []string, error) {
	version, err := Version(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read version: %w", err)
	}
	needed, err := m.Check(version)
	if err != nil {
		return nil, nil, err
	}
	if !needed {
		return data, nil, nil
	}

	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, nil, fmt.Errorf("failed to decode document: %w", err)
	}

	m.sortMigrations()
	var applied []string
	for _, mig := range m.migrations {
		if semver.Compare(v(version), v(mig.From)) != 0 {
			continue
		}
		if err := mig.Up(doc, tree); err != nil {
			return nil, applied, fmt.Errorf("migration %s -> %s failed: %w", mig.From, mig.To, err)
		}
		tree["version"] = mig.To
		version = mig.To
		applied = append(applied, fmt.Sprintf("%s -> %s: %s", mig.From, mig.To, mig.Description))
	}
	if semver.Compare(v(version), v(m.current)) != 0 {
		return nil, applied, fmt.Errorf("no migration path from %s to %s", version, m.current)
	}

	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, applied, fmt.Errorf("failed to encode migrated document: %w", err)
	}
	return out, applied, nil
}

func v(version string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	return "v" + version
}
