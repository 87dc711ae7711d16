package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/steveyegge/llkb/internal/analytics"
	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/history"
	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/storage/migrations"
	"github.com/steveyegge/llkb/internal/types"
)

// LowConfidenceShare is the share of low-confidence active lessons above
// which the store is reported as degraded.
const LowConfidenceShare = 0.5

// configCheck reports whether config.yml parses and validates.
type configCheck struct{}

func (configCheck) Name() string { return "config" }

func (configCheck) Check(_ context.Context, t *Target) CheckResult {
	if t.ConfigErr != nil {
		return CheckResult{Status: StatusUnhealthy, Message: t.ConfigErr.Error()}
	}
	if _, err := os.Stat(config.Path(t.Root)); errors.Is(err, os.ErrNotExist) {
		return CheckResult{Status: StatusHealthy, Message: "no config.yml, using defaults"}
	}
	if !t.Config.Enabled {
		return CheckResult{Status: StatusDegraded, Message: "knowledge base is disabled"}
	}
	return CheckResult{Status: StatusHealthy, Message: "config.yml valid"}
}

// documentsCheck reports whether each document loads and is at the current
// version. Documents that still need a migration are degraded; documents
// that cannot be read or migrated are unhealthy.
type documentsCheck struct{}

func (documentsCheck) Name() string { return "documents" }

func (documentsCheck) Check(_ context.Context, t *Target) CheckResult {
	manager := migrations.Default()
	loaders := map[migrations.Document]func() error{
		migrations.Lessons:    func() error { _, err := t.Store.LoadLessons(); return err },
		migrations.Components: func() error { _, err := t.Store.LoadComponents(); return err },
		migrations.Analytics:  func() error { _, err := t.Store.LoadAnalytics(); return err },
		migrations.Patterns:   func() error { _, err := t.Store.LoadPatterns(); return err },
		migrations.Profile:    func() error { _, err := t.Store.LoadProfile(); return err },
		migrations.Registry:   func() error { _, err := t.Store.LoadRegistry(); return err },
	}

	status := StatusHealthy
	var problems []string
	versions := make(map[string]any)
	for _, doc := range storage.Documents() {
		data, err := os.ReadFile(t.Store.Path(doc))
		if errors.Is(err, os.ErrNotExist) {
			versions[string(doc)] = "absent"
			continue
		}
		if err != nil {
			status = StatusUnhealthy
			problems = append(problems, fmt.Sprintf("%s: %v", doc, err))
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			status = StatusUnhealthy
			problems = append(problems, fmt.Sprintf("%s: corrupt: %v", doc, err))
			continue
		}
		versions[string(doc)] = env.Version

		needs, err := manager.Check(env.Version)
		if err != nil {
			status = StatusUnhealthy
			problems = append(problems, fmt.Sprintf("%s: %v", doc, err))
			continue
		}
		if err := loaders[doc](); err != nil {
			status = StatusUnhealthy
			problems = append(problems, fmt.Sprintf("%s: %v", doc, err))
			continue
		}
		if needs {
			status = Worse(status, StatusDegraded)
			problems = append(problems, fmt.Sprintf("%s: version %s needs migration to %s", doc, env.Version, manager.Current()))
		}
	}

	if len(problems) == 0 {
		return CheckResult{Status: StatusHealthy, Message: "all documents at " + manager.Current(), Evidence: versions}
	}
	return CheckResult{Status: status, Message: strings.Join(problems, "; "), Evidence: versions}
}

// locksCheck reports lock files left behind by crashed writers.
type locksCheck struct{}

func (locksCheck) Name() string { return "locks" }

func (locksCheck) Check(_ context.Context, t *Target) CheckResult {
	locks, err := t.Store.Locks()
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("listing locks: %v", err)}
	}
	var stale []string
	for _, l := range locks {
		if l.Stale {
			stale = append(stale, fmt.Sprintf("%s (%s old)", l.Path, l.Age.Round(time.Second)))
		}
	}
	evidence := map[string]any{"held": len(locks), "stale": len(stale)}
	if len(stale) > 0 {
		return CheckResult{
			Status:   StatusDegraded,
			Message:  "stale locks: " + strings.Join(stale, ", "),
			Evidence: evidence,
		}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d locks held, none stale", len(locks)), Evidence: evidence}
}

// historyCheck reports history days older than the retention window.
type historyCheck struct{}

func (historyCheck) Name() string { return "history" }

func (historyCheck) Check(_ context.Context, t *Target) CheckResult {
	days, err := history.New(t.Store.HistoryPath()).Days()
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("reading history: %v", err)}
	}
	if len(days) == 0 {
		return CheckResult{Status: StatusHealthy, Message: "no history yet"}
	}

	retention := t.Config.Retention.HistoryDays
	now := t.Now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	cutoff := today.AddDate(0, 0, -retention)
	expired := 0
	for _, d := range days {
		if d.Before(cutoff) {
			expired++
		}
	}
	evidence := map[string]any{
		"days":          len(days),
		"oldest":        days[0].Format(time.DateOnly),
		"retentionDays": retention,
		"expired":       expired,
	}
	if expired > 0 {
		return CheckResult{
			Status:   StatusDegraded,
			Message:  fmt.Sprintf("%d history days older than %d-day retention; run prune", expired, retention),
			Evidence: evidence,
		}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d history days within retention", len(days)), Evidence: evidence}
}

// confidenceCheck reports a store dominated by low-confidence lessons.
type confidenceCheck struct{}

func (confidenceCheck) Name() string { return "confidence" }

func (confidenceCheck) Check(_ context.Context, t *Target) CheckResult {
	doc, err := t.Store.LoadLessons()
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("loading lessons: %v", err)}
	}
	active := doc.Active()
	if len(active) == 0 {
		return CheckResult{Status: StatusHealthy, Message: "no active lessons"}
	}
	low := 0
	for _, l := range active {
		if l.Metrics.Confidence < analytics.LowConfidence {
			low++
		}
	}
	share := float64(low) / float64(len(active))
	evidence := map[string]any{"active": len(active), "lowConfidence": low, "share": share}
	msg := fmt.Sprintf("%d of %d active lessons below %.1f confidence", low, len(active), analytics.LowConfidence)
	if share > LowConfidenceShare {
		return CheckResult{Status: StatusDegraded, Message: msg, Evidence: evidence}
	}
	return CheckResult{Status: StatusHealthy, Message: msg, Evidence: evidence}
}
