package health

import (
	"context"
	"time"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/storage"
)

// Status is the outcome of a check, ordered from best to worst.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Worse returns the more severe of two statuses.
func Worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Checker examines one aspect of a knowledge store.
type Checker interface {
	// Name returns the unique identifier for this check.
	Name() string

	// Check inspects the target and reports what it found. Problems are
	// reported in the result, never as a Go error.
	Check(ctx context.Context, target *Target) CheckResult
}

// Target is what checks run against.
type Target struct {
	Root   string
	Config *config.Config

	// ConfigErr is set when config.yml exists but could not be loaded;
	// Config then holds the defaults.
	ConfigErr error

	Store *storage.Store
	Now   time.Time
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message"`

	// Evidence holds the numbers the status was derived from
	Evidence map[string]any `json:"evidence,omitempty"`
}

// Report is the outcome of a full health check.
type Report struct {
	Root      string        `json:"root"`
	Status    Status        `json:"status"`
	CheckedAt time.Time     `json:"checkedAt"`
	Checks    []CheckResult `json:"checks"`
}

// Failed returns the checks that were not healthy.
func (r *Report) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Status != StatusHealthy {
			out = append(out, c)
		}
	}
	return out
}
