package discovery

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/llkb/internal/cache"
	"github.com/steveyegge/llkb/internal/mining"
	"github.com/steveyegge/llkb/internal/quality"
	"github.com/steveyegge/llkb/internal/types"
)

// PipelineResult is the structured outcome of a discovery run.
type PipelineResult struct {
	Success  bool                      `json:"success"`
	Patterns []types.DiscoveredPattern `json:"patterns"`
	Profile  *types.AppProfile         `json:"profile"`

	// Warnings are stage failures the run continued past
	Warnings []string `json:"warnings"`

	// Errors are failures that made the run unsuccessful
	Errors []string `json:"errors"`

	Stats Stats `json:"stats"`
}

// Stats aggregates counts and timings of a run.
type Stats struct {
	BySource      map[string]int `json:"bySource"`
	BeforeQuality int            `json:"beforeQuality"`
	AfterQuality  int            `json:"afterQuality"`
	Quality       quality.Report `json:"quality"`
	Mining        mining.Stats   `json:"mining"`
	Cache         cache.Stats    `json:"cache"`
	Duration      time.Duration  `json:"duration"`
	Stages        []StageTiming  `json:"stages"`
}

// StageTiming is the wall time of one pipeline stage.
type StageTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

func (r *PipelineResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *PipelineResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Success = false
}

// Summary returns a human-readable summary of the run.
func (r *PipelineResult) Summary() string {
	var b strings.Builder
	status := "succeeded"
	if !r.Success {
		status = "failed"
	}
	fmt.Fprintf(&b, "Discovery %s in %v\n", status, r.Stats.Duration.Round(time.Millisecond))
	if r.Profile != nil {
		frameworks := append(append([]string(nil), r.Profile.Frameworks...), r.Profile.UILibraries...)
		if len(frameworks) == 0 {
			frameworks = []string{"none"}
		}
		fmt.Fprintf(&b, "Frameworks: %s\n", strings.Join(frameworks, ", "))
		fmt.Fprintf(&b, "Entities: %d, routes: %d\n", len(r.Profile.Entities), len(r.Profile.Routes))
	}

	sources := make([]string, 0, len(r.Stats.BySource))
	for s := range r.Stats.BySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	parts := make([]string, 0, len(sources))
	for _, s := range sources {
		parts = append(parts, fmt.Sprintf("%s=%d", s, r.Stats.BySource[s]))
	}
	fmt.Fprintf(&b, "Patterns generated: %d (%s)\n", r.Stats.BeforeQuality, strings.Join(parts, " "))
	fmt.Fprintf(&b, "Patterns kept: %d\n", r.Stats.AfterQuality)
	fmt.Fprintf(&b, "Quality: %s\n", r.Stats.Quality)
	fmt.Fprintf(&b, "Mining: %s\n", r.Stats.Mining)
	fmt.Fprintf(&b, "Cache: %s", r.Stats.Cache)
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\nwarning: %s", w)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "\nerror: %s", e)
	}
	return b.String()
}
