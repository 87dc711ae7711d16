package discovery

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/steveyegge/llkb/internal/cache"
	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/mining"
)

// RunContext is the state of one pipeline run. It is built at the start of
// Run and discarded at the end, so nothing leaks between runs.
type RunContext struct {
	Config    *config.Config
	Cache     *cache.Cache
	Scanner   *mining.Scanner
	Logger    *slog.Logger
	StartedAt time.Time
}

func newRunContext(cfg *config.Config, projectRoot string, logger *slog.Logger, now time.Time) (*RunContext, error) {
	c := cache.New(cache.Config{
		MaxMemoryBytes:       cfg.CacheMaxMemoryBytes(),
		MaxFiles:             cfg.Cache.MaxFiles,
		MaxFileSize:          cfg.Discovery.MaxFileSizeBytes,
		EvictionBatchPercent: cfg.Cache.EvictionBatchPercent,
	})
	opts := mining.OptionsFromConfig(cfg.Discovery)
	opts.Logger = logger
	scanner, err := mining.NewScanner(projectRoot, c, opts)
	if err != nil {
		return nil, fmt.Errorf("creating scanner: %w", err)
	}
	return &RunContext{
		Config:    cfg,
		Cache:     c,
		Scanner:   scanner,
		Logger:    logger.With("project", scanner.Root()),
		StartedAt: now,
	}, nil
}

// Close releases the run's cached content.
func (rc *RunContext) Close() {
	rc.Cache.Clear()
}
