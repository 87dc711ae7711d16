package health

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/history"
	"github.com/steveyegge/llkb/internal/storage"
)

// ErrNoStore means the store root does not exist.
var ErrNoStore = errors.New("knowledge store not found")

type options struct {
	now      func() time.Time
	registry *Registry
}

// Option configures Check and Status.
type Option func(*options)

// WithClock sets the clock used for staleness and retention.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRegistry runs the given checks instead of the built-in set.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

func newOptions(opts []Option) *options {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	return o
}

// Open builds a check target for root. A config.yml that fails to load is
// recorded on the target rather than returned, so the config check can
// report it.
func Open(root string, opts ...Option) (*Target, error) {
	o := newOptions(opts)
	info, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoStore, root)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoStore, root)
	}

	t := &Target{Root: root, Now: o.now()}
	t.Config, t.ConfigErr = config.LoadOptional(root)
	if t.ConfigErr != nil {
		t.Config = config.Default()
	}
	t.Store, err = storage.Open(root, t.Config.Lock, storage.WithClock(o.now))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Check runs every registered check against the store at root.
func Check(ctx context.Context, root string, opts ...Option) (*Report, error) {
	o := newOptions(opts)
	t, err := Open(root, opts...)
	if err != nil {
		return nil, err
	}
	return o.registry.Run(ctx, t)
}

// StatusReport is the human-facing summary of a store.
type StatusReport struct {
	storage.Snapshot

	Enabled     bool       `json:"enabled"`
	HistoryDays int        `json:"historyDays"`
	OldestEvent *time.Time `json:"oldestEvent,omitempty"`
	StaleLocks  int        `json:"staleLocks"`
}

// Status counts the store contents and reports the last discovery time.
func Status(ctx context.Context, root string, opts ...Option) (*StatusReport, error) {
	t, err := Open(root, opts...)
	if err != nil {
		return nil, err
	}
	if t.ConfigErr != nil {
		return nil, t.ConfigErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap, err := t.Store.Snapshot()
	if err != nil {
		return nil, err
	}
	report := &StatusReport{Snapshot: *snap, Enabled: t.Config.Enabled}

	log := history.New(t.Store.HistoryPath())
	days, err := log.Days()
	if err != nil {
		return nil, err
	}
	report.HistoryDays = len(days)
	if len(days) > 0 {
		oldest := days[0]
		report.OldestEvent = &oldest
	}

	locks, err := t.Store.Locks()
	if err != nil {
		return nil, err
	}
	for _, l := range locks {
		if l.Stale {
			report.StaleLocks++
		}
	}
	return report, nil
}
