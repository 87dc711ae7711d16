// Package discovery runs the discovery pipeline: mining, pattern generation,
// quality control and persistence into the knowledge store.
package discovery

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"lukechampine.com/blake3"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/history"
	"github.com/steveyegge/llkb/internal/metrics"
	"github.com/steveyegge/llkb/internal/mining"
	"github.com/steveyegge/llkb/internal/patterns"
	"github.com/steveyegge/llkb/internal/quality"
	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/types"
)

// Stage names used in timings and warnings.
const (
	StageMining     = "mining"
	StageFrameworks = "frameworks"
	StageSignals    = "signals"
	StageGenerate   = "generate"
	StageQuality    = "quality"
	StagePersist    = "persist"
)

// Options tunes a single run.
type Options struct {
	// Frameworks overrides detection when non-empty
	Frameworks []string

	// SkipSignals disables the i18n, analytics and feature flag passes
	SkipSignals bool

	// DryRun computes everything but writes nothing
	DryRun bool

	// SignalTiers overrides the source-derived tier for specific pattern ids
	SignalTiers map[string]types.SignalTier
}

// Orchestrator coordinates discovery runs. It holds no per-run state and
// is safe for concurrent Runs against different roots.
type Orchestrator struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records run, stage, cache and lock metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock sets the clock used for timestamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates a new discovery orchestrator.
func NewOrchestrator(cfg *config.Config, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &Orchestrator{cfg: cfg, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes the pipeline for projectRoot and persists into storeRoot.
// Mining and generation failures become warnings; a persistence failure
// fails the run and is returned as the error as well.
func (o *Orchestrator) Run(ctx context.Context, projectRoot, storeRoot string, opts Options) (*PipelineResult, error) {
	started := o.now()
	result := &PipelineResult{
		Success:  true,
		Warnings: []string{},
		Errors:   []string{},
		Stats:    Stats{BySource: map[string]int{}},
	}
	defer func() {
		result.Stats.Duration = o.now().Sub(started)
		o.metrics.ObserveRun(result.Success)
	}()

	rc, err := newRunContext(o.cfg, projectRoot, o.logger, started)
	if err != nil {
		result.fail("%v", err)
		return result, err
	}
	defer func() {
		result.Stats.Cache = rc.Cache.Stats()
		o.metrics.ObserveCache(result.Stats.Cache)
		rc.Close()
	}()
	log := rc.Logger
	log.Info("discovery started", "store", storeRoot, "dryRun", opts.DryRun)

	var mined *mining.Result
	o.stage(result, StageMining, func() {
		mined, err = rc.Scanner.Scan(ctx)
		if err != nil {
			result.warn("%s: %v", StageMining, err)
			log.Warn("structural mining failed", "error", err)
			mined = &mining.Result{}
		}
	})

	var detected mining.Detected
	o.stage(result, StageFrameworks, func() {
		detected = o.detectFrameworks(ctx, rc, opts, result)
	})

	signals := &mining.Signals{}
	if o.cfg.Discovery.PassiveSignals && !opts.SkipSignals {
		o.stage(result, StageSignals, func() {
			signals = o.mineSignals(ctx, rc, result)
		})
	}
	result.Stats.Mining = rc.Scanner.Stats()

	var generated []types.DiscoveredPattern
	o.stage(result, StageGenerate, func() {
		generated = patterns.NewGenerator(o.cfg.Discovery.MaxPatterns).Generate(patterns.Input{
			Mined:      mined,
			Signals:    signals,
			Frameworks: detected.All(),
		})
	})
	for _, p := range generated {
		result.Stats.BySource[string(p.Source)]++
	}
	result.Stats.BeforeQuality = len(generated)
	o.metrics.ObserveSources(result.Stats.BySource)

	var store *storage.Store
	var previous *types.PatternsDocument
	if !opts.DryRun {
		store, err = storage.Open(storeRoot, o.cfg.Lock,
			storage.WithLogger(o.logger),
			storage.WithClock(o.now),
			storage.WithLockObserver(o.metrics.ObserveLockWait))
		if err != nil {
			result.fail("%s: %v", StagePersist, err)
			return result, err
		}
		previous, err = store.LoadPatterns()
		if err != nil {
			result.fail("%s: %v", StagePersist, err)
			return result, err
		}
	}

	o.stage(result, StageQuality, func() {
		qcfg := quality.FromConfig(o.cfg.Quality)
		qcfg.Now = o.now
		qopts := quality.Options{Tiers: opts.SignalTiers}
		if previous != nil {
			qopts.Usage = quality.UsageFromPatterns(previous.Patterns)
		}
		result.Patterns, result.Stats.Quality = quality.New(qcfg, log).Apply(generated, qopts)
	})
	if err := result.Stats.Quality.Validate(); err != nil {
		result.warn("%s: %v", StageQuality, err)
	}
	result.Stats.AfterQuality = len(result.Patterns)
	o.metrics.ObserveQuality(result.Stats.Quality)

	result.Profile = buildProfile(rc.Scanner.Root(), mined, signals, detected, o.now().UTC())

	if opts.DryRun {
		log.Info("discovery finished (dry run)", "patterns", len(result.Patterns))
		return result, nil
	}

	var persistErr error
	o.stage(result, StagePersist, func() {
		persistErr = o.persist(ctx, store, result, previous, started)
	})
	if persistErr != nil {
		result.fail("%s: %v", StagePersist, persistErr)
		return result, persistErr
	}

	log.Info("discovery finished", "generated", result.Stats.BeforeQuality, "kept", result.Stats.AfterQuality,
		"warnings", len(result.Warnings))
	return result, nil
}

func (o *Orchestrator) stage(result *PipelineResult, name string, fn func()) {
	start := time.Now()
	fn()
	d := time.Since(start)
	result.Stats.Stages = append(result.Stats.Stages, StageTiming{Name: name, Duration: d})
	o.metrics.ObserveStage(name, d)
}

func (o *Orchestrator) detectFrameworks(ctx context.Context, rc *RunContext, opts Options, result *PipelineResult) mining.Detected {
	override := opts.Frameworks
	if len(override) == 0 {
		override = o.cfg.Discovery.Frameworks
	}
	if len(override) > 0 {
		// Overrides are split by the same tables detection uses.
		return mining.ClassifyFrameworks(override)
	}
	files, err := rc.Scanner.Files(ctx)
	if err != nil {
		result.warn("%s: %v", StageFrameworks, err)
		return mining.Detected{Frameworks: []string{}, UILibraries: []string{}}
	}
	return rc.Scanner.DetectFrameworks(files)
}

// mineSignals runs the passive passes concurrently. A failed pass becomes a
// warning and contributes nothing.
func (o *Orchestrator) mineSignals(ctx context.Context, rc *RunContext, result *PipelineResult) *mining.Signals {
	var (
		mu      sync.Mutex
		signals mining.Signals
	)
	pass := func(name string, fn func() error) func() error {
		return func() error {
			if err := fn(); err != nil {
				mu.Lock()
				result.warn("%s: %s pass failed: %v", StageSignals, name, err)
				mu.Unlock()
				rc.Logger.Warn("signal pass failed", "pass", name, "error", err)
			}
			return nil
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(pass("i18n", func() error {
		keys, err := rc.Scanner.ScanI18n(gctx)
		signals.I18nKeys = keys
		return err
	}))
	g.Go(pass("analytics", func() error {
		events, err := rc.Scanner.ScanAnalytics(gctx)
		signals.AnalyticsEvents = events
		return err
	}))
	g.Go(pass("feature-flags", func() error {
		flags, err := rc.Scanner.ScanFeatureFlags(gctx)
		signals.FeatureFlags = flags
		return err
	}))
	_ = g.Wait()
	return &signals
}

// persist writes patterns, profile, pattern banks and the discovery_run
// event. Counters, journeys and lastUsed of patterns that survive a re-run
// are carried over, as is feedback-adjusted confidence.
func (o *Orchestrator) persist(ctx context.Context, store *storage.Store, result *PipelineResult, previous *types.PatternsDocument, started time.Time) error {
	if previous != nil {
		for i := range result.Patterns {
			p := &result.Patterns[i]
			old := previous.Find(p.ID)
			if old == nil {
				continue
			}
			p.SuccessCount = old.SuccessCount
			p.FailCount = old.FailCount
			p.LastUsed = old.LastUsed
			p.SourceJourneys = mergeJourneys(old.SourceJourneys, p.SourceJourneys)
			if old.Attempts() > 0 {
				p.Confidence = old.Confidence
			}
		}
	}

	now := o.now().UTC()
	err := store.UpdatePatterns(ctx, func(doc *types.PatternsDocument) error {
		doc.Patterns = result.Patterns
		doc.Metadata = types.PatternsMetadata{
			ProjectRoot:     result.Profile.ProjectRoot,
			GeneratedAt:     now,
			Frameworks:      append(append([]string{}, result.Profile.Frameworks...), result.Profile.UILibraries...),
			CountsBySource:  result.Stats.BySource,
			BeforeQuality:   result.Stats.BeforeQuality,
			AfterQuality:    result.Stats.AfterQuality,
			DurationSeconds: now.Sub(started).Seconds(),
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving patterns: %w", err)
	}

	err = store.UpdateProfile(ctx, func(doc *types.AppProfile) error {
		envelope := doc.Envelope
		*doc = *result.Profile
		doc.Envelope = envelope
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	if _, err := store.WritePatternBanks(ctx, result.Patterns); err != nil {
		return fmt.Errorf("writing pattern banks: %w", err)
	}

	events := history.New(store.HistoryPath(), history.WithClock(o.now), history.WithLogger(o.logger))
	_, err = events.Append(types.HistoryEvent{
		Event: types.EventDiscoveryRun,
		Details: map[string]any{
			"projectRoot":   result.Profile.ProjectRoot,
			"patterns":      len(result.Patterns),
			"beforeQuality": result.Stats.BeforeQuality,
			"warnings":      len(result.Warnings),
			"fingerprint":   result.Profile.Fingerprint,
		},
	})
	if err != nil {
		// The documents are already committed.
		result.warn("history: %v", err)
	}
	return nil
}

func mergeJourneys(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, j := range list {
			if !seen[j] {
				seen[j] = true
				out = append(out, j)
			}
		}
	}
	return out
}

func buildProfile(root string, mined *mining.Result, signals *mining.Signals, detected mining.Detected, now time.Time) *types.AppProfile {
	counts := mined.Counts()
	counts["i18nKeys"] = len(signals.I18nKeys)
	counts["analyticsEvents"] = len(signals.AnalyticsEvents)
	counts["featureFlags"] = len(signals.FeatureFlags)

	p := &types.AppProfile{
		Envelope:     types.Envelope{Version: types.CurrentVersion, LastUpdated: now},
		ProjectRoot:  root,
		Frameworks:   nonNil(detected.Frameworks),
		UILibraries:  nonNil(detected.UILibraries),
		Entities:     nonNil(mined.EntityNames()),
		Routes:       nonNil(mined.RoutePaths()),
		ElementCount: counts,
	}
	p.Fingerprint = fingerprint(p)
	return p
}

// fingerprint hashes the detected shape of the application so callers can
// tell whether a re-run saw a different app.
func fingerprint(p *types.AppProfile) string {
	shape := struct {
		Frameworks  []string       `json:"frameworks"`
		UILibraries []string       `json:"uiLibraries"`
		Entities    []string       `json:"entities"`
		Routes      []string       `json:"routes"`
		Counts      map[string]int `json:"counts"`
	}{sorted(p.Frameworks), sorted(p.UILibraries), sorted(p.Entities), sorted(p.Routes), p.ElementCount}
	data, _ := json.Marshal(shape)
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
