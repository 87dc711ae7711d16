package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/history"
	"github.com/steveyegge/llkb/internal/learning"
	"github.com/steveyegge/llkb/internal/metrics"
	"github.com/steveyegge/llkb/internal/storage"
)

const defaultStoreRoot = ".artk/llkb"

var (
	storeRoot   string
	projectRoot string
	verbose     bool
	jsonOutput  bool

	cfg    *config.Config
	logger *slog.Logger
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.FgCyan, color.Bold).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:   "llkb",
	Short: "Learned knowledge base for test authoring",
	Long: `llkb mines a web application's sources for entities, routes, forms, tables
and modals, turns them into phrase-to-action patterns, and keeps a store of
lessons and reusable components that improves as test outcomes are recorded.

The store lives in a directory (default .artk/llkb) holding versioned JSON
documents, per-category pattern banks and a day-partitioned history log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.LoadOptional(storeRoot)
		if err != nil {
			if cmd.Name() == "health" {
				// reported by the config check
				cfg = config.Default()
				return nil
			}
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeRoot, "store", envOr("LLKB_STORE", defaultStoreRoot), "Knowledge store directory")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project", ".", "Project root to mine")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// openStore opens the configured store with the CLI logger.
func openStore(m *metrics.Metrics) (*storage.Store, error) {
	return storage.Open(storeRoot, cfg.Lock,
		storage.WithLogger(logger),
		storage.WithLockObserver(m.ObserveLockWait))
}

// openEngine opens the store and a learning engine over it.
func openEngine(m *metrics.Metrics) (*storage.Store, *learning.Engine, error) {
	store, err := openStore(m)
	if err != nil {
		return nil, nil, err
	}
	log := history.New(store.HistoryPath(), history.WithLogger(logger))
	engine := learning.New(store, log, cfg,
		learning.WithLogger(logger),
		learning.WithOutcomeObserver(func(kind learning.Kind, success bool) {
			m.ObserveOutcome(string(kind), success)
		}))
	return store, engine, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
