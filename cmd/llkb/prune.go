package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/steveyegge/llkb/internal/analytics"
	"github.com/steveyegge/llkb/internal/history"
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply retention: prune history, archive stale items, refresh confidence",
	Long: `Apply the retention section of config.yml:

  - history day files older than retention.historyDays are removed, or
    compressed into history/archive when retention.archiveHistory is set
  - lessons and components unused for retention.lessonStaleDays are archived,
    as are well-exercised lessons below retention.archiveBelowConfidence
  - confidence is recomputed for every active lesson so recency decays`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days := cfg.Retention.HistoryDays
		if cmd.Flags().Changed("days") {
			days, _ = cmd.Flags().GetInt("days")
		}
		archive := cfg.Retention.ArchiveHistory
		if noArchive, _ := cmd.Flags().GetBool("no-archive"); noArchive {
			archive = false
		}

		store, engine, err := openEngine(nil)
		if err != nil {
			return err
		}
		pruned, err := history.New(store.HistoryPath(), history.WithLogger(logger)).Prune(days, archive)
		if err != nil {
			return fmt.Errorf("pruning history: %w", err)
		}
		archived, err := engine.ArchiveStale(cmd.Context())
		if err != nil {
			return fmt.Errorf("archiving stale items: %w", err)
		}
		refreshed, err := engine.Refresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("refreshing confidence: %w", err)
		}
		if _, err := analytics.Recompute(cmd.Context(), store); err != nil {
			return fmt.Errorf("recomputing analytics: %w", err)
		}

		if jsonOutput {
			return printJSON(map[string]any{
				"history":   pruned,
				"archived":  archived,
				"refreshed": refreshed,
			})
		}
		fmt.Printf("%s History: %d day(s) removed, %d archived, %d kept\n",
			green("✓"), len(pruned.Removed), len(pruned.Archived), pruned.Kept)
		fmt.Printf("%s Archived %d lesson(s), %d component(s)\n",
			green("✓"), len(archived.Lessons), len(archived.Components))
		for _, id := range append(append([]string(nil), archived.Lessons...), archived.Components...) {
			fmt.Printf("  %s\n", gray(id))
		}
		fmt.Printf("%s Refreshed confidence of %d lesson(s)\n", green("✓"), refreshed)
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade store documents to the current format version",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(nil)
		if err != nil {
			return err
		}
		applied, err := store.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(applied)
		}
		if len(applied) == 0 {
			fmt.Printf("%s all documents are current\n", green("✓"))
			return nil
		}
		docs := make([]string, 0, len(applied))
		for doc := range applied {
			docs = append(docs, doc)
		}
		sort.Strings(docs)
		for _, doc := range docs {
			fmt.Printf("%s %s\n", green("✓"), doc)
			for _, step := range applied[doc] {
				fmt.Printf("  %s\n", gray(step))
			}
		}
		return nil
	},
}

func init() {
	pruneCmd.Flags().Int("days", 0, "History days to keep (default retention.historyDays)")
	pruneCmd.Flags().Bool("no-archive", false, "Delete pruned history instead of archiving it")

	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(migrateCmd)
}
