package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/llkb/internal/analytics"
	"github.com/steveyegge/llkb/internal/health"
	"github.com/steveyegge/llkb/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents and the last discovery run",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := health.Status(cmd.Context(), storeRoot)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(report)
		}

		fmt.Printf("\n%s\n\n", bold("=== LLKB Status ==="))
		fmt.Printf("Store:      %s\n", report.Root)
		if !report.Enabled {
			fmt.Printf("Enabled:    %s\n", yellow("no"))
		}
		fmt.Printf("Lessons:    %d active / %d total (avg confidence %.2f)\n",
			report.ActiveLessons, report.Lessons, report.AvgConfidence)
		fmt.Printf("Components: %d active / %d total, %d modules\n",
			report.ActiveComponents, report.Components, report.Modules)
		fmt.Printf("Patterns:   %d\n", report.Patterns)
		if len(report.Frameworks) > 0 {
			fmt.Printf("Frameworks: %s\n", strings.Join(report.Frameworks, ", "))
		}
		if report.LastDiscovery.IsZero() {
			fmt.Printf("Discovery:  %s\n", gray("never run"))
		} else {
			fmt.Printf("Discovery:  %s (%v ago)\n", report.LastDiscovery.Local().Format("2006-01-02 15:04:05"),
				time.Since(report.LastDiscovery).Round(time.Second))
		}
		fmt.Printf("History:    %d days\n", report.HistoryDays)
		if report.StaleLocks > 0 {
			fmt.Printf("%s %d stale lock(s); run 'llkb health'\n", yellow("⚠"), report.StaleLocks)
		}
		return nil
	},
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Recompute analytics.json and show top performers and review candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(nil)
		if err != nil {
			return err
		}
		doc, err := analytics.Recompute(cmd.Context(), store)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(doc)
		}

		fmt.Printf("\n%s\n\n", bold("=== LLKB Analytics ==="))
		o := doc.Overview
		fmt.Printf("Lessons:    %d active, %d archived\n", o.ActiveLessons, o.ArchivedLessons)
		fmt.Printf("Components: %d active, %d archived, %d reuses\n",
			o.ActiveComponents, o.ArchivedComponents, doc.ComponentStats.TotalReuses)
		fmt.Printf("Averages:   confidence %.2f, success rate %.2f\n", o.AvgConfidence, o.AvgSuccessRate)

		printTop("Top lessons", doc.TopPerformers.Lessons)
		printTop("Top components", doc.TopPerformers.Components)

		review := doc.NeedsReview
		if len(review.LowConfidenceLessons)+len(review.LowUsageComponents)+len(review.DecliningSuccessRate) == 0 {
			fmt.Printf("\n%s nothing needs review\n", green("✓"))
			return nil
		}
		fmt.Printf("\n%s\n", yellow("Needs review:"))
		printIDs("low confidence", review.LowConfidenceLessons)
		printIDs("low usage", review.LowUsageComponents)
		printIDs("declining", review.DecliningSuccessRate)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(analyticsCmd)
}

func printTop(title string, items []types.TopItem) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s\n", cyan(title+":"))
	for i, item := range items {
		fmt.Printf("  %d. %s %s %s\n", i+1, item.ID, item.Name, gray(fmt.Sprintf("(%.2f)", item.Score)))
	}
}

func printIDs(label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(os.Stdout, "  %-15s %s\n", label+":", strings.Join(ids, ", "))
}
