package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/steveyegge/llkb/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the knowledge store for problems",
	Long: `Run the store health checks: config validity, document versions, stale
locks, history retention and the share of low-confidence lessons.

Exits 1 when any check is unhealthy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := health.Check(cmd.Context(), storeRoot)
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := printJSON(report); err != nil {
				return err
			}
		} else {
			printHealth(report)
		}
		if report.Status == health.StatusUnhealthy {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func printHealth(report *health.Report) {
	fmt.Printf("\n%s Checking %s\n\n", cyan("⚕"), report.Root)
	for _, c := range report.Checks {
		fmt.Printf("%s %-11s %s\n", statusIcon(c.Status), c.Name, c.Message)
		if verbose && len(c.Evidence) > 0 {
			keys := make([]string, 0, len(c.Evidence))
			for k := range c.Evidence {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("    %s\n", gray(fmt.Sprintf("%s: %v", k, c.Evidence[k])))
			}
		}
	}
	fmt.Printf("\nOverall: %s\n", statusColor(report.Status))
}

func statusIcon(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return green("✓")
	case health.StatusDegraded:
		return yellow("⚠")
	default:
		return red("✗")
	}
}

func statusColor(s health.Status) string {
	switch s {
	case health.StatusHealthy:
		return green(string(s))
	case health.StatusDegraded:
		return yellow(string(s))
	default:
		return red(string(s))
	}
}
