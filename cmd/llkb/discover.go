package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/llkb/internal/config"
	"github.com/steveyegge/llkb/internal/discovery"
	"github.com/steveyegge/llkb/internal/metrics"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Mine the project and refresh discovered patterns",
	Long: `Run the discovery pipeline: mine the project's allow-listed source
directories, detect frameworks, collect passive signals (i18n keys, analytics
events, feature flags), generate patterns, apply quality control and save
discovered-patterns.json, discovered-profile.json and the pattern banks.

config.yml is created in the store with defaults if it does not exist.

Examples:
  # Discover the current directory into .artk/llkb
  llkb discover

  # Preview without writing anything
  llkb discover --dry-run

  # Override framework detection
  llkb discover --framework react --framework mui`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		skipSignals, _ := cmd.Flags().GetBool("skip-signals")
		frameworks, _ := cmd.Flags().GetStringSlice("framework")

		if !dryRun {
			created, err := config.LoadOrCreate(storeRoot)
			if err != nil {
				return err
			}
			cfg = created
		}
		if !cfg.Enabled {
			fmt.Printf("%s knowledge base disabled in %s\n", yellow("!"), config.Path(storeRoot))
			return nil
		}

		result, err := runDiscovery(cmd.Context(), nil, discovery.Options{
			DryRun:      dryRun,
			SkipSignals: skipSignals,
			Frameworks:  frameworks,
		})
		if jsonOutput && result != nil {
			if perr := printJSON(result); perr != nil {
				return perr
			}
			return err
		}
		if result != nil {
			printDiscovery(result, dryRun)
		}
		return err
	},
}

func init() {
	discoverCmd.Flags().Bool("dry-run", false, "Run the pipeline without writing to the store")
	discoverCmd.Flags().Bool("skip-signals", false, "Skip i18n, analytics and feature flag mining")
	discoverCmd.Flags().StringSlice("framework", nil, "Framework or UI library to assume instead of detecting (repeatable)")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscovery(ctx context.Context, m *metrics.Metrics, opts discovery.Options) (*discovery.PipelineResult, error) {
	o := discovery.NewOrchestrator(cfg, discovery.WithLogger(logger), discovery.WithMetrics(m))
	return o.Run(ctx, projectRoot, storeRoot, opts)
}

func printDiscovery(result *discovery.PipelineResult, dryRun bool) {
	lines := strings.Split(result.Summary(), "\n")
	if len(lines) == 0 {
		return
	}
	icon := green("✓")
	if !result.Success {
		icon = red("✗")
	}
	fmt.Printf("\n%s %s\n", icon, lines[0])
	for _, line := range lines[1:] {
		switch {
		case strings.HasPrefix(line, "warning: "):
			fmt.Printf("  %s %s\n", yellow("⚠"), strings.TrimPrefix(line, "warning: "))
		case strings.HasPrefix(line, "error: "):
			fmt.Printf("  %s %s\n", red("✗"), strings.TrimPrefix(line, "error: "))
		case strings.HasPrefix(line, "Quality:"), strings.HasPrefix(line, "Mining:"), strings.HasPrefix(line, "Cache:"):
			fmt.Printf("  %s\n", gray(line))
		default:
			fmt.Printf("  %s\n", line)
		}
	}
	if dryRun {
		fmt.Printf("\n%s dry run: nothing written\n", cyan("ⓘ"))
	} else if result.Success {
		fmt.Printf("\n%s saved to %s\n", green("✓"), storeRoot)
	}
}
