package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/llkb/internal/analytics"
	"github.com/steveyegge/llkb/internal/learning"
	"github.com/steveyegge/llkb/internal/types"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a test outcome for a lesson, component or pattern",
	Long: `Apply one usage outcome to the store. Lessons are matched by --id, then
by --selector, then by trigger similarity to --step. Components and patterns
are matched by --id. analytics.json is recomputed afterwards.

Examples:
  llkb record --kind lesson --id L001 --journey JRN-004
  llkb record --kind lesson --step "click the save button" --failed
  llkb record --kind pattern --id DP-1a2b3c4d`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		id, _ := cmd.Flags().GetString("id")
		selector, _ := cmd.Flags().GetString("selector")
		step, _ := cmd.Flags().GetString("step")
		journey, _ := cmd.Flags().GetString("journey")
		prompt, _ := cmd.Flags().GetString("prompt")
		failed, _ := cmd.Flags().GetBool("failed")

		store, engine, err := openEngine(nil)
		if err != nil {
			return err
		}
		result, err := engine.RecordOutcome(cmd.Context(), learning.Report{
			Kind:      learning.Kind(kind),
			ID:        id,
			Selector:  selector,
			StepText:  step,
			JourneyID: journey,
			Prompt:    prompt,
			Success:   !failed,
		})
		if errors.Is(err, learning.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "%s no %s matched\n", yellow("!"), kind)
			os.Exit(1)
		}
		if err != nil {
			return err
		}

		if _, err := analytics.Recompute(cmd.Context(), store); err != nil {
			fmt.Fprintf(os.Stderr, "%s analytics not updated: %v\n", yellow("⚠"), err)
		}

		if jsonOutput {
			return printJSON(result)
		}
		outcome := green("success")
		if failed {
			outcome = red("failure")
		}
		fmt.Printf("%s Recorded %s for %s %s (%s match)\n", green("✓"), outcome, result.Kind, result.ID, result.Match)
		fmt.Printf("  confidence %.2f, %d uses, success rate %.2f\n", result.Confidence, result.Uses, result.SuccessRate)
		return nil
	},
}

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Turn high-confidence discovered patterns into lessons",
	RunE: func(cmd *cobra.Command, args []string) error {
		threshold, _ := cmd.Flags().GetFloat64("threshold")

		_, engine, err := openEngine(nil)
		if err != nil {
			return err
		}
		result, err := engine.Promote(cmd.Context(), threshold)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		if len(result.Promoted) == 0 {
			fmt.Printf("%s no patterns at or above %.2f to promote (%d already lessons)\n",
				yellow("!"), threshold, result.Skipped)
			return nil
		}
		fmt.Printf("%s Promoted %d pattern(s)\n", green("✓"), len(result.Promoted))
		for _, id := range result.Promoted {
			fmt.Printf("  %s\n", id)
		}
		if result.Skipped > 0 {
			fmt.Printf("  %s\n", gray(fmt.Sprintf("%d skipped as duplicates", result.Skipped)))
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <name>",
	Short: "Record a reusable component extracted from generated tests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")
		scope, _ := cmd.Flags().GetString("scope")
		filePath, _ := cmd.Flags().GetString("file")
		description, _ := cmd.Flags().GetString("description")
		codeFile, _ := cmd.Flags().GetString("code-file")
		from, _ := cmd.Flags().GetString("from")
		journey, _ := cmd.Flags().GetString("journey")

		var code string
		if codeFile != "" {
			data, err := os.ReadFile(codeFile)
			if err != nil {
				return fmt.Errorf("reading %s: %w", codeFile, err)
			}
			code = string(data)
		}

		_, engine, err := openEngine(nil)
		if err != nil {
			return err
		}
		component, err := engine.ExtractComponent(cmd.Context(), learning.ComponentInput{
			Name:          args[0],
			Category:      types.ComponentCategory(category),
			Scope:         types.Scope(scope),
			FilePath:      filePath,
			Description:   description,
			OriginalCode:  code,
			ExtractedFrom: from,
			JourneyID:     journey,
		})
		if component == nil {
			return err
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", yellow("⚠"), err)
		}
		if jsonOutput {
			return printJSON(component)
		}
		fmt.Printf("%s Extracted %s (%s)\n", green("✓"), component.ID, component.Name)
		fmt.Printf("  %s %s\n", gray("file:"), component.FilePath)
		return nil
	},
}

func init() {
	recordCmd.Flags().String("kind", string(learning.KindLesson), "What the outcome refers to: lesson, component or pattern")
	recordCmd.Flags().String("id", "", "ID of the lesson, component or pattern")
	recordCmd.Flags().String("selector", "", "Selector the test used")
	recordCmd.Flags().String("step", "", "Step text the test executed")
	recordCmd.Flags().String("journey", "", "Journey the test belongs to")
	recordCmd.Flags().String("prompt", "", "Generator prompt that produced the step")
	recordCmd.Flags().Bool("failed", false, "Record a failure instead of a success")

	promoteCmd.Flags().Float64("threshold", 0.7, "Minimum pattern confidence to promote")

	extractCmd.Flags().String("category", "", "Component category (required)")
	extractCmd.Flags().String("scope", "", "Scope: universal, app-specific or framework:<name> (default app-specific)")
	extractCmd.Flags().String("file", "", "Path of the module holding the component (required)")
	extractCmd.Flags().String("description", "", "What the component does")
	extractCmd.Flags().String("code-file", "", "File with the original inline code")
	extractCmd.Flags().String("from", "", "Test the component was extracted from")
	extractCmd.Flags().String("journey", "", "Journey the test belongs to")
	_ = extractCmd.MarkFlagRequired("category")
	_ = extractCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(extractCmd)
}
