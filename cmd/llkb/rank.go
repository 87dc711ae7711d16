package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/llkb/internal/relevance"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank lessons and components for a journey",
	Long: `Score active lessons and components against a journey and print the
context block to inject into a generator prompt.

Examples:
  llkb rank --journey JRN-001 --description "Create an invoice from the orders grid"
  llkb rank --description "login with SSO" --category auth --max-lessons 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		journeyID, _ := cmd.Flags().GetString("journey")
		description, _ := cmd.Flags().GetString("description")
		categories, _ := cmd.Flags().GetStringSlice("category")
		keywords, _ := cmd.Flags().GetStringSlice("keyword")

		if description == "" && len(keywords) == 0 {
			return fmt.Errorf("one of --description or --keyword is required")
		}

		opts := relevance.OptionsFromConfig(cfg.Injection)
		if cmd.Flags().Changed("max-lessons") {
			opts.MaxLessons, _ = cmd.Flags().GetInt("max-lessons")
		}
		if cmd.Flags().Changed("max-components") {
			opts.MaxComponents, _ = cmd.Flags().GetInt("max-components")
		}
		if cmd.Flags().Changed("min-relevance") {
			opts.MinRelevance, _ = cmd.Flags().GetFloat64("min-relevance")
		}
		if cmd.Flags().Changed("sort") {
			opts.SortBy, _ = cmd.Flags().GetString("sort")
		}

		store, err := openStore(nil)
		if err != nil {
			return err
		}
		ranked, err := relevance.Assemble(store, relevance.Journey{
			ID:          journeyID,
			Description: description,
			Categories:  categories,
			Keywords:    keywords,
		}, opts)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(ranked)
		}
		if ranked.Empty() {
			fmt.Printf("%s no relevant lessons or components\n", yellow("!"))
			return nil
		}
		fmt.Print(ranked.Markdown())
		return nil
	},
}

func init() {
	rankCmd.Flags().String("journey", "", "Journey ID")
	rankCmd.Flags().String("description", "", "Journey description")
	rankCmd.Flags().StringSlice("category", nil, "Categories to favor (repeatable)")
	rankCmd.Flags().StringSlice("keyword", nil, "Extra keywords (repeatable)")
	rankCmd.Flags().Int("max-lessons", 0, "Maximum lessons (default from config)")
	rankCmd.Flags().Int("max-components", 0, "Maximum components (default from config)")
	rankCmd.Flags().Float64("min-relevance", 0, "Minimum relevance score (default from config)")
	rankCmd.Flags().String("sort", "", "Sort by relevance or confidence (default from config)")

	rootCmd.AddCommand(rankCmd)
}
