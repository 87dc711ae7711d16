package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/llkb/internal/export"
	"github.com/steveyegge/llkb/internal/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export knowledge for test generators and humans",
}

var exportBundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Write autogen-config.yml and glossary.json",
	Long: `Write the generator bundle: autogen-config.yml with additional patterns,
selector overrides, timing hints and module mappings, and glossary.json
mapping phrases to actions. Items below export.minConfidence are left out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		store, err := openStore(nil)
		if err != nil {
			return err
		}
		result, err := export.Bundle(cmd.Context(), store, cfg, out)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(result)
		}
		fmt.Printf("%s Wrote %s\n", green("✓"), result.ConfigPath)
		fmt.Printf("  %d patterns, %d selector overrides, %d timing hints, %d modules\n",
			result.Patterns, result.SelectorOverrides, result.TimingHints, result.Modules)
		fmt.Printf("%s Wrote %s (%d entries)\n", green("✓"), result.GlossaryPath, result.GlossaryEntries)
		return nil
	},
}

var exportLessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "Export lessons as markdown, csv or json",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, includeArchived, w, closeFn, err := exportTarget(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		store, err := openStore(nil)
		if err != nil {
			return err
		}
		doc, err := store.LoadLessons()
		if err != nil {
			return err
		}
		lessons := doc.Lessons
		if !includeArchived {
			lessons = doc.Active()
		}
		return export.Lessons(w, lessons, format)
	},
}

var exportComponentsCmd = &cobra.Command{
	Use:   "components",
	Short: "Export components as markdown, csv or json",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, includeArchived, w, closeFn, err := exportTarget(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		store, err := openStore(nil)
		if err != nil {
			return err
		}
		doc, err := store.LoadComponents()
		if err != nil {
			return err
		}
		var components []types.Component
		if includeArchived {
			components = doc.Components
		} else {
			components = doc.Active()
		}
		return export.Components(w, components, format)
	},
}

func init() {
	exportBundleCmd.Flags().String("out", ".", "Directory to write the bundle into")

	for _, c := range []*cobra.Command{exportLessonsCmd, exportComponentsCmd} {
		c.Flags().String("format", "markdown", "Output format: markdown, csv or json")
		c.Flags().Bool("include-archived", false, "Include archived items")
		c.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	}

	exportCmd.AddCommand(exportBundleCmd)
	exportCmd.AddCommand(exportLessonsCmd)
	exportCmd.AddCommand(exportComponentsCmd)
	rootCmd.AddCommand(exportCmd)
}

// exportTarget reads the shared export flags and opens the destination.
func exportTarget(cmd *cobra.Command) (export.Format, bool, io.Writer, func(), error) {
	formatStr, _ := cmd.Flags().GetString("format")
	includeArchived, _ := cmd.Flags().GetBool("include-archived")
	output, _ := cmd.Flags().GetString("output")

	format, err := export.ParseFormat(formatStr)
	if err != nil {
		return "", false, nil, nil, err
	}
	if output == "" {
		return format, includeArchived, os.Stdout, func() {}, nil
	}
	f, err := os.Create(output)
	if err != nil {
		return "", false, nil, nil, fmt.Errorf("creating %s: %w", output, err)
	}
	return format, includeArchived, f, func() { _ = f.Close() }, nil
}
