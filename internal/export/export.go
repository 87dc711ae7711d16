package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/steveyegge/llkb/internal/types"
)

// Format is an export file format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// ParseFormat accepts a format name or a common alias ("md").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (want markdown, csv or json)", s)
}

// Lessons writes lessons ordered by id.
func Lessons(w io.Writer, lessons []types.Lesson, format Format) error {
	sorted := append([]types.Lesson(nil), lessons...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	switch format {
	case FormatJSON:
		return writeJSON(w, sorted)
	case FormatCSV:
		rows := [][]string{{"id", "title", "category", "scope", "trigger", "pattern",
			"confidence", "occurrences", "successRate", "humanReviewed", "archived"}}
		for _, l := range sorted {
			rows = append(rows, []string{
				l.ID, l.Title, string(l.Category), string(l.Scope), l.Trigger, l.Pattern,
				formatFloat(l.Metrics.Confidence), strconv.Itoa(l.Metrics.Occurrences),
				formatFloat(l.Metrics.SuccessRate), strconv.FormatBool(l.Validation.HumanReviewed),
				strconv.FormatBool(l.Archived),
			})
		}
		return writeCSV(w, rows)
	case FormatMarkdown:
		var b strings.Builder
		b.WriteString("# Lessons\n")
		if len(sorted) == 0 {
			b.WriteString("\n_No lessons._\n")
		}
		for _, l := range sorted {
			fmt.Fprintf(&b, "\n## %s: %s\n\n", l.ID, l.Title)
			fmt.Fprintf(&b, "- Category: %s\n", l.Category)
			fmt.Fprintf(&b, "- Scope: %s\n", l.Scope)
			fmt.Fprintf(&b, "- Confidence: %.2f (%d occurrences, %.0f%% success)\n",
				l.Metrics.Confidence, l.Metrics.Occurrences, l.Metrics.SuccessRate*100)
			if l.Trigger != "" {
				fmt.Fprintf(&b, "- When: %s\n", l.Trigger)
			}
			if l.Pattern != "" {
				fmt.Fprintf(&b, "- Do: %s\n", l.Pattern)
			}
			if len(l.Tags) > 0 {
				fmt.Fprintf(&b, "- Tags: %s\n", strings.Join(l.Tags, ", "))
			}
			if l.Archived {
				b.WriteString("- Archived\n")
			}
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
	return fmt.Errorf("unknown export format %q", format)
}

// Components writes components ordered by id.
func Components(w io.Writer, components []types.Component, format Format) error {
	sorted := append([]types.Component(nil), components...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	switch format {
	case FormatJSON:
		return writeJSON(w, sorted)
	case FormatCSV:
		rows := [][]string{{"id", "name", "category", "scope", "filePath", "description",
			"totalUses", "successRate", "archived"}}
		for _, c := range sorted {
			rows = append(rows, []string{
				c.ID, c.Name, string(c.Category), string(c.Scope), c.FilePath, c.Description,
				strconv.Itoa(c.Metrics.TotalUses), formatFloat(c.Metrics.SuccessRate),
				strconv.FormatBool(c.Archived),
			})
		}
		return writeCSV(w, rows)
	case FormatMarkdown:
		var b strings.Builder
		b.WriteString("# Components\n")
		if len(sorted) == 0 {
			b.WriteString("\n_No components._\n")
		}
		for _, c := range sorted {
			fmt.Fprintf(&b, "\n## %s: `%s`\n\n", c.ID, c.Name)
			if c.Description != "" {
				fmt.Fprintf(&b, "%s\n\n", c.Description)
			}
			fmt.Fprintf(&b, "- Category: %s\n", c.Category)
			fmt.Fprintf(&b, "- Scope: %s\n", c.Scope)
			if c.FilePath != "" {
				fmt.Fprintf(&b, "- File: `%s`\n", c.FilePath)
			}
			fmt.Fprintf(&b, "- Uses: %d (%.0f%% success)\n", c.Metrics.TotalUses, c.Metrics.SuccessRate*100)
			if c.Archived {
				b.WriteString("- Archived\n")
			}
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
	return fmt.Errorf("unknown export format %q", format)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}
