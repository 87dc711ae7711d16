package relevance

import (
	"fmt"
	"strings"

	"github.com/steveyegge/llkb/internal/storage"
)

// Assemble loads lessons, components, the app profile and the registry from
// the store and ranks them for the journey. Component import paths are
// resolved through the registry when it knows the component.
func Assemble(store *storage.Store, j Journey, opts Options) (*RankedContext, error) {
	lessons, err := store.LoadLessons()
	if err != nil {
		return nil, fmt.Errorf("failed to load lessons: %w", err)
	}
	components, err := store.LoadComponents()
	if err != nil {
		return nil, fmt.Errorf("failed to load components: %w", err)
	}
	profile, err := store.LoadProfile()
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	registry, err := store.LoadRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	// An empty profile means discovery never ran; don't exclude on it.
	p := profile
	if len(p.Frameworks) == 0 && len(p.UILibraries) == 0 {
		p = nil
	}
	if opts.Now.IsZero() {
		opts.Now = store.Now()
	}

	ranked := Rank(j, lessons.Lessons, components.Components, p, opts)
	for i := range ranked.Components {
		if m, ok := registry.Lookup(ranked.Components[i].Component.Name); ok {
			ranked.Components[i].ImportPath = m.ImportPath
		}
	}
	return ranked, nil
}

// Empty reports whether nothing passed ranking.
func (r *RankedContext) Empty() bool {
	return len(r.Lessons) == 0 && len(r.Components) == 0
}

// Markdown renders the ranked context as a prompt section.
func (r *RankedContext) Markdown() string {
	var b strings.Builder
	b.WriteString("## Learned context")
	if r.Journey.ID != "" {
		fmt.Fprintf(&b, " for %s", r.Journey.ID)
	}
	b.WriteString("\n\n")

	if r.Empty() {
		b.WriteString("_No relevant lessons or components._\n")
		return b.String()
	}

	if len(r.Lessons) > 0 {
		b.WriteString("### Lessons\n\n")
		for _, sl := range r.Lessons {
			l := sl.Lesson
			fmt.Fprintf(&b, "- **%s** (%s, confidence %.2f, relevance %.2f)\n", l.Title, l.Category, l.Metrics.Confidence, sl.Relevance)
			if l.Trigger != "" {
				fmt.Fprintf(&b, "  - When: %s\n", l.Trigger)
			}
			if l.Pattern != "" {
				fmt.Fprintf(&b, "  - Do: %s\n", l.Pattern)
			}
		}
		b.WriteString("\n")
	}

	if len(r.Components) > 0 {
		b.WriteString("### Reusable components\n\n")
		for _, sc := range r.Components {
			c := sc.Component
			fmt.Fprintf(&b, "- `%s`", c.Name)
			if sc.ImportPath != "" {
				fmt.Fprintf(&b, " from `%s`", sc.ImportPath)
			}
			fmt.Fprintf(&b, " (%s, used %d times, relevance %.2f)", c.Category, c.Metrics.TotalUses, sc.Relevance)
			if c.Description != "" {
				fmt.Fprintf(&b, ": %s", c.Description)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
