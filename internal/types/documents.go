package types

import "time"

// CurrentVersion is the schema version written by this build.
const CurrentVersion = "1.0.0"

// Envelope is the header every top-level JSON document carries.
type Envelope struct {
	Version     string    `json:"version"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Header returns the envelope; documents embed Envelope so this is promoted.
func (e *Envelope) Header() *Envelope { return e }

// LessonsDocument is the content of lessons.json.
type LessonsDocument struct {
	Envelope
	Lessons []Lesson `json:"lessons"`
}

// Active returns lessons that are not archived.
func (d *LessonsDocument) Active() []Lesson {
	out := make([]Lesson, 0, len(d.Lessons))
	for _, l := range d.Lessons {
		if !l.Archived {
			out = append(out, l)
		}
	}
	return out
}

// Find returns a pointer to the lesson with the given id.
func (d *LessonsDocument) Find(id string) *Lesson {
	for i := range d.Lessons {
		if d.Lessons[i].ID == id {
			return &d.Lessons[i]
		}
	}
	return nil
}

// ComponentsDocument is the content of components.json.
type ComponentsDocument struct {
	Envelope
	Components           []Component         `json:"components"`
	ComponentsByCategory map[string][]string `json:"componentsByCategory"`
	ComponentsByScope    map[string][]string `json:"componentsByScope"`
}

// Active returns components that are not archived.
func (d *ComponentsDocument) Active() []Component {
	out := make([]Component, 0, len(d.Components))
	for _, c := range d.Components {
		if !c.Archived {
			out = append(out, c)
		}
	}
	return out
}

// Find returns a pointer to the component with the given id.
func (d *ComponentsDocument) Find(id string) *Component {
	for i := range d.Components {
		if d.Components[i].ID == id {
			return &d.Components[i]
		}
	}
	return nil
}

// Reindex rebuilds the category and scope indexes from the component list.
func (d *ComponentsDocument) Reindex() {
	d.ComponentsByCategory = make(map[string][]string)
	d.ComponentsByScope = make(map[string][]string)
	for _, c := range d.Components {
		if c.Archived {
			continue
		}
		d.ComponentsByCategory[string(c.Category)] = append(d.ComponentsByCategory[string(c.Category)], c.ID)
		d.ComponentsByScope[string(c.Scope)] = append(d.ComponentsByScope[string(c.Scope)], c.ID)
	}
}

// PatternsMetadata describes the discovery run that produced a patterns document.
type PatternsMetadata struct {
	ProjectRoot     string         `json:"projectRoot"`
	GeneratedAt     time.Time      `json:"generatedAt"`
	Frameworks      []string       `json:"frameworks"`
	CountsBySource  map[string]int `json:"countsBySource"`
	BeforeQuality   int            `json:"beforeQuality"`
	AfterQuality    int            `json:"afterQuality"`
	DurationSeconds float64        `json:"durationSeconds"`
}

// PatternsDocument is the content of discovered-patterns.json.
type PatternsDocument struct {
	Envelope
	Patterns []DiscoveredPattern `json:"patterns"`
	Metadata PatternsMetadata    `json:"metadata"`
}

// Find returns a pointer to the pattern with the given id.
func (d *PatternsDocument) Find(id string) *DiscoveredPattern {
	for i := range d.Patterns {
		if d.Patterns[i].ID == id {
			return &d.Patterns[i]
		}
	}
	return nil
}

// PatternBank is the content of patterns/<category>.json.
type PatternBank struct {
	Envelope
	Category string              `json:"category"`
	Patterns []DiscoveredPattern `json:"patterns"`
}

// AppProfile is the content of discovered-profile.json.
type AppProfile struct {
	Envelope
	ProjectRoot  string         `json:"projectRoot"`
	Frameworks   []string       `json:"frameworks"`
	UILibraries  []string       `json:"uiLibraries"`
	Entities     []string       `json:"entities"`
	Routes       []string       `json:"routes"`
	ElementCount map[string]int `json:"elementCount"`
	Fingerprint  string         `json:"fingerprint"`
}

// HasFramework reports whether the profile detected the named framework or UI library.
func (p *AppProfile) HasFramework(name string) bool {
	if p == nil {
		return false
	}
	for _, f := range p.Frameworks {
		if f == name {
			return true
		}
	}
	for _, f := range p.UILibraries {
		if f == name {
			return true
		}
	}
	return false
}
