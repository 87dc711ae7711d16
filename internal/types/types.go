package types

import (
	"fmt"
	"strings"
	"time"
)

// Scope is the applicability tier of a lesson or component.
type Scope string

const (
	// ScopeUniversal applies to every application
	ScopeUniversal Scope = "universal"
	// ScopeAppSpecific applies only to the application it was learned from
	ScopeAppSpecific Scope = "app-specific"
	// scopeFrameworkPrefix prefixes framework scopes, e.g. "framework:angular"
	scopeFrameworkPrefix = "framework:"
)

// FrameworkScope returns the scope for items tied to a single framework.
func FrameworkScope(framework string) Scope {
	return Scope(scopeFrameworkPrefix + strings.ToLower(framework))
}

// Framework returns the framework name for framework scopes, or "".
func (s Scope) Framework() string {
	if strings.HasPrefix(string(s), scopeFrameworkPrefix) {
		return strings.TrimPrefix(string(s), scopeFrameworkPrefix)
	}
	return ""
}

// IsValid checks if the scope value is valid
func (s Scope) IsValid() bool {
	switch s {
	case ScopeUniversal, ScopeAppSpecific:
		return true
	}
	return s.Framework() != ""
}

// LessonCategory classifies what a lesson teaches.
type LessonCategory string

const (
	CategorySelector   LessonCategory = "selector"
	CategoryTiming     LessonCategory = "timing"
	CategoryQuirk      LessonCategory = "quirk"
	CategoryAuth       LessonCategory = "auth"
	CategoryData       LessonCategory = "data"
	CategoryAssertion  LessonCategory = "assertion"
	CategoryNavigation LessonCategory = "navigation"
	CategoryUIInteract LessonCategory = "ui-interaction"
)

// IsValid checks if the lesson category value is valid
func (c LessonCategory) IsValid() bool {
	switch c {
	case CategorySelector, CategoryTiming, CategoryQuirk, CategoryAuth,
		CategoryData, CategoryAssertion, CategoryNavigation, CategoryUIInteract:
		return true
	}
	return false
}

// ComponentCategory classifies what a component does.
type ComponentCategory string

const (
	ComponentAuth       ComponentCategory = "auth"
	ComponentNavigation ComponentCategory = "navigation"
	ComponentSelector   ComponentCategory = "selector"
	ComponentForm       ComponentCategory = "form"
	ComponentTable      ComponentCategory = "table"
	ComponentAssertion  ComponentCategory = "assertion"
	ComponentData       ComponentCategory = "data"
	ComponentTiming     ComponentCategory = "timing"
)

// IsValid checks if the component category value is valid
func (c ComponentCategory) IsValid() bool {
	switch c {
	case ComponentAuth, ComponentNavigation, ComponentSelector, ComponentForm,
		ComponentTable, ComponentAssertion, ComponentData, ComponentTiming:
		return true
	}
	return false
}

// ConfidencePoint is one sample of a lesson's confidence over time.
type ConfidencePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// LessonMetrics tracks how a lesson has performed.
type LessonMetrics struct {
	Occurrences       int               `json:"occurrences"`
	SuccessRate       float64           `json:"successRate"`
	Confidence        float64           `json:"confidence"`
	FirstSeen         time.Time         `json:"firstSeen"`
	LastSuccess       *time.Time        `json:"lastSuccess,omitempty"`
	LastApplied       *time.Time        `json:"lastApplied,omitempty"`
	ConfidenceHistory []ConfidencePoint `json:"confidenceHistory"`
}

// Validation records human review of a learned item.
type Validation struct {
	HumanReviewed bool       `json:"humanReviewed"`
	ReviewedBy    string     `json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
}

// Lesson is a persisted, confidence-scored rule learned from repeated observation.
type Lesson struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Category   LessonCategory `json:"category"`
	Scope      Scope          `json:"scope"`
	Trigger    string         `json:"trigger"`
	Pattern    string         `json:"pattern"`
	JourneyIDs []string       `json:"journeyIds"`
	Tags       []string       `json:"tags"`
	Metrics    LessonMetrics  `json:"metrics"`
	Validation Validation     `json:"validation"`
	Archived   bool           `json:"archived"`
	ArchivedAt *time.Time     `json:"archivedAt,omitempty"`
}

// Validate checks if the lesson has valid field values
func (l *Lesson) Validate() error {
	if strings.TrimSpace(l.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if !l.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", l.Category)
	}
	if !l.Scope.IsValid() {
		return fmt.Errorf("invalid scope: %s", l.Scope)
	}
	if l.Metrics.Occurrences < 0 {
		return fmt.Errorf("occurrences cannot be negative (got %d)", l.Metrics.Occurrences)
	}
	if l.Metrics.SuccessRate < 0 || l.Metrics.SuccessRate > 1 {
		return fmt.Errorf("successRate must be between 0.0 and 1.0 (got %.2f)", l.Metrics.SuccessRate)
	}
	if l.Metrics.Confidence < 0 || l.Metrics.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", l.Metrics.Confidence)
	}
	return nil
}

// HasJourney reports whether the lesson has been applied in the given journey.
func (l *Lesson) HasJourney(journeyID string) bool {
	for _, id := range l.JourneyIDs {
		if id == journeyID {
			return true
		}
	}
	return false
}

// ComponentMetrics tracks how often a component is reused.
type ComponentMetrics struct {
	TotalUses   int        `json:"totalUses"`
	SuccessRate float64    `json:"successRate"`
	LastUsed    *time.Time `json:"lastUsed,omitempty"`
}

// ComponentSource records where a component was extracted from.
type ComponentSource struct {
	OriginalCode  string    `json:"originalCode"`
	ExtractedFrom string    `json:"extractedFrom"`
	ExtractedAt   time.Time `json:"extractedAt"`
}

// Component describes a reusable code unit extracted from generated tests.
type Component struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Category    ComponentCategory `json:"category"`
	Scope       Scope             `json:"scope"`
	FilePath    string            `json:"filePath"`
	Description string            `json:"description"`
	Metrics     ComponentMetrics  `json:"metrics"`
	Source      ComponentSource   `json:"source"`
	Archived    bool              `json:"archived"`
	ArchivedAt  *time.Time        `json:"archivedAt,omitempty"`
}

// Validate checks if the component has valid field values
func (c *Component) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !c.Category.IsValid() {
		return fmt.Errorf("invalid category: %s", c.Category)
	}
	if !c.Scope.IsValid() {
		return fmt.Errorf("invalid scope: %s", c.Scope)
	}
	if c.Metrics.TotalUses < 0 {
		return fmt.Errorf("totalUses cannot be negative (got %d)", c.Metrics.TotalUses)
	}
	if c.Metrics.SuccessRate < 0 || c.Metrics.SuccessRate > 1 {
		return fmt.Errorf("successRate must be between 0.0 and 1.0 (got %.2f)", c.Metrics.SuccessRate)
	}
	return nil
}
