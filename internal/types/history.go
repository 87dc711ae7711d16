package types

import (
	"fmt"
	"time"
)

// EventType names a learning event in the history log.
type EventType string

const (
	EventLessonApplied      EventType = "lesson_applied"
	EventComponentUsed      EventType = "component_used"
	EventPatternApplied     EventType = "pattern_applied"
	EventComponentExtracted EventType = "component_extracted"
	EventLessonPromoted     EventType = "lesson_promoted"
	EventLessonArchived     EventType = "lesson_archived"
	EventComponentArchived  EventType = "component_archived"
	EventDiscoveryRun       EventType = "discovery_run"
)

// IsValid checks if the event type value is valid
func (e EventType) IsValid() bool {
	switch e {
	case EventLessonApplied, EventComponentUsed, EventPatternApplied, EventComponentExtracted,
		EventLessonPromoted, EventLessonArchived, EventComponentArchived, EventDiscoveryRun:
		return true
	}
	return false
}

// HistoryEvent is one line of history/YYYY-MM-DD.jsonl. Events are immutable
// once written.
type HistoryEvent struct {
	ID          string         `json:"id"`
	Event       EventType      `json:"event"`
	Timestamp   time.Time      `json:"timestamp"`
	JourneyID   string         `json:"journeyId,omitempty"`
	Prompt      string         `json:"prompt,omitempty"`
	Success     *bool          `json:"success,omitempty"`
	LessonID    string         `json:"lessonId,omitempty"`
	ComponentID string         `json:"componentId,omitempty"`
	PatternID   string         `json:"patternId,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Validate checks if the event has valid field values
func (e *HistoryEvent) Validate() error {
	if !e.Event.IsValid() {
		return fmt.Errorf("invalid event type: %s", e.Event)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// BoolPtr returns a pointer to b, for optional fields such as HistoryEvent.Success.
func BoolPtr(b bool) *bool {
	return &b
}
