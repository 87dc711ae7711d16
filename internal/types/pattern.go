package types

import (
	"fmt"
	"time"
)

// Layer says whether a pattern was learned from the application or shipped
// with a framework pack.
type Layer string

const (
	LayerAppSpecific Layer = "app-specific"
	LayerFramework   Layer = "framework"
)

// IsValid checks if the layer value is valid
func (l Layer) IsValid() bool {
	return l == LayerAppSpecific || l == LayerFramework
}

// PatternSource is the pipeline stage that produced a pattern. It decides the
// seed confidence and the signal tier applied during quality control.
type PatternSource string

const (
	// SourceDiscovery patterns are bound to structure mined from the project
	SourceDiscovery PatternSource = "discovery"
	// SourceTemplate patterns come from the generic CRUD/notification catalogue
	SourceTemplate PatternSource = "template"
	// SourceFramework patterns come from a framework/UI-library pack
	SourceFramework PatternSource = "framework"
	// SourceSignal patterns come from passive signals (i18n, analytics, flags)
	SourceSignal PatternSource = "signal"
)

// IsValid checks if the pattern source value is valid
func (s PatternSource) IsValid() bool {
	switch s {
	case SourceDiscovery, SourceTemplate, SourceFramework, SourceSignal:
		return true
	}
	return false
}

// SignalTier is the strength classification used for confidence floors.
type SignalTier string

const (
	TierStrong SignalTier = "strong"
	TierMedium SignalTier = "medium"
	TierWeak   SignalTier = "weak"
)

// Tier maps a pattern source onto its signal tier.
func (s PatternSource) Tier() SignalTier {
	switch s {
	case SourceDiscovery:
		return TierStrong
	case SourceTemplate, SourceFramework:
		return TierMedium
	default:
		return TierWeak
	}
}

// Action is the structured step a phrase maps to.
type Action string

const (
	ActionClick    Action = "click"
	ActionFill     Action = "fill"
	ActionSelect   Action = "select"
	ActionCheck    Action = "check"
	ActionNavigate Action = "navigate"
	ActionAssert   Action = "assert"
	ActionHover    Action = "hover"
	ActionUpload   Action = "upload"
	ActionWait     Action = "wait"
)

// IsValid checks if the action value is valid
func (a Action) IsValid() bool {
	switch a {
	case ActionClick, ActionFill, ActionSelect, ActionCheck, ActionNavigate,
		ActionAssert, ActionHover, ActionUpload, ActionWait:
		return true
	}
	return false
}

// SelectorStrategy names how a selector hint locates an element.
type SelectorStrategy string

const (
	StrategyTestID      SelectorStrategy = "testid"
	StrategyRole        SelectorStrategy = "role"
	StrategyLabel       SelectorStrategy = "label"
	StrategyText        SelectorStrategy = "text"
	StrategyPlaceholder SelectorStrategy = "placeholder"
	StrategyCSS         SelectorStrategy = "css"
)

// SelectorHint is a suggested locator for the element a pattern acts on.
type SelectorHint struct {
	Strategy   SelectorStrategy `json:"strategy"`
	Value      string           `json:"value"`
	Confidence float64          `json:"confidence"`
}

// DiscoveredPattern is a candidate phrase-to-action mapping.
type DiscoveredPattern struct {
	ID             string         `json:"id"`
	NormalizedText string         `json:"normalizedText"`
	OriginalText   string         `json:"originalText"`
	MappedAction   Action         `json:"mappedAction"`
	SelectorHints  []SelectorHint `json:"selectorHints"`
	Confidence     float64        `json:"confidence"`
	Layer          Layer          `json:"layer"`
	Category       string         `json:"category"`
	Source         PatternSource  `json:"source"`
	SourceJourneys []string       `json:"sourceJourneys"`
	SuccessCount   int            `json:"successCount"`
	FailCount      int            `json:"failCount"`
	TemplateSource string         `json:"templateSource"`
	EntityName     string         `json:"entityName,omitempty"`
	LastUsed       *time.Time     `json:"lastUsed,omitempty"`
}

// Validate checks if the pattern has valid field values
func (p *DiscoveredPattern) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if p.NormalizedText == "" {
		return fmt.Errorf("normalizedText is required")
	}
	if !p.MappedAction.IsValid() {
		return fmt.Errorf("invalid mapped action: %s", p.MappedAction)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %.2f)", p.Confidence)
	}
	if !p.Layer.IsValid() {
		return fmt.Errorf("invalid layer: %s", p.Layer)
	}
	return nil
}

// Attempts is the number of recorded applications of the pattern.
func (p *DiscoveredPattern) Attempts() int {
	return p.SuccessCount + p.FailCount
}

// BestSelector returns the highest-confidence selector hint, if any.
func (p *DiscoveredPattern) BestSelector() (SelectorHint, bool) {
	var best SelectorHint
	found := false
	for _, h := range p.SelectorHints {
		if !found || h.Confidence > best.Confidence {
			best = h
			found = true
		}
	}
	return best, found
}

// Clone returns a deep copy so pipeline stages never alias slices.
func (p DiscoveredPattern) Clone() DiscoveredPattern {
	out := p
	out.SelectorHints = append([]SelectorHint(nil), p.SelectorHints...)
	out.SourceJourneys = append([]string(nil), p.SourceJourneys...)
	if p.LastUsed != nil {
		t := *p.LastUsed
		out.LastUsed = &t
	}
	return out
}
