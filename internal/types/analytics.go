package types

// AnalyticsOverview holds store-wide totals.
type AnalyticsOverview struct {
	TotalLessons       int     `json:"totalLessons"`
	ActiveLessons      int     `json:"activeLessons"`
	ArchivedLessons    int     `json:"archivedLessons"`
	TotalComponents    int     `json:"totalComponents"`
	ActiveComponents   int     `json:"activeComponents"`
	ArchivedComponents int     `json:"archivedComponents"`
	AvgConfidence      float64 `json:"avgConfidence"`
	AvgSuccessRate     float64 `json:"avgSuccessRate"`
}

// LessonStats breaks active lessons down by category and scope.
type LessonStats struct {
	ByCategory map[string]int `json:"byCategory"`
	ByScope    map[string]int `json:"byScope"`
}

// ComponentStats breaks active components down by category and scope.
type ComponentStats struct {
	ByCategory            map[string]int `json:"byCategory"`
	ByScope               map[string]int `json:"byScope"`
	TotalReuses           int            `json:"totalReuses"`
	AvgReusesPerComponent float64        `json:"avgReusesPerComponent"`
}

// TopItem is one entry of a top-N ranking.
type TopItem struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// TopPerformers lists the best lessons and components.
type TopPerformers struct {
	Lessons    []TopItem `json:"lessons"`
	Components []TopItem `json:"components"`
}

// NeedsReview lists items a human should look at.
type NeedsReview struct {
	LowConfidenceLessons []string `json:"lowConfidenceLessons"`
	LowUsageComponents   []string `json:"lowUsageComponents"`
	DecliningSuccessRate []string `json:"decliningSuccessRate"`
}

// AnalyticsDocument is the content of analytics.json.
type AnalyticsDocument struct {
	Envelope
	Overview       AnalyticsOverview `json:"overview"`
	LessonStats    LessonStats       `json:"lessonStats"`
	ComponentStats ComponentStats    `json:"componentStats"`
	TopPerformers  TopPerformers     `json:"topPerformers"`
	NeedsReview    NeedsReview       `json:"needsReview"`
}

// Module maps a source file to the import path that exports its components.
type Module struct {
	Name       string   `json:"name"`
	FilePath   string   `json:"filePath"`
	ImportPath string   `json:"importPath"`
	Exports    []string `json:"exports"`
	Components []string `json:"components"`
}

// RegistryDocument is the content of registry.json.
type RegistryDocument struct {
	Envelope
	Modules []Module `json:"modules"`
}

// Lookup returns the module exporting the named component.
func (d *RegistryDocument) Lookup(componentName string) (Module, bool) {
	for _, m := range d.Modules {
		for _, e := range m.Exports {
			if e == componentName {
				return m, true
			}
		}
	}
	return Module{}, false
}
