// Package analytics computes analytics.json as a deterministic aggregate over
// the lessons and components documents.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/steveyegge/llkb/internal/storage"
	"github.com/steveyegge/llkb/internal/types"
)

// Review thresholds.
const (
	TopN            = 5
	LowConfidence   = 0.4
	LowUsage        = 2
	LowUsageGrace   = 30 * 24 * time.Hour
	DecliningWindow = 5
	DecliningDrop   = 0.1
)

// Compute aggregates lessons and components. Archived items count only in
// the overview totals. Output is stable for the same input.
func Compute(lessons []types.Lesson, components []types.Component, now time.Time) *types.AnalyticsDocument {
	doc := &types.AnalyticsDocument{
		Envelope: types.Envelope{Version: types.CurrentVersion, LastUpdated: now.UTC()},
		LessonStats: types.LessonStats{
			ByCategory: map[string]int{},
			ByScope:    map[string]int{},
		},
		ComponentStats: types.ComponentStats{
			ByCategory: map[string]int{},
			ByScope:    map[string]int{},
		},
		TopPerformers: types.TopPerformers{Lessons: []types.TopItem{}, Components: []types.TopItem{}},
		NeedsReview: types.NeedsReview{
			LowConfidenceLessons: []string{},
			LowUsageComponents:   []string{},
			DecliningSuccessRate: []string{},
		},
	}

	var confSum, rateSum float64
	var lessonTop []types.TopItem
	for _, l := range lessons {
		doc.Overview.TotalLessons++
		if l.Archived {
			doc.Overview.ArchivedLessons++
			continue
		}
		doc.Overview.ActiveLessons++
		doc.LessonStats.ByCategory[string(l.Category)]++
		doc.LessonStats.ByScope[string(l.Scope)]++
		confSum += l.Metrics.Confidence
		rateSum += l.Metrics.SuccessRate
		lessonTop = append(lessonTop, types.TopItem{ID: l.ID, Name: l.Title, Score: round2(l.Metrics.Confidence * l.Metrics.SuccessRate)})

		if l.Metrics.Confidence < LowConfidence {
			doc.NeedsReview.LowConfidenceLessons = append(doc.NeedsReview.LowConfidenceLessons, l.ID)
		}
		if declining(l.Metrics.ConfidenceHistory) {
			doc.NeedsReview.DecliningSuccessRate = append(doc.NeedsReview.DecliningSuccessRate, l.ID)
		}
	}
	if n := doc.Overview.ActiveLessons; n > 0 {
		doc.Overview.AvgConfidence = round2(confSum / float64(n))
		doc.Overview.AvgSuccessRate = round2(rateSum / float64(n))
	}

	var componentTop []types.TopItem
	for _, c := range components {
		doc.Overview.TotalComponents++
		if c.Archived {
			doc.Overview.ArchivedComponents++
			continue
		}
		doc.Overview.ActiveComponents++
		doc.ComponentStats.ByCategory[string(c.Category)]++
		doc.ComponentStats.ByScope[string(c.Scope)]++
		doc.ComponentStats.TotalReuses += c.Metrics.TotalUses
		componentTop = append(componentTop, types.TopItem{ID: c.ID, Name: c.Name, Score: round2(float64(c.Metrics.TotalUses) * c.Metrics.SuccessRate)})

		extracted := c.Source.ExtractedAt
		if c.Metrics.TotalUses < LowUsage && !extracted.IsZero() && now.Sub(extracted) > LowUsageGrace {
			doc.NeedsReview.LowUsageComponents = append(doc.NeedsReview.LowUsageComponents, c.ID)
		}
	}
	if n := doc.Overview.ActiveComponents; n > 0 {
		doc.ComponentStats.AvgReusesPerComponent = round2(float64(doc.ComponentStats.TotalReuses) / float64(n))
	}

	doc.TopPerformers.Lessons = top(lessonTop, TopN)
	doc.TopPerformers.Components = top(componentTop, TopN)
	sort.Strings(doc.NeedsReview.LowConfidenceLessons)
	sort.Strings(doc.NeedsReview.LowUsageComponents)
	sort.Strings(doc.NeedsReview.DecliningSuccessRate)
	return doc
}

// Recompute loads lessons and components from the store, computes the
// aggregate and replaces analytics.json.
func Recompute(ctx context.Context, store *storage.Store) (*types.AnalyticsDocument, error) {
	lessons, err := store.LoadLessons()
	if err != nil {
		return nil, fmt.Errorf("failed to load lessons: %w", err)
	}
	components, err := store.LoadComponents()
	if err != nil {
		return nil, fmt.Errorf("failed to load components: %w", err)
	}
	computed := Compute(lessons.Lessons, components.Components, store.Now())
	err = store.UpdateAnalytics(ctx, func(d *types.AnalyticsDocument) error {
		*d = *computed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save analytics: %w", err)
	}
	return computed, nil
}

// declining reports whether confidence fell by at least DecliningDrop over
// the last DecliningWindow points.
func declining(history []types.ConfidencePoint) bool {
	if len(history) < 2 {
		return false
	}
	window := history
	if len(window) > DecliningWindow {
		window = window[len(window)-DecliningWindow:]
	}
	return window[0].Value-window[len(window)-1].Value >= DecliningDrop-1e-9
}

func top(items []types.TopItem, n int) []types.TopItem {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	if len(items) > n {
		items = items[:n]
	}
	if items == nil {
		return []types.TopItem{}
	}
	return items
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
