package learning

import (
	"math"
	"time"

	"github.com/steveyegge/llkb/internal/types"
)

// Confidence formula parameters.
const (
	// SaturationOccurrences is where the occurrence factor reaches 1.
	SaturationOccurrences = 10
	// SuccessDecayDays is the recency window once a success was recorded.
	SuccessDecayDays = 90
	// UnprovenDecayDays is the faster window for items that never succeeded.
	UnprovenDecayDays = 30
	// RecencyFloor is the lowest recency factor.
	RecencyFloor = 0.3
	// ReviewMultiplier rewards human-reviewed lessons.
	ReviewMultiplier = 1.2
	// MaxHistoryPoints bounds metrics.confidenceHistory.
	MaxHistoryPoints = 90
)

// Confidence computes a lesson's confidence from its metrics:
//
//	min(occurrences/10, 1) × sqrt(successRate) × recency × (1.2 if reviewed)
//
// Recency decays over 90 days from the last success, or over 30 days from
// first sight when the lesson has never succeeded. The result is clamped to
// [0, 1] and rounded to two decimals.
func Confidence(m types.LessonMetrics, reviewed bool, now time.Time) float64 {
	base := math.Min(float64(m.Occurrences)/SaturationOccurrences, 1)
	success := math.Sqrt(math.Max(0, m.SuccessRate))

	var recency float64
	if m.LastSuccess != nil {
		recency = decay(now.Sub(*m.LastSuccess), SuccessDecayDays)
	} else {
		recency = decay(now.Sub(m.FirstSeen), UnprovenDecayDays)
	}

	c := base * success * recency
	if reviewed {
		c *= ReviewMultiplier
	}
	c = math.Max(0, math.Min(1, c))
	return math.Round(c*100) / 100
}

func decay(elapsed time.Duration, windowDays float64) float64 {
	days := elapsed.Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Max(RecencyFloor, 1-days/windowDays)
}

// appendHistory records a confidence point, keeping the newest
// MaxHistoryPoints.
func appendHistory(h []types.ConfidencePoint, value float64, now time.Time) []types.ConfidencePoint {
	h = append(h, types.ConfidencePoint{Date: now.UTC(), Value: value})
	if len(h) > MaxHistoryPoints {
		h = append([]types.ConfidencePoint(nil), h[len(h)-MaxHistoryPoints:]...)
	}
	return h
}

// runningRate folds one outcome into a success rate over n-1 prior samples.
func runningRate(rate float64, n int, success bool) float64 {
	if n <= 0 {
		return 0
	}
	s := 0.0
	if success {
		s = 1
	}
	r := (rate*float64(n-1) + s) / float64(n)
	return math.Round(r*1000) / 1000
}
