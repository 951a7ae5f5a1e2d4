// Package quantmodel implements the quantitative analysis pipeline:
// two independent analyses — a robust modified z-score and a forecast
// decomposition — fused into one bounds/decision pair, with forced
// thresholds and a domain-adjusted non-negativity clamp applied throughout.
package quantmodel

import (
	"time"

	"github.com/cito-data/test-engine/internal/model"
)

// Point is one (timestamp, value) observation.
type Point struct {
	ExecutedOn time.Time
	Value      float64
}

// AnalysisResult is a single {expected, upper, lower, deviation, isAnomaly}
// struct shared by both
// analyses, with analysis-specific fields (z-score internals) kept in an
// orthogonal struct used only for persistence.
type AnalysisResult struct {
	Expected    float64
	Upper       float64
	Lower       float64
	Deviation   float64
	IsAnomaly   bool
}

// ZScoreDetail carries the z-score analysis's own statistics, persisted
// alongside the fused AnalysisResult but not used by the fusion step itself.
type ZScoreDetail struct {
	Median         float64
	MedianAD       float64
	MeanAD         float64
	ModifiedZScore float64
}

// Inputs bundles everything the two analyses and the fusion step need.
type Inputs struct {
	NewPoint    Point
	History     []Point // ascending by ExecutedOn
	TestType    string
	ForcedLower *model.ForcedThreshold
	ForcedUpper *model.ForcedThreshold
}

// FusedResult is the final decision plus the statistics the executor
// persists as a model.QuantResult.
type FusedResult struct {
	ZScore     ZScoreDetail
	Expected   float64
	Upper      float64
	Lower      float64
	Deviation  float64
	IsAnomaly  bool
	Importance *float64
}

// importanceThreshold is the global gate an anomaly's importance must clear
// to remain an anomaly after fusion. This constant is the only
// authoritative threshold; there is no per-test-type override.
const importanceThreshold = 0.1

// defaultZBound is the z-score boundary used when no forced threshold
// overrides a side.
const defaultZBound = 3.0

func closest(candidates []float64, target float64) float64 {
	best := candidates[0]
	for _, c := range candidates {
		if absF(c-target) < absF(best-target) {
			best = c
		}
	}
	return best
}

func absF(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
