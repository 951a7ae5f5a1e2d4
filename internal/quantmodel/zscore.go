package quantmodel

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/cito-data/test-engine/internal/model"
	"github.com/cito-data/test-engine/internal/testtype"
)

// madScale and meanADScale convert the median/mean absolute deviation into a
// normal-equivalent standard deviation (the modified z-score's constants,
// per the IBM Cognos reference for robust outlier detection).
const (
	madScale    = 1.486
	meanADScale = 1.253314
)

// runZScore runs the robust modified z-score analysis against the
// reference distribution formed by in.History (in.NewPoint.Value is not
// part of the reference distribution).
func runZScore(in Inputs) (AnalysisResult, ZScoreDetail, error) {
	values := make([]float64, len(in.History))
	for i, p := range in.History {
		values[i] = p.Value
	}
	data := stats.LoadRawData(values)

	median, err := stats.Median(data)
	if err != nil {
		return AnalysisResult{}, ZScoreDetail{}, err
	}
	mean, err := stats.Mean(data)
	if err != nil {
		return AnalysisResult{}, ZScoreDetail{}, err
	}

	absDevFromMedian := make([]float64, len(values))
	absDevFromMean := make([]float64, len(values))
	for i, v := range values {
		absDevFromMedian[i] = math.Abs(v - median)
		absDevFromMean[i] = math.Abs(v - mean)
	}
	medianAD, err := stats.Median(stats.LoadRawData(absDevFromMedian))
	if err != nil {
		return AnalysisResult{}, ZScoreDetail{}, err
	}
	meanAD, err := stats.Mean(stats.LoadRawData(absDevFromMean))
	if err != nil {
		return AnalysisResult{}, ZScoreDetail{}, err
	}

	y := in.NewPoint.Value

	z := modifiedZScore(y, median, medianAD, meanAD)

	clampExempt := testtype.NonNegativeClampExempt(in.TestType)

	expected := adjust(median, clampExempt)
	upperBound, upperZ := bound(median, medianAD, meanAD, defaultZBound, clampExempt)
	lowerBound, lowerZ := bound(median, medianAD, meanAD, -defaultZBound, clampExempt)

	if in.ForcedUpper != nil {
		upperBound, upperZ = applyForced(*in.ForcedUpper, median, medianAD, meanAD, clampExempt)
	}
	if in.ForcedLower != nil {
		lowerBound, lowerZ = applyForced(*in.ForcedLower, median, medianAD, meanAD, clampExempt)
	}

	isAnomaly := (math.IsNaN(z) && y != median) || z > upperZ || z < lowerZ

	deviation := 0.0
	if expected > 0 {
		deviation = y/expected - 1
	}

	detail := ZScoreDetail{
		Median:         median,
		MedianAD:       medianAD,
		MeanAD:         meanAD,
		ModifiedZScore: z,
	}

	return AnalysisResult{
		Expected:  expected,
		Upper:     upperBound,
		Lower:     lowerBound,
		Deviation: deviation,
		IsAnomaly: isAnomaly,
	}, detail, nil
}

// modifiedZScore implements the three-way branch: MAD-scaled, mean-AD-scaled
// as a fallback when MAD is zero, or undefined when both are zero.
func modifiedZScore(y, median, medianAD, meanAD float64) float64 {
	switch {
	case medianAD > 0:
		return (y - median) / (madScale * medianAD)
	case meanAD > 0:
		return (y - median) / (meanADScale * meanAD)
	default:
		return math.NaN()
	}
}

// bound computes the bound at z-score threshold t and the z-boundary that
// produced it (trivially t itself, since bound() is only ever called with
// the default ±3.0 threshold here).
func bound(median, medianAD, meanAD, zScoreThreshold float64, clampExempt bool) (value float64, zBoundary float64) {
	var b float64
	if medianAD > 0 {
		b = madScale*medianAD*zScoreThreshold + median
	} else {
		b = meanADScale*meanAD*zScoreThreshold + median
	}
	return adjust(b, clampExempt), zScoreThreshold
}

// applyForced implements the per-side forced threshold rule: in
// absolute mode the bound becomes the threshold value outright; in relative
// mode it scales the reference median. Either way we also derive the
// z-boundary that bound corresponds to, so the z-based anomaly decision
// stays consistent with a forced bound.
func applyForced(threshold model.ForcedThreshold, median, medianAD, meanAD float64, clampExempt bool) (value float64, zBoundary float64) {
	var b float64
	switch threshold.Mode {
	case model.ThresholdModeRelative:
		b = median * threshold.Value
	default: // absolute
		b = threshold.Value
	}
	b = adjust(b, clampExempt)

	switch {
	case medianAD > 0:
		zBoundary = (b - median) / (madScale * medianAD)
	case meanAD > 0:
		zBoundary = (b - median) / (meanADScale * meanAD)
	default:
		zBoundary = math.NaN()
	}
	return b, zBoundary
}

// adjust applies the non-negativity clamp: every metric except
// ColumnDistribution and ColumnFreshness clamps negative bounds/expected
// values to zero.
func adjust(value float64, clampExempt bool) float64 {
	if !clampExempt && value < 0 {
		return 0
	}
	return value
}
