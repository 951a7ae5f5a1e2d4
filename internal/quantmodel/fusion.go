package quantmodel

import "math"

// Run executes the full quantitative pipeline: the z-score and
// forecast analyses run independently against the same history, their
// bounds are fused into the widest union, the expected value is whichever
// analysis's center sits closest to the fused midpoint, and a preliminary
// anomaly (both analyses must agree) is importance-gated so a borderline
// violation doesn't surface as an alert.
func Run(in Inputs) (FusedResult, error) {
	z, zDetail, err := runZScore(in)
	if err != nil {
		return FusedResult{}, err
	}
	f, err := runForecast(in)
	if err != nil {
		return FusedResult{}, err
	}

	finalLower := math.Min(z.Lower, f.Lower)
	finalUpper := math.Max(z.Upper, f.Upper)
	midpoint := (finalLower + finalUpper) / 2
	finalExpected := closest([]float64{z.Expected, f.Expected}, midpoint)

	y := in.NewPoint.Value
	preliminaryAnomaly := z.IsAnomaly && f.IsAnomaly && (y < finalLower || y > finalUpper)

	deviation := z.Deviation
	if absF(f.Expected-y) < absF(z.Expected-y) {
		deviation = f.Deviation
	}

	var importance *float64
	isAnomaly := false
	if preliminaryAnomaly {
		imp := importanceScore(y, finalUpper, finalLower)
		importance = &imp
		isAnomaly = imp > importanceThreshold
	}

	return FusedResult{
		ZScore:     zDetail,
		Expected:   finalExpected,
		Upper:      finalUpper,
		Lower:      finalLower,
		Deviation:  deviation,
		IsAnomaly:  isAnomaly,
		Importance: importance,
	}, nil
}

// importanceScore is the distance from the nearest violated bound expressed
// as a fraction of the bound interval.
func importanceScore(y, upper, lower float64) float64 {
	distance := lower - y
	if y > upper {
		distance = y - upper
	}
	span := upper - lower
	if span == 0 {
		return 1
	}
	return distance / span
}
