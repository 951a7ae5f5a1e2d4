package quantmodel

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cito-data/test-engine/internal/model"
	"github.com/cito-data/test-engine/internal/testtype"
)

// seasonalBucket accumulates residuals that share a position within some
// periodic cycle (day-of-week, hour-of-day, day-of-year), so its mean can be
// added back onto the trend line as a seasonal offset.
type seasonalBucket struct {
	sum   float64
	count int
}

func (b *seasonalBucket) add(residual float64) {
	b.sum += residual
	b.count++
}

func (b *seasonalBucket) mean() float64 {
	if b.count == 0 {
		return 0
	}
	return b.sum / float64(b.count)
}

// forecastConfig gates which seasonal components are worth fitting, the way
// Prophet's own auto-detection does: a component only helps once there is
// enough history to estimate it without overfitting.
type forecastConfig struct {
	weekly bool
	daily  bool
	yearly bool
}

func detectSeasonality(points []Point) forecastConfig {
	if len(points) < 2 {
		return forecastConfig{}
	}
	span := points[len(points)-1].ExecutedOn.Sub(points[0].ExecutedOn)

	daysSeen := map[int]bool{}
	for _, p := range points {
		daysSeen[p.ExecutedOn.YearDay()+p.ExecutedOn.Year()*1000] = true
	}
	multipleSamplesPerDay := len(daysSeen) < len(points)

	return forecastConfig{
		weekly: span >= 14*24*time.Hour,
		daily:  multipleSamplesPerDay,
		yearly: span >= 300*24*time.Hour,
	}
}

// trend fits an ordinary least-squares line of value against elapsed hours
// since the first observation (gonum's stat.LinearRegression), the same
// role Prophet's piecewise-linear trend component plays: a monotone
// baseline the seasonal buckets then perturb.
func trend(points []Point) (intercept, slope float64) {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	origin := points[0].ExecutedOn
	for i, p := range points {
		xs[i] = p.ExecutedOn.Sub(origin).Hours()
		ys[i] = p.Value
	}
	return stat.LinearRegression(xs, ys, nil, false)
}

// runForecast runs the decomposition analysis: an OLS trend line
// plus, where there is enough history to support them, weekly/daily/yearly
// seasonal offsets estimated from the trend's residuals. The confidence
// band is the residual standard deviation scaled by defaultZBound, mirroring
// the z-score analysis's use of the same boundary constant.
func runForecast(in Inputs) (AnalysisResult, error) {
	cfg := detectSeasonality(in.History)
	intercept, slope := trend(in.History)
	origin := in.History[0].ExecutedOn

	weekBucket := map[time.Weekday]*seasonalBucket{}
	hourBucket := map[int]*seasonalBucket{}
	dayOfYearBucket := map[int]*seasonalBucket{}

	residuals := make([]float64, 0, len(in.History))
	for _, p := range in.History {
		x := p.ExecutedOn.Sub(origin).Hours()
		fitted := intercept + slope*x
		residual := p.Value - fitted
		residuals = append(residuals, residual)

		if cfg.weekly {
			wd := p.ExecutedOn.Weekday()
			if weekBucket[wd] == nil {
				weekBucket[wd] = &seasonalBucket{}
			}
			weekBucket[wd].add(residual)
		}
		if cfg.daily {
			h := p.ExecutedOn.Hour()
			if hourBucket[h] == nil {
				hourBucket[h] = &seasonalBucket{}
			}
			hourBucket[h].add(residual)
		}
		if cfg.yearly {
			yd := p.ExecutedOn.YearDay()
			if dayOfYearBucket[yd] == nil {
				dayOfYearBucket[yd] = &seasonalBucket{}
			}
			dayOfYearBucket[yd].add(residual)
		}
	}

	residualStdDev := stat.StdDev(residuals, nil)

	seasonalOffset := func(ts time.Time) float64 {
		offset := 0.0
		if cfg.weekly {
			if b, ok := weekBucket[ts.Weekday()]; ok {
				offset += b.mean()
			}
		}
		if cfg.daily {
			if b, ok := hourBucket[ts.Hour()]; ok {
				offset += b.mean()
			}
		}
		if cfg.yearly {
			if b, ok := dayOfYearBucket[ts.YearDay()]; ok {
				offset += b.mean()
			}
		}
		return offset
	}

	newX := in.NewPoint.ExecutedOn.Sub(origin).Hours()
	trendValue := intercept + slope*newX
	yhat := trendValue + seasonalOffset(in.NewPoint.ExecutedOn)

	clampExempt := testtype.NonNegativeClampExempt(in.TestType)

	// Each available component (yhat, trend) contributes its own confidence
	// band; the analysis-level bounds are the widest union of those bands,
	// and the expected value is whichever component center sits nearest to
	// the union's midpoint.
	band := defaultZBound * residualStdDev
	yhat = adjust(yhat, clampExempt)
	trendValue = adjust(trendValue, clampExempt)
	lower := adjust(math.Min(yhat-band, trendValue-band), clampExempt)
	upper := adjust(math.Max(yhat+band, trendValue+band), clampExempt)

	if in.ForcedUpper != nil {
		upper = adjust(forcedBound(*in.ForcedUpper, yhat), clampExempt)
	}
	if in.ForcedLower != nil {
		lower = adjust(forcedBound(*in.ForcedLower, yhat), clampExempt)
	}

	expected := closest([]float64{yhat, trendValue}, (lower+upper)/2)

	y := in.NewPoint.Value
	isAnomaly := y > upper || y < lower

	deviation := forecastDeviationSentinel
	if expected != 0 {
		deviation = y/expected - 1
	}

	return AnalysisResult{
		Expected:  expected,
		Upper:     upper,
		Lower:     lower,
		Deviation: deviation,
		IsAnomaly: isAnomaly,
	}, nil
}

// forecastDeviationSentinel is returned when the forecast's expected value
// is exactly zero, since the ratio y/expected is undefined there.
const forecastDeviationSentinel = -9999.0

// forcedBound applies a forced threshold to the forecast center: absolute
// mode replaces it outright, relative mode scales it, mirroring the
// z-score analysis's per-side override rule.
func forcedBound(threshold model.ForcedThreshold, center float64) float64 {
	if threshold.Mode == model.ThresholdModeRelative {
		return center * threshold.Value
	}
	return threshold.Value
}
