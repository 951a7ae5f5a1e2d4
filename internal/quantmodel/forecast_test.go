package quantmodel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cito-data/test-engine/internal/model"
)

func TestDetectSeasonalityRequiresEnoughSpan(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	short := []Point{{ExecutedOn: start, Value: 1}, {ExecutedOn: start.Add(24 * time.Hour), Value: 1}}
	cfg := detectSeasonality(short)
	assert.False(t, cfg.weekly)
	assert.False(t, cfg.yearly)

	long := []Point{{ExecutedOn: start}, {ExecutedOn: start.Add(20 * 24 * time.Hour)}}
	cfg = detectSeasonality(long)
	assert.True(t, cfg.weekly)
}

func TestTrendFitsLinearSlope(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []Point{
		{ExecutedOn: start, Value: 10},
		{ExecutedOn: start.Add(24 * time.Hour), Value: 20},
		{ExecutedOn: start.Add(48 * time.Hour), Value: 30},
	}
	intercept, slope := trend(points)
	assert.InDelta(t, 10, intercept, 1e-6)
	assert.InDelta(t, 10.0/24, slope, 1e-6)
}

func TestRunForecastFlatHistoryNoAnomaly(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	history := stableHistory(30, 200, start)

	result, err := runForecast(Inputs{
		NewPoint: Point{ExecutedOn: start.Add(30 * 24 * time.Hour), Value: 200},
		History:  history,
		TestType: "MaterializationRowCount",
	})

	require.NoError(t, err)
	assert.False(t, result.IsAnomaly)
	assert.InDelta(t, 200, result.Expected, 1)
}

func TestForcedBoundAbsoluteAndRelative(t *testing.T) {
	assert.Equal(t, 42.0, forcedBound(model.ForcedThreshold{Value: 42, Mode: model.ThresholdModeAbsolute}, 10))
	assert.Equal(t, 20.0, forcedBound(model.ForcedThreshold{Value: 2, Mode: model.ThresholdModeRelative}, 10))
}
