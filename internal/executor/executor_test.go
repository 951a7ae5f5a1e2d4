package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cito-data/test-engine/internal/envelope"
	"github.com/cito-data/test-engine/internal/model"
)

func newTestExecutor(storage *fakeStorage, warehouse *fakeWarehouse, now time.Time) *Executor {
	return &Executor{
		Storage:          storage,
		Warehouse:        warehouse,
		Clock:            &fakeClock{now: now},
		NewID:            sequentialIDs("id"),
		BaseURL:          "https://app.example.com/alerts",
		WarmupMaxSamples: DefaultWarmupMaxSamples,
		WarmupMaxDays:    DefaultWarmupMaxDays,
	}
}

func TestExecuteRejectsUnresolvableTenancy(t *testing.T) {
	exec := newTestExecutor(newFakeStorage(&model.TestDefinition{}), &fakeWarehouse{}, time.Now())
	_, err := exec.Execute(context.Background(), Request{TestType: "MaterializationRowCount"}, Auth{})
	assert.Error(t, err)
}

func TestExecuteQuantitativeWarmupSkipsJudgment(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	def := &model.TestDefinition{
		TargetResourceID:     "res-1",
		DatabaseName:         "DB",
		SchemaName:           "PUBLIC",
		MaterializationName:  "ORDERS",
		MaterializationType:  model.MaterializationTable,
	}
	storage := newFakeStorage(def)
	storage.history = stableHistoryPoints(3, 100, start)
	warehouse := &fakeWarehouse{scalar: 100}

	exec := newTestExecutor(storage, warehouse, start.Add(48*time.Hour))

	result, err := exec.Execute(context.Background(), Request{TestSuiteID: "suite-1", TestType: "MaterializationRowCount"}, Auth{CallerOrgID: "org-1"})
	require.NoError(t, err)

	quant, ok := result.(*envelope.QuantResult)
	require.True(t, ok)
	assert.True(t, quant.IsWarmup)
	assert.Nil(t, quant.TestData)
	require.Len(t, storage.historyInsert, 1)
	assert.False(t, storage.historyInsert[0].IsAnomaly)
	assert.Empty(t, storage.alerts)
}

func TestExecuteQuantitativeStableHistoryNoAnomaly(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	def := &model.TestDefinition{
		TargetResourceID:    "res-1",
		DatabaseName:        "DB",
		SchemaName:          "PUBLIC",
		MaterializationName: "ORDERS",
		MaterializationType: model.MaterializationTable,
	}
	storage := newFakeStorage(def)
	storage.history = stableHistoryPoints(40, 100, start)
	warehouse := &fakeWarehouse{scalar: 100}

	exec := newTestExecutor(storage, warehouse, start.Add(40*24*time.Hour))

	result, err := exec.Execute(context.Background(), Request{TestSuiteID: "suite-1", TestType: "MaterializationRowCount"}, Auth{CallerOrgID: "org-1"})
	require.NoError(t, err)

	quant, ok := result.(*envelope.QuantResult)
	require.True(t, ok)
	assert.False(t, quant.IsWarmup)
	require.NotNil(t, quant.TestData)
	assert.Nil(t, quant.TestData.Anomaly)
	assert.Nil(t, quant.AlertData)
	assert.Empty(t, storage.alerts)
}

func TestExecuteQuantitativeAnomalyRaisesAlertAndAdvancesLastAlertSent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	def := &model.TestDefinition{
		TargetResourceID:    "res-1",
		DatabaseName:        "DB",
		SchemaName:          "PUBLIC",
		MaterializationName: "ORDERS",
		MaterializationType: model.MaterializationTable,
	}
	storage := newFakeStorage(def)
	storage.history = stableHistoryPoints(40, 100, start)
	warehouse := &fakeWarehouse{scalar: 100000}

	exec := newTestExecutor(storage, warehouse, start.Add(40*24*time.Hour))

	result, err := exec.Execute(context.Background(), Request{TestSuiteID: "suite-1", TestType: "MaterializationRowCount"}, Auth{CallerOrgID: "org-1"})
	require.NoError(t, err)

	quant, ok := result.(*envelope.QuantResult)
	require.True(t, ok)
	require.NotNil(t, quant.TestData)
	require.NotNil(t, quant.TestData.Anomaly)
	require.NotNil(t, quant.AlertData)
	require.Len(t, storage.alerts, 1)
	assert.Contains(t, storage.alerts[0].Message, "Row count deviation")
	require.NotNil(t, quant.LastAlertSent)
	assert.Equal(t, storage.lastAlertSent["suite-1"], *quant.LastAlertSent)
}

func TestExecuteQuantitativeRecentAlertDoesNotAdvanceLastAlertSent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(40 * 24 * time.Hour)
	recentAlert := now.Add(-1 * time.Hour)
	def := &model.TestDefinition{
		TargetResourceID:     "res-1",
		DatabaseName:         "DB",
		SchemaName:           "PUBLIC",
		MaterializationName:  "ORDERS",
		MaterializationType:  model.MaterializationTable,
		LastAlertSent:        &recentAlert,
	}
	storage := newFakeStorage(def)
	storage.history = stableHistoryPoints(40, 100, start)
	warehouse := &fakeWarehouse{scalar: 100000}

	exec := newTestExecutor(storage, warehouse, now)

	result, err := exec.Execute(context.Background(), Request{TestSuiteID: "suite-1", TestType: "MaterializationRowCount"}, Auth{CallerOrgID: "org-1"})
	require.NoError(t, err)

	quant := result.(*envelope.QuantResult)
	require.NotNil(t, quant.LastAlertSent)
	assert.True(t, quant.LastAlertSent.Equal(recentAlert))
	assert.Empty(t, storage.lastAlertSent)
}

func TestExecuteCustomTestRunsQuantPipeline(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	def := &model.TestDefinition{
		TargetResourceIDs: []string{"res-1", "res-2"},
		SQLLogic:          "select count(*) as anomaly_count from x;",
	}
	storage := newFakeStorage(def)
	storage.history = stableHistoryPoints(40, 50, start)
	warehouse := &fakeWarehouse{metricName: "anomaly_count", metricValue: 50}

	exec := newTestExecutor(storage, warehouse, start.Add(40*24*time.Hour))

	result, err := exec.Execute(context.Background(), Request{TestSuiteID: "suite-1", TestType: ""}, Auth{CallerOrgID: "org-1"})
	require.NoError(t, err)

	custom, ok := result.(*envelope.CustomResult)
	require.True(t, ok)
	assert.False(t, custom.IsWarmup)
	require.NotNil(t, custom.TestData)
	assert.Equal(t, "anomaly_count", custom.TestData.MetricName)
	assert.Equal(t, []string{"res-1", "res-2"}, custom.TargetResourceIDs)
}

func TestExecuteQualitativeIdenticalSchemaNoAlert(t *testing.T) {
	def := &model.TestDefinition{
		TargetResourceID:     "res-1",
		DatabaseName:         "DB",
		SchemaName:           "PUBLIC",
		MaterializationName:  "ORDERS",
		MaterializationType:  model.MaterializationTable,
	}
	storage := newFakeStorage(def)
	cols := []model.ColumnDef{{ColumnName: "id", DataType: "NUMBER", OrdinalPosition: 1}}
	storage.lastQualSchema = &model.QualHistoryEntry{
		Value: model.Schema{"1": cols[0]},
	}
	warehouse := &fakeWarehouse{schema: cols}

	exec := newTestExecutor(storage, warehouse, time.Now())

	result, err := exec.Execute(context.Background(), Request{TestSuiteID: "suite-1", TestType: "MaterializationSchemaChange"}, Auth{CallerOrgID: "org-1"})
	require.NoError(t, err)

	qual, ok := result.(*envelope.QualResult)
	require.True(t, ok)
	require.NotNil(t, qual.TestData)
	assert.True(t, qual.TestData.IsIdentical)
	assert.Nil(t, qual.AlertData)
	assert.Empty(t, storage.alerts)
	require.Len(t, storage.qualExecs, 1)
}

func TestExecuteQualitativeSchemaChangeRaisesAlert(t *testing.T) {
	def := &model.TestDefinition{
		TargetResourceID:    "res-1",
		DatabaseName:        "DB",
		SchemaName:          "PUBLIC",
		MaterializationName: "ORDERS",
		MaterializationType: model.MaterializationTable,
	}
	storage := newFakeStorage(def)
	oldCol := model.ColumnDef{ColumnName: "id", DataType: "NUMBER", OrdinalPosition: 1}
	storage.lastQualSchema = &model.QualHistoryEntry{Value: model.Schema{"1": oldCol}}
	newCol := model.ColumnDef{ColumnName: "id", DataType: "VARCHAR", OrdinalPosition: 1}
	warehouse := &fakeWarehouse{schema: []model.ColumnDef{newCol}}

	exec := newTestExecutor(storage, warehouse, time.Now())

	result, err := exec.Execute(context.Background(), Request{TestSuiteID: "suite-1", TestType: "MaterializationSchemaChange"}, Auth{CallerOrgID: "org-1"})
	require.NoError(t, err)

	qual, ok := result.(*envelope.QualResult)
	require.True(t, ok)
	assert.False(t, qual.TestData.IsIdentical)
	require.NotNil(t, qual.AlertData)
	require.Len(t, storage.alerts, 1)
	assert.Contains(t, storage.alerts[0].Message, "Schema change")
}

func TestExecuteRejectsInvalidForcedThresholdMode(t *testing.T) {
	def := &model.TestDefinition{
		CustomLowerThreshold: &model.ForcedThreshold{Value: 1, Mode: "bogus"},
	}
	storage := newFakeStorage(def)
	warehouse := &fakeWarehouse{scalar: 1}

	exec := newTestExecutor(storage, warehouse, time.Now())

	_, err := exec.Execute(context.Background(), Request{TestSuiteID: "suite-1", TestType: "MaterializationRowCount"}, Auth{CallerOrgID: "org-1"})
	assert.Error(t, err)
}
