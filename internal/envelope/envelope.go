// Package envelope holds the tagged execution-result records the executor
// returns: warm-up, normal, and anomalous quantitative results, qualitative
// results, and
// custom results all share a common head but carry different bodies, so
// each gets its own struct rather than one record with a pile of optional
// fields.
package envelope

import (
	"time"

	"github.com/cito-data/test-engine/internal/model"
)

// Head is embedded by every envelope kind.
type Head struct {
	TestSuiteID    string `json:"testSuiteId"`
	TestType       string `json:"testType"`
	ExecutionID    string `json:"executionId"`
	OrganizationID string `json:"organizationId"`
}

// QuantTestData is the per-point statistics surfaced to the caller for a
// quantitative run; Anomaly is nil on a non-anomalous run.
type QuantTestData struct {
	ExecutedOn         time.Time     `json:"executedOn"`
	DetectedValue      float64       `json:"detectedValue"`
	ExpectedUpperBound float64       `json:"expectedUpperBound"`
	ExpectedLowerBound float64       `json:"expectedLowerBound"`
	ModifiedZScore     *float64      `json:"modifiedZScore,omitempty"`
	Deviation          float64       `json:"deviation"`
	Anomaly            *AnomalyDelta `json:"anomaly,omitempty"`
}

// AnomalyDelta carries the fused importance score; present only
// when the run's decision is anomalous.
type AnomalyDelta struct {
	Importance float64 `json:"importance"`
}

// QuantAlertData is the alert body for a quantitative anomaly.
type QuantAlertData struct {
	AlertID              string  `json:"alertId"`
	Message              string  `json:"message"`
	DatabaseName         string  `json:"databaseName"`
	SchemaName           string  `json:"schemaName"`
	MaterializationName  string  `json:"materializationName"`
	MaterializationType  string  `json:"materializationType"`
	ExpectedValue        float64 `json:"expectedValue"`
	ColumnName           *string `json:"columnName,omitempty"`
}

// QuantResult is the envelope for a built-in quantitative test.
type QuantResult struct {
	Head
	TargetResourceID string          `json:"targetResourceId"`
	IsWarmup         bool            `json:"isWarmup"`
	TestData         *QuantTestData  `json:"testData,omitempty"`
	AlertData        *QuantAlertData `json:"alertData,omitempty"`
	LastAlertSent    *time.Time      `json:"lastAlertSent,omitempty"`
}

// QualTestData is the per-run diff surfaced to the caller for a qualitative
// run.
type QualTestData struct {
	ExecutedOn  time.Time          `json:"executedOn"`
	Deviations  []model.SchemaDiff `json:"deviations"`
	IsIdentical bool               `json:"isIdentical"`
}

// QualAlertData is the alert body for a qualitative schema change.
type QualAlertData struct {
	AlertID             string             `json:"alertId"`
	Message             string             `json:"message"`
	DatabaseName        string             `json:"databaseName"`
	SchemaName          string             `json:"schemaName"`
	MaterializationName string             `json:"materializationName"`
	MaterializationType string             `json:"materializationType"`
	Deviations          []model.SchemaDiff `json:"deviations"`
}

// QualResult is the envelope for a schema-change test: the same shape as
// QuantResult minus IsWarmup and LastAlertSent. A schema-change run neither
// reports nor advances the suite's lastAlertSent.
type QualResult struct {
	Head
	TargetResourceID string         `json:"targetResourceId"`
	TestData         *QualTestData  `json:"testData,omitempty"`
	AlertData        *QualAlertData `json:"alertData,omitempty"`
}

// CustomTestData is the per-run statistics for a custom test; it mirrors
// QuantTestData plus the metric name the user's SQL produced.
type CustomTestData struct {
	MetricName         string        `json:"metricName"`
	ExecutedOn         time.Time     `json:"executedOn"`
	DetectedValue      float64       `json:"detectedValue"`
	ExpectedUpperBound float64       `json:"expectedUpperBound"`
	ExpectedLowerBound float64       `json:"expectedLowerBound"`
	ModifiedZScore     *float64      `json:"modifiedZScore,omitempty"`
	Deviation          float64       `json:"deviation"`
	Anomaly            *AnomalyDelta `json:"anomaly,omitempty"`
}

// CustomAlertData is the alert body for a custom test: no fixed resource
// triple, just the expected value and the message built from the metric
// name.
type CustomAlertData struct {
	AlertID       string  `json:"alertId"`
	Message       string  `json:"message"`
	ExpectedValue float64 `json:"expectedValue"`
}

// CustomResult is the envelope for a custom test: TargetResourceIDs is
// a list, mirroring the suite's own TargetResourceIDs field.
type CustomResult struct {
	Head
	TargetResourceIDs []string         `json:"targetResourceIds"`
	IsWarmup          bool             `json:"isWarmup"`
	TestData          *CustomTestData  `json:"testData,omitempty"`
	AlertData         *CustomAlertData `json:"alertData,omitempty"`
	LastAlertSent     *time.Time       `json:"lastAlertSent,omitempty"`
}
