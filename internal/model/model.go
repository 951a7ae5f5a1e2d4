// Package model holds the entities the test execution engine reads and
// writes: test definitions, execution/history/result/alert records, and the
// value types shared by the quantitative and qualitative analyses.
package model

import "time"

// ThresholdMode selects how a ForcedThreshold.Value is interpreted.
type ThresholdMode string

const (
	ThresholdModeAbsolute ThresholdMode = "absolute"
	ThresholdModeRelative ThresholdMode = "relative"
)

// ThresholdSource identifies who supplied a ForcedThreshold.
type ThresholdSource string

const (
	ThresholdSourceFeedback ThresholdSource = "feedback"
	ThresholdSourceCustom   ThresholdSource = "custom"
)

// ForcedThreshold overrides one side (lower or upper) of the model-derived
// bound. Custom always outranks feedback when both are present for a side.
type ForcedThreshold struct {
	Value  float64
	Mode   ThresholdMode
	Source ThresholdSource
}

// MaterializationType distinguishes a warehouse table from a view; it
// changes which SQL contract the row-count query builder emits.
type MaterializationType string

const (
	MaterializationTable MaterializationType = "table"
	MaterializationView  MaterializationType = "view"
)

// TestDefinition is the per-suite configuration read by the executor. Only
// the fields relevant to the suite's test kind are populated; the executor
// treats the others as zero values.
type TestDefinition struct {
	ID                     string
	TestType               string // empty ⇒ Custom, see testtype.Classify
	TargetResourceID       string
	TargetResourceIDs      []string // custom tests reference zero or more resources
	DatabaseName           string
	SchemaName             string
	MaterializationName    string
	MaterializationType    MaterializationType
	ColumnName             string
	SQLLogic               string // custom tests only
	CustomLowerThreshold   *ForcedThreshold
	CustomUpperThreshold   *ForcedThreshold
	FeedbackLowerThreshold *ForcedThreshold
	FeedbackUpperThreshold *ForcedThreshold
	LastAlertSent          *time.Time
}

// ExecutionRecord is created once per invocation, before any Result/History/
// Alert is inserted.
type ExecutionRecord struct {
	ID          string
	ExecutedOn  time.Time
	TestSuiteID string
}

// HistoryEntry is one quantitative measurement. UserFeedbackIsAnomaly is -1,
// 0, or 1; 0 means the user explicitly confirmed the point is not an
// anomaly, which overrides IsAnomaly when loading history.
type HistoryEntry struct {
	ID                     string
	TestType               string
	Value                  float64
	IsAnomaly              bool
	UserFeedbackIsAnomaly  int
	TestSuiteID            string
	ExecutionID            string
	AlertID                *string
	ExecutedOn             time.Time
}

// ColumnDef is one element of a materialization's schema.
type ColumnDef struct {
	ColumnName      string
	DataType        string
	IsIdentity      bool
	IsNullable      bool
	OrdinalPosition int
}

// Schema maps 1-based ordinal position (as a string key) to the column
// definition at that position.
type Schema map[string]ColumnDef

// QualHistoryEntry is one schema snapshot.
type QualHistoryEntry struct {
	ID          string
	Value       Schema
	IsIdentical bool
	ExecutionID string
	AlertID     *string
	ExecutedOn  time.Time
}

// FieldDiff pairs the old and new value of one column attribute. Either side
// may be nil. A nil FieldDiff means the attribute was unchanged.
type FieldDiff struct {
	Old any
	New any
}

// SchemaDiff is a per-column change record. ColumnName and OrdinalPosition
// are always populated (they identify the row); the rest are nil when that
// attribute is unchanged.
type SchemaDiff struct {
	ColumnName      FieldDiff
	OrdinalPosition FieldDiff
	DataType        *FieldDiff
	IsIdentity      *FieldDiff
	IsNullable      *FieldDiff
}

// QuantResult is the persisted statistics record for a quantitative test.
type QuantResult struct {
	MeanAD         float64
	MedianAD       float64
	ModifiedZScore float64
	ExpectedValue  float64
	ExpectedUpper  float64
	ExpectedLower  float64
	Deviation      float64
	IsAnomalous    bool
	Importance     *float64
}

// QualResult is the persisted diff record for a qualitative test.
type QualResult struct {
	ExpectedValue Schema // nil when there was no prior snapshot
	Deviations    []SchemaDiff
	IsIdentical   bool
}

// Alert is created only when a run's decision is anomalous / not identical.
type Alert struct {
	ID          string
	TestType    string
	Message     string
	TestSuiteID string
	ExecutionID string
}
