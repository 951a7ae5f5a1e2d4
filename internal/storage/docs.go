package storage

import (
	"time"

	"github.com/cito-data/test-engine/internal/model"
)

// testSuiteDoc is the on-disk shape of a test_suites{,_qual,_custom}
// document; it exists so bson tag names can diverge from the Go-idiomatic
// model.TestDefinition field names without leaking struct tags into model.
type testSuiteDoc struct {
	ID                     string                 `bson:"id"`
	TestType               string                 `bson:"test_type"`
	TargetResourceID       string                 `bson:"target_resource_id"`
	TargetResourceIDs      []string               `bson:"target_resource_ids"`
	DatabaseName           string                 `bson:"database_name"`
	SchemaName             string                 `bson:"schema_name"`
	MaterializationName    string                 `bson:"materialization_name"`
	MaterializationType    string                 `bson:"materialization_type"`
	ColumnName             string                 `bson:"column_name"`
	SQLLogic               string                 `bson:"sql_logic"`
	CustomLowerThreshold   *forcedThresholdDoc    `bson:"custom_lower_threshold"`
	CustomUpperThreshold   *forcedThresholdDoc    `bson:"custom_upper_threshold"`
	FeedbackLowerThreshold *forcedThresholdDoc    `bson:"feedback_lower_threshold"`
	FeedbackUpperThreshold *forcedThresholdDoc    `bson:"feedback_upper_threshold"`
	LastAlertSent          *time.Time             `bson:"last_alert_sent"`
}

type forcedThresholdDoc struct {
	Value  float64 `bson:"value"`
	Mode   string  `bson:"mode"`
	Source string  `bson:"source"`
}

func (d *forcedThresholdDoc) toModel() *model.ForcedThreshold {
	if d == nil {
		return nil
	}
	return &model.ForcedThreshold{
		Value:  d.Value,
		Mode:   model.ThresholdMode(d.Mode),
		Source: model.ThresholdSource(d.Source),
	}
}

func (d *testSuiteDoc) toModel() *model.TestDefinition {
	return &model.TestDefinition{
		ID:                     d.ID,
		TestType:               d.TestType,
		TargetResourceID:       d.TargetResourceID,
		TargetResourceIDs:      d.TargetResourceIDs,
		DatabaseName:           d.DatabaseName,
		SchemaName:             d.SchemaName,
		MaterializationName:    d.MaterializationName,
		MaterializationType:    model.MaterializationType(d.MaterializationType),
		ColumnName:             d.ColumnName,
		SQLLogic:               d.SQLLogic,
		CustomLowerThreshold:   d.CustomLowerThreshold.toModel(),
		CustomUpperThreshold:   d.CustomUpperThreshold.toModel(),
		FeedbackLowerThreshold: d.FeedbackLowerThreshold.toModel(),
		FeedbackUpperThreshold: d.FeedbackUpperThreshold.toModel(),
		LastAlertSent:          d.LastAlertSent,
	}
}

// columnDefDoc mirrors model.ColumnDef as the bson shape of one column in a
// schema snapshot stored in test_history_qual.
type columnDefDoc struct {
	ColumnName      string `bson:"columnName"`
	DataType        string `bson:"dataType"`
	IsIdentity      bool   `bson:"isIdentity"`
	IsNullable      bool   `bson:"isNullable"`
	OrdinalPosition int    `bson:"ordinalPosition"`
}

func (d columnDefDoc) toModel() model.ColumnDef {
	return model.ColumnDef{
		ColumnName:      d.ColumnName,
		DataType:        d.DataType,
		IsIdentity:      d.IsIdentity,
		IsNullable:      d.IsNullable,
		OrdinalPosition: d.OrdinalPosition,
	}
}

func columnDefDocFromModel(c model.ColumnDef) columnDefDoc {
	return columnDefDoc{
		ColumnName:      c.ColumnName,
		DataType:        c.DataType,
		IsIdentity:      c.IsIdentity,
		IsNullable:      c.IsNullable,
		OrdinalPosition: c.OrdinalPosition,
	}
}

// schemaDocFromModel converts a schema snapshot into the tagged document
// shape qualHistoryDoc decodes, so inserts and reads agree on key names.
func schemaDocFromModel(s model.Schema) map[string]columnDefDoc {
	doc := make(map[string]columnDefDoc, len(s))
	for k, v := range s {
		doc[k] = columnDefDocFromModel(v)
	}
	return doc
}

// qualHistoryDoc is the shape of one joined/unwound
// test_executions_qual+test_history_qual row.
type qualHistoryDoc struct {
	ID      string `bson:"id"`
	History struct {
		ID          string                  `bson:"id"`
		Value       map[string]columnDefDoc `bson:"value"`
		IsIdentical bool                    `bson:"is_identical"`
		ExecutionID string                  `bson:"execution_id"`
		AlertID     *string                 `bson:"alert_id"`
		ExecutedOn  time.Time               `bson:"executed_on"`
	} `bson:"history"`
}

func (d qualHistoryDoc) toModel() *model.QualHistoryEntry {
	schema := make(model.Schema, len(d.History.Value))
	for k, v := range d.History.Value {
		schema[k] = v.toModel()
	}
	return &model.QualHistoryEntry{
		ID:          d.History.ID,
		Value:       schema,
		IsIdentical: d.History.IsIdentical,
		ExecutionID: d.History.ExecutionID,
		AlertID:     d.History.AlertID,
		ExecutedOn:  d.History.ExecutedOn,
	}
}
