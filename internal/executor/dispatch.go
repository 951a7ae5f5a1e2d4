package executor

import (
	"github.com/cito-data/test-engine/internal/apperror"
	"github.com/cito-data/test-engine/internal/model"
	"github.com/cito-data/test-engine/internal/querybuilder"
)

// builtinQuery resolves a materialization/column testType to the SQL text
// and the result column the warehouse driver must project, replacing
// a dispatch-by-magic-string-key with an explicit switch over the
// recognized test types.
func builtinQuery(def *model.TestDefinition, testType string) (sql, resultColumn string, err error) {
	isView := def.MaterializationType == model.MaterializationView

	switch testType {
	case "MaterializationRowCount":
		return querybuilder.RowCount(def.DatabaseName, def.SchemaName, def.MaterializationName, isView), querybuilder.ColRowCount, nil
	case "MaterializationColumnCount":
		return querybuilder.ColumnCount(def.DatabaseName, def.SchemaName, def.MaterializationName), querybuilder.ColColumnCount, nil
	case "MaterializationFreshness":
		return querybuilder.MaterializationFreshness(def.DatabaseName, def.SchemaName, def.MaterializationName, isView), querybuilder.ColTimeDiff, nil
	case "ColumnCardinality":
		return querybuilder.Cardinality(def.DatabaseName, def.SchemaName, def.MaterializationName, def.ColumnName), querybuilder.ColDistinctValueCount, nil
	case "ColumnDistribution":
		return querybuilder.Distribution(def.DatabaseName, def.SchemaName, def.MaterializationName, def.ColumnName), querybuilder.ColMedian, nil
	case "ColumnFreshness":
		return querybuilder.ColumnFreshness(def.DatabaseName, def.SchemaName, def.MaterializationName, def.ColumnName), querybuilder.ColTimeDiff, nil
	case "ColumnNullness":
		return querybuilder.Nullness(def.DatabaseName, def.SchemaName, def.MaterializationName, def.ColumnName), querybuilder.ColNullnessRate, nil
	case "ColumnUniqueness":
		return querybuilder.Uniqueness(def.DatabaseName, def.SchemaName, def.MaterializationName, def.ColumnName), querybuilder.ColUniquenessRate, nil
	default:
		return "", "", apperror.New(apperror.KindConfiguration, "unrecognized built-in test type: "+testType)
	}
}

// schemaChangeQuery builds the schema-descriptor query for a qualitative
// test.
func schemaChangeQuery(def *model.TestDefinition) string {
	return querybuilder.SchemaChange(def.DatabaseName, def.SchemaName, def.MaterializationName)
}

// forcedThreshold picks the side's effective forced threshold: custom
// always outranks feedback when both are present.
func forcedThreshold(custom, feedback *model.ForcedThreshold) *model.ForcedThreshold {
	if custom != nil {
		return custom
	}
	return feedback
}

// validateThreshold rejects a forced threshold with an unrecognized mode.
func validateThreshold(t *model.ForcedThreshold) error {
	if t == nil {
		return nil
	}
	switch t.Mode {
	case model.ThresholdModeAbsolute, model.ThresholdModeRelative:
		return nil
	default:
		return apperror.New(apperror.KindConfiguration, "invalid threshold mode: "+string(t.Mode))
	}
}
