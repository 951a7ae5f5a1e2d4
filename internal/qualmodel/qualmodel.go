// Package qualmodel implements the schema-change diff algorithm:
// comparing a materialization's current column layout against its most
// recently stored snapshot, keyed by ordinal position rather than column
// name, since a rename and a same-name-different-position change must both
// surface as deviations.
package qualmodel

import (
	"strconv"

	"github.com/cito-data/test-engine/internal/model"
)

// Result is the qualitative analysis's outcome, persisted as a
// model.QualResult and used by the executor to decide whether to alert.
type Result struct {
	IsIdentical   bool
	ExpectedValue model.Schema // the prior snapshot; nil on a baseline run
	Value         model.Schema
	Deviations    []model.SchemaDiff
}

// Run compares newSchema against oldSchema. A nil oldSchema means there is
// no prior snapshot to compare against (the suite's first execution);
// that run is always identical by definition and establishes the baseline.
func Run(newSchema, oldSchema model.Schema) Result {
	if len(oldSchema) == 0 {
		return Result{
			IsIdentical:   true,
			ExpectedValue: oldSchema,
			Value:         newSchema,
			Deviations:    nil,
		}
	}

	oldCount := len(oldSchema)
	newCount := len(newSchema)
	max := oldCount
	if newCount > max {
		max = newCount
	}

	var diffs []model.SchemaDiff
	for i := 1; i <= max; i++ {
		key := strconv.Itoa(i)
		oldCol, hasOld := oldSchema[key]
		newCol, hasNew := newSchema[key]

		switch {
		case hasOld && !hasNew:
			diffs = append(diffs, model.SchemaDiff{
				ColumnName:      model.FieldDiff{Old: oldCol.ColumnName, New: nil},
				OrdinalPosition: model.FieldDiff{Old: oldCol.OrdinalPosition, New: nil},
				DataType:        &model.FieldDiff{Old: oldCol.DataType, New: nil},
				IsIdentity:      &model.FieldDiff{Old: oldCol.IsIdentity, New: nil},
				IsNullable:      &model.FieldDiff{Old: oldCol.IsNullable, New: nil},
			})
		case hasNew && !hasOld:
			diffs = append(diffs, model.SchemaDiff{
				ColumnName:      model.FieldDiff{Old: nil, New: newCol.ColumnName},
				OrdinalPosition: model.FieldDiff{Old: nil, New: newCol.OrdinalPosition},
				DataType:        &model.FieldDiff{Old: nil, New: newCol.DataType},
				IsIdentity:      &model.FieldDiff{Old: nil, New: newCol.IsIdentity},
				IsNullable:      &model.FieldDiff{Old: nil, New: newCol.IsNullable},
			})
		default:
			if diff, changed := compareColumns(oldCol, newCol); changed {
				diffs = append(diffs, diff)
			}
		}
	}

	return Result{
		IsIdentical:   len(diffs) == 0,
		ExpectedValue: oldSchema,
		Value:         newSchema,
		Deviations:    diffs,
	}
}

// compareColumns diffs two columns present at the same ordinal position. It
// always reports column name and ordinal position (they identify the row)
// but only populates the other three fields when they actually differ.
func compareColumns(oldCol, newCol model.ColumnDef) (model.SchemaDiff, bool) {
	nameChanged := oldCol.ColumnName != newCol.ColumnName
	dataTypeChanged := oldCol.DataType != newCol.DataType
	ordinalChanged := oldCol.OrdinalPosition != newCol.OrdinalPosition
	identityChanged := oldCol.IsIdentity != newCol.IsIdentity
	nullableChanged := oldCol.IsNullable != newCol.IsNullable

	if !nameChanged && !dataTypeChanged && !ordinalChanged && !identityChanged && !nullableChanged {
		return model.SchemaDiff{}, false
	}

	diff := model.SchemaDiff{
		ColumnName:      model.FieldDiff{Old: oldCol.ColumnName, New: newCol.ColumnName},
		OrdinalPosition: model.FieldDiff{Old: oldCol.OrdinalPosition, New: newCol.OrdinalPosition},
	}
	if dataTypeChanged {
		diff.DataType = &model.FieldDiff{Old: oldCol.DataType, New: newCol.DataType}
	}
	if identityChanged {
		diff.IsIdentity = &model.FieldDiff{Old: oldCol.IsIdentity, New: newCol.IsIdentity}
	}
	if nullableChanged {
		diff.IsNullable = &model.FieldDiff{Old: oldCol.IsNullable, New: newCol.IsNullable}
	}
	return diff, true
}
