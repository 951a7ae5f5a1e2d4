// Package testtype classifies the recognized testType values into the
// kind of pipeline the executor must run, collapsing a three-enum split
// into one lookup table.
package testtype

// Kind is the dispatch category the executor branches on.
type Kind string

const (
	KindMaterialization Kind = "materialization"
	KindColumn          Kind = "column"
	KindQualitative     Kind = "qualitative"
	KindCustom          Kind = "custom"
)

// Recognized testType string values.
const (
	MaterializationRowCount      = "MaterializationRowCount"
	MaterializationColumnCount   = "MaterializationColumnCount"
	MaterializationFreshness     = "MaterializationFreshness"
	ColumnCardinality            = "ColumnCardinality"
	ColumnDistribution           = "ColumnDistribution"
	ColumnFreshness              = "ColumnFreshness"
	ColumnNullness               = "ColumnNullness"
	ColumnUniqueness             = "ColumnUniqueness"
	MaterializationSchemaChange  = "MaterializationSchemaChange"
)

var kinds = map[string]Kind{
	MaterializationRowCount:     KindMaterialization,
	MaterializationColumnCount:  KindMaterialization,
	MaterializationFreshness:    KindMaterialization,
	ColumnCardinality:           KindColumn,
	ColumnDistribution:          KindColumn,
	ColumnFreshness:             KindColumn,
	ColumnNullness:              KindColumn,
	ColumnUniqueness:            KindColumn,
	MaterializationSchemaChange: KindQualitative,
}

// Classify returns the dispatch Kind for a raw testType string. The empty
// string (no test_type on the definition) classifies as KindCustom.
func Classify(testType string) Kind {
	if testType == "" {
		return KindCustom
	}
	if kind, ok := kinds[testType]; ok {
		return kind
	}
	return KindCustom
}

// IsQuantitative reports whether kind is one of the two quantitative kinds.
func IsQuantitative(kind Kind) bool {
	return kind == KindMaterialization || kind == KindColumn
}

// NonNegativeClampExempt reports whether testType is exempt from the
// non-negativity clamp applied to quantitative bounds.
func NonNegativeClampExempt(testType string) bool {
	return testType == ColumnDistribution || testType == ColumnFreshness
}
