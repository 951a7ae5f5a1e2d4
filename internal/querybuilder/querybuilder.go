// Package querybuilder emits the SQL text for every built-in metric kind
// and for the schema-descriptor query consumed by the qualitative model.
// Every function here is pure: given the same arguments it always returns
// the same string, and none of them touch the network. Identifiers are
// double-quoted throughout to preserve case and defuse reserved-word
// collisions.
package querybuilder

import "fmt"

// The Col* constants name the column the warehouse driver must project for
// each built-in metric; the executor's builtinQuery switch pairs every
// built-in testType with one of them.
const (
	ColRowCount            = "ROW_COUNT"
	ColColumnCount         = "COLUMN_COUNT"
	ColTimeDiff            = "TIME_DIFF"
	ColDistinctValueCount  = "DISTINCT_VALUE_COUNT"
	ColUniquenessRate      = "UNIQUENESS_RATE"
	ColNullnessRate        = "NULLNESS_RATE"
	ColMedian              = "MEDIAN"
)

func quote(identifier string) string {
	return `"` + identifier + `"`
}

// RowCount builds the new-value query for MaterializationRowCount. Table and
// view relations use different catalog surfaces in Snowflake: tables expose
// a cheap metadata row count, views must be counted directly.
func RowCount(db, schemaName, materialization string, isView bool) string {
	if isView {
		return fmt.Sprintf(
			`select count(*) as %s from %s.%s.%s;`,
			ColRowCount, quote(db), quote(schemaName), quote(materialization),
		)
	}
	return fmt.Sprintf(
		`select row_count as %s from %s.information_schema.tables where table_schema='%s' and table_name='%s' limit 1;`,
		ColRowCount, quote(db), schemaName, materialization,
	)
}

// ColumnCount builds the new-value query for MaterializationColumnCount.
func ColumnCount(db, schemaName, materialization string) string {
	return fmt.Sprintf(
		`select count(column_name) as %s from %s.information_schema.columns where table_schema='%s' and table_name='%s';`,
		ColColumnCount, quote(db), schemaName, materialization,
	)
}

// MaterializationFreshness builds the new-value query for
// MaterializationFreshness: minutes elapsed since the relation was last
// altered, converted to UTC before the diff.
func MaterializationFreshness(db, schemaName, materialization string, isView bool) string {
	catalogView := "Tables"
	if isView {
		catalogView = "Views"
	}
	return fmt.Sprintf(
		`select convert_timezone('UTC', last_altered) as last_altered_converted, sysdate() as now, datediff(minute, last_altered_converted, now) as %s from %s.information_schema.%s where table_schema='%s' and table_name='%s' limit 1;`,
		ColTimeDiff, quote(db), catalogView, schemaName, materialization,
	)
}

// ColumnFreshness builds the new-value query for ColumnFreshness: minutes
// elapsed since the most recent value in the column.
func ColumnFreshness(db, schemaName, materialization, column string) string {
	return fmt.Sprintf(
		`select datediff(minute, convert_timezone('UTC', max(%s)), sysdate()) as %s from %s.%s.%s order by %s desc limit 1;`,
		quote(column), ColTimeDiff, quote(db), quote(schemaName), quote(materialization), quote(column),
	)
}

// Cardinality builds the new-value query for ColumnCardinality.
func Cardinality(db, schemaName, materialization, column string) string {
	return fmt.Sprintf(
		`select count(distinct(%s)) as %s from %s.%s.%s;`,
		quote(column), ColDistinctValueCount, quote(db), quote(schemaName), quote(materialization),
	)
}

// Uniqueness builds the new-value query for ColumnUniqueness: the fraction
// of non-null values that are distinct.
func Uniqueness(db, schemaName, materialization, column string) string {
	return fmt.Sprintf(
		`select count(distinct(%s))/nullif(count(%s), 0) as %s from %s.%s.%s;`,
		quote(column), quote(column), ColUniquenessRate, quote(db), quote(schemaName), quote(materialization),
	)
}

// Nullness builds the new-value query for ColumnNullness: the fraction of
// rows where the column is null.
func Nullness(db, schemaName, materialization, column string) string {
	return fmt.Sprintf(
		`select (count(*) - count(%s))::float / nullif(count(*), 0) as %s from %s.%s.%s;`,
		quote(column), ColNullnessRate, quote(db), quote(schemaName), quote(materialization),
	)
}

// Distribution builds the new-value query for ColumnDistribution. The
// warehouse projects auxiliary mean/quartile columns too; only MEDIAN is
// consumed by the executor.
func Distribution(db, schemaName, materialization, column string) string {
	return fmt.Sprintf(
		`select median(%s) as %s, avg(%s) as mean, percentile_cont(0.25) within group (order by %s) as q1, percentile_cont(0.75) within group (order by %s) as q3 from %s.%s.%s;`,
		quote(column), ColMedian, quote(column), quote(column), quote(column),
		quote(db), quote(schemaName), quote(materialization),
	)
}

// SchemaChange builds the schema-descriptor query consumed by the
// qualitative model. Each result row carries one JSON column descriptor in
// the "column_definition" field, wrapped via Snowflake's object_construct.
func SchemaChange(db, schemaName, materialization string) string {
	return fmt.Sprintf(
		`with cols as (select column_name, data_type, is_identity, is_nullable, ordinal_position from %s.information_schema.columns where table_catalog='%s' and table_schema='%s' and table_name='%s' order by ordinal_position) select object_construct(*) as column_definition from cols;`,
		quote(db), db, schemaName, materialization,
	)
}

// Custom returns the suite's stored SQL verbatim: custom tests carry
// their own query text, so there is nothing to build.
func Custom(sqlLogic string) string {
	return sqlLogic
}
