// Package ports declares the narrow interfaces the core consumes for
// everything external to it: the warehouse query transport and the storage
// adapter. The core only ever depends on these interfaces, never on a
// concrete driver.
package ports

import (
	"context"
	"time"

	"github.com/cito-data/test-engine/internal/model"
	"github.com/cito-data/test-engine/internal/testtype"
)

// Warehouse runs the SQL text produced by internal/querybuilder against the
// analytic warehouse and extracts the single row the caller expects.
type Warehouse interface {
	// ScalarRow runs sql and returns the float64 value of resultColumn from
	// the single row returned. It fails if zero or more than one row comes
	// back.
	ScalarRow(ctx context.Context, sql, resultColumn string) (float64, error)
	// SchemaRows runs sql and decodes each row's object_construct JSON
	// payload into a ColumnDef, ordered by ordinal position.
	SchemaRows(ctx context.Context, sql string) ([]model.ColumnDef, error)
	// CustomMetric runs a user-supplied query and expects exactly one row
	// with exactly one named column: the metric.
	CustomMetric(ctx context.Context, sql string) (metricName string, value float64, err error)
}

// Storage is the per-tenant document store. Every method is
// single-document; there is no multi-document transaction.
type Storage interface {
	GetTestDefinition(ctx context.Context, tenantID, suiteID string, kind testtype.Kind) (*model.TestDefinition, error)

	GetHistory(ctx context.Context, tenantID, suiteID string) ([]HistoryPoint, error)
	GetLastQualSchema(ctx context.Context, tenantID, suiteID string) (*model.QualHistoryEntry, error)

	InsertExecution(ctx context.Context, tenantID string, rec model.ExecutionRecord) error
	InsertQualExecution(ctx context.Context, tenantID string, rec model.ExecutionRecord) error
	InsertHistory(ctx context.Context, tenantID string, entry model.HistoryEntry) error
	InsertQualHistory(ctx context.Context, tenantID string, entry model.QualHistoryEntry) error
	InsertResult(ctx context.Context, tenantID string, suiteID, executionID string, result model.QuantResult) error
	InsertQualResult(ctx context.Context, tenantID string, suiteID, executionID string, result model.QualResult) error
	InsertAlert(ctx context.Context, tenantID string, kind testtype.Kind, alert model.Alert) error

	UpdateLastAlertSent(ctx context.Context, tenantID, suiteID string, kind testtype.Kind, sentAt time.Time) error
}

// HistoryPoint is one ascending-by-ExecutedOn quantitative measurement
// projected by Storage.GetHistory: executed_on, value.
type HistoryPoint struct {
	ExecutedOn time.Time
	Value      float64
}

// Clock abstracts "now" so the warm-up gate and quant/qual model fusion are
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
