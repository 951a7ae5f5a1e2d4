package alertmessage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cito-data/test-engine/internal/testtype"
)

func TestBuiltinMaterializationMessageSetsColumnFlagFalse(t *testing.T) {
	msg, err := Builtin("https://app.example.com/alerts", "res-1", "DB", "PUBLIC", "ORDERS", "", testtype.MaterializationRowCount)
	require.NoError(t, err)
	assert.Contains(t, msg, "Row count deviation for materialization")
	assert.Contains(t, msg, "DB.PUBLIC.ORDERS")
	assert.Contains(t, msg, "targetResourceId=res-1")
	assert.Contains(t, msg, "isColumn=false")
}

func TestBuiltinColumnMessageIncludesColumnName(t *testing.T) {
	msg, err := Builtin("https://app.example.com/alerts", "res-1", "DB", "PUBLIC", "ORDERS", "customer_id", testtype.ColumnCardinality)
	require.NoError(t, err)
	assert.Contains(t, msg, "Cardinality deviation for column")
	assert.Contains(t, msg, "DB.PUBLIC.ORDERS.customer_id")
	assert.Contains(t, msg, "isColumn=true")
}

func TestBuiltinSchemaChangeMessage(t *testing.T) {
	msg, err := Builtin("https://app.example.com/alerts", "res-1", "DB", "PUBLIC", "ORDERS", "", testtype.MaterializationSchemaChange)
	require.NoError(t, err)
	assert.Contains(t, msg, "Schema change for materialization")
}

func TestBuiltinUnrecognizedTestTypeErrors(t *testing.T) {
	_, err := Builtin("https://app.example.com/alerts", "res-1", "DB", "PUBLIC", "ORDERS", "", "NotARealTestType")
	assert.Error(t, err)
}

func TestCustomMessageNamesMetric(t *testing.T) {
	msg := Custom("https://app.example.com/alerts", "daily_signup_count")
	assert.Contains(t, msg, "Deviation for metric")
	assert.Contains(t, msg, "metric=daily_signup_count")
}
