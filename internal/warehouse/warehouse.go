// Package warehouse implements the Warehouse port against a Snowflake
// analytic warehouse via database/sql and the gosnowflake driver.
package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/snowflakedb/gosnowflake"

	"github.com/cito-data/test-engine/internal/apperror"
	"github.com/cito-data/test-engine/internal/model"
)

// Client runs builder-produced SQL against Snowflake. A single *sql.DB
// (itself pooled by database/sql) is acquired once per process and reused
// across executions; it is not re-dialed per request.
type Client struct {
	db *sql.DB
}

// Open connects to Snowflake using a DSN built with gosnowflake's own
// config/DSN helpers; dsn is expected to already be in gosnowflake's format.
func Open(dsn string) (*Client, error) {
	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindConfiguration, "open snowflake connection", err)
	}
	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// ScalarRow runs sql and extracts resultColumn from the single row
// returned. Zero or more than one row is a data-shape error.
func (c *Client) ScalarRow(ctx context.Context, query, resultColumn string) (float64, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return 0, apperror.Wrap(apperror.KindDownstream, "warehouse query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, apperror.Wrap(apperror.KindDownstream, "read result columns", err)
	}
	idx := indexOfFold(cols, resultColumn)
	if idx < 0 {
		return 0, apperror.New(apperror.KindDataShape, fmt.Sprintf("result column %q not present", resultColumn))
	}

	scanned := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range scanned {
		ptrs[i] = &scanned[i]
	}

	if !rows.Next() {
		return 0, apperror.New(apperror.KindDataShape, "scalar row: more than one or none")
	}
	if err := rows.Scan(ptrs...); err != nil {
		return 0, apperror.Wrap(apperror.KindDownstream, "scan scalar row", err)
	}
	if rows.Next() {
		return 0, apperror.New(apperror.KindDataShape, "scalar row: more than one or none")
	}
	if err := rows.Err(); err != nil {
		return 0, apperror.Wrap(apperror.KindDownstream, "iterate scalar row", err)
	}

	return toFloat(scanned[idx])
}

// CustomMetric expects exactly one row with exactly one named column.
func (c *Client) CustomMetric(ctx context.Context, query string) (string, float64, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return "", 0, apperror.Wrap(apperror.KindDownstream, "warehouse custom query", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", 0, apperror.Wrap(apperror.KindDownstream, "read custom result columns", err)
	}
	if len(cols) != 1 {
		return "", 0, apperror.New(apperror.KindDataShape, "custom metric: expected exactly one column")
	}

	if !rows.Next() {
		return "", 0, apperror.New(apperror.KindDataShape, "custom metric: more than one or none")
	}
	var value any
	if err := rows.Scan(&value); err != nil {
		return "", 0, apperror.Wrap(apperror.KindDownstream, "scan custom metric", err)
	}
	if rows.Next() {
		return "", 0, apperror.New(apperror.KindDataShape, "custom metric: more than one or none")
	}
	if err := rows.Err(); err != nil {
		return "", 0, apperror.Wrap(apperror.KindDownstream, "iterate custom metric", err)
	}

	f, err := toFloat(value)
	if err != nil {
		return "", 0, err
	}
	return cols[0], f, nil
}

// SchemaRows runs the schema-descriptor query and decodes each row's
// object_construct JSON payload into a model.ColumnDef, ordered by the
// query's own ordinal_position ordering.
func (c *Client) SchemaRows(ctx context.Context, query string) ([]model.ColumnDef, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDownstream, "warehouse schema query", err)
	}
	defer rows.Close()

	var defs []model.ColumnDef
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apperror.Wrap(apperror.KindDownstream, "scan schema row", err)
		}
		var payload struct {
			ColumnName      string `json:"COLUMN_NAME"`
			DataType        string `json:"DATA_TYPE"`
			IsIdentity      string `json:"IS_IDENTITY"`
			IsNullable      string `json:"IS_NULLABLE"`
			OrdinalPosition int    `json:"ORDINAL_POSITION"`
		}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, apperror.Wrap(apperror.KindDataShape, "decode column definition", err)
		}
		defs = append(defs, model.ColumnDef{
			ColumnName:      payload.ColumnName,
			DataType:        payload.DataType,
			IsIdentity:      payload.IsIdentity == "YES",
			IsNullable:      payload.IsNullable == "YES",
			OrdinalPosition: payload.OrdinalPosition,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.Wrap(apperror.KindDownstream, "iterate schema rows", err)
	}
	return defs, nil
}

func indexOfFold(cols []string, name string) int {
	for i, c := range cols {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case []byte:
		var f float64
		if _, err := fmt.Sscanf(string(n), "%g", &f); err != nil {
			return 0, apperror.Wrap(apperror.KindDataShape, "parse scalar result", err)
		}
		return f, nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
			return 0, apperror.Wrap(apperror.KindDataShape, "parse scalar result", err)
		}
		return f, nil
	case nil:
		return 0, apperror.New(apperror.KindDataShape, "scalar result is null")
	default:
		return 0, apperror.New(apperror.KindDataShape, fmt.Sprintf("unsupported scalar result type %T", v))
	}
}
