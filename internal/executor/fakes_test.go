package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/cito-data/test-engine/internal/model"
	"github.com/cito-data/test-engine/internal/ports"
	"github.com/cito-data/test-engine/internal/testtype"
)

// fakeClock is a deterministic ports.Clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakeWarehouse returns canned values/schemas regardless of the SQL text,
// so tests can drive the executor without a real Snowflake connection.
type fakeWarehouse struct {
	scalar       float64
	scalarErr    error
	schema       []model.ColumnDef
	schemaErr    error
	metricName   string
	metricValue  float64
	metricErr    error
}

func (w *fakeWarehouse) ScalarRow(ctx context.Context, sql, resultColumn string) (float64, error) {
	return w.scalar, w.scalarErr
}

func (w *fakeWarehouse) SchemaRows(ctx context.Context, sql string) ([]model.ColumnDef, error) {
	return w.schema, w.schemaErr
}

func (w *fakeWarehouse) CustomMetric(ctx context.Context, sql string) (string, float64, error) {
	return w.metricName, w.metricValue, w.metricErr
}

// fakeStorage is an in-memory ports.Storage recording every call so tests
// can assert on call ordering and argument shape.
type fakeStorage struct {
	def            *model.TestDefinition
	history        []ports.HistoryPoint
	lastQualSchema *model.QualHistoryEntry

	executions    []model.ExecutionRecord
	qualExecs     []model.ExecutionRecord
	historyInsert []model.HistoryEntry
	qualHistory   []model.QualHistoryEntry
	results       []model.QuantResult
	qualResults   []model.QualResult
	alerts        []model.Alert
	lastAlertSent map[string]time.Time
}

func newFakeStorage(def *model.TestDefinition) *fakeStorage {
	return &fakeStorage{def: def, lastAlertSent: map[string]time.Time{}}
}

func (s *fakeStorage) GetTestDefinition(ctx context.Context, tenantID, suiteID string, kind testtype.Kind) (*model.TestDefinition, error) {
	return s.def, nil
}

func (s *fakeStorage) GetHistory(ctx context.Context, tenantID, suiteID string) ([]ports.HistoryPoint, error) {
	return s.history, nil
}

func (s *fakeStorage) GetLastQualSchema(ctx context.Context, tenantID, suiteID string) (*model.QualHistoryEntry, error) {
	return s.lastQualSchema, nil
}

func (s *fakeStorage) InsertExecution(ctx context.Context, tenantID string, rec model.ExecutionRecord) error {
	s.executions = append(s.executions, rec)
	return nil
}

func (s *fakeStorage) InsertQualExecution(ctx context.Context, tenantID string, rec model.ExecutionRecord) error {
	s.qualExecs = append(s.qualExecs, rec)
	return nil
}

func (s *fakeStorage) InsertHistory(ctx context.Context, tenantID string, entry model.HistoryEntry) error {
	s.historyInsert = append(s.historyInsert, entry)
	return nil
}

func (s *fakeStorage) InsertQualHistory(ctx context.Context, tenantID string, entry model.QualHistoryEntry) error {
	s.qualHistory = append(s.qualHistory, entry)
	return nil
}

func (s *fakeStorage) InsertResult(ctx context.Context, tenantID string, suiteID, executionID string, result model.QuantResult) error {
	s.results = append(s.results, result)
	return nil
}

func (s *fakeStorage) InsertQualResult(ctx context.Context, tenantID string, suiteID, executionID string, result model.QualResult) error {
	s.qualResults = append(s.qualResults, result)
	return nil
}

func (s *fakeStorage) InsertAlert(ctx context.Context, tenantID string, kind testtype.Kind, alert model.Alert) error {
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *fakeStorage) UpdateLastAlertSent(ctx context.Context, tenantID, suiteID string, kind testtype.Kind, sentAt time.Time) error {
	s.lastAlertSent[suiteID] = sentAt
	return nil
}

// sequentialIDs returns an IDGen that hands out deterministic, incrementing
// ids so tests can assert on them.
func sequentialIDs(prefix string) IDGen {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func stableHistoryPoints(n int, value float64, start time.Time) []ports.HistoryPoint {
	points := make([]ports.HistoryPoint, n)
	for i := 0; i < n; i++ {
		points[i] = ports.HistoryPoint{ExecutedOn: start.Add(time.Duration(i) * 24 * time.Hour), Value: value}
	}
	return points
}
