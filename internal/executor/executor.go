package executor

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cito-data/test-engine/internal/alertmessage"
	"github.com/cito-data/test-engine/internal/apperror"
	"github.com/cito-data/test-engine/internal/cache"
	"github.com/cito-data/test-engine/internal/envelope"
	"github.com/cito-data/test-engine/internal/model"
	"github.com/cito-data/test-engine/internal/ports"
	"github.com/cito-data/test-engine/internal/qualmodel"
	"github.com/cito-data/test-engine/internal/quantmodel"
	"github.com/cito-data/test-engine/internal/testtype"
)

// DefaultAlertSentGap is the minimum gap since the previous lastAlertSent
// before a new anomaly advances it again.
const DefaultAlertSentGap = 24 * time.Hour

// IDGen produces a fresh unique id; tests substitute a deterministic
// sequence to make execution/alert ids assertable.
type IDGen func() string

// Executor wires the storage adapter, warehouse client, clock, and id
// generator the test execution engine needs. One Executor can serve many
// invocations; its Storage handle is reused for every read/write rather
// than reopened per call.
type Executor struct {
	Storage   ports.Storage
	Warehouse ports.Warehouse
	Clock     ports.Clock
	NewID     IDGen
	BaseURL   string // used to build alert message links

	// WarmupMaxSamples and WarmupMaxDays override the warm-up gate's
	// thresholds. Left at zero, they fall back to
	// DefaultWarmupMaxSamples/DefaultWarmupMaxDays.
	WarmupMaxSamples int
	WarmupMaxDays    int

	// AlertSentGap overrides the minimum gap before lastAlertSent advances
	// again; zero falls back to DefaultAlertSentGap.
	AlertSentGap time.Duration

	// History optionally caches quantitative history pages; nil disables
	// caching and every run reads straight through to Storage.
	History *cache.HistoryCache
}

// loadHistory serves a quantitative/custom test's history page from cache
// when available, falling back to Storage and populating the cache on a
// miss.
func (e *Executor) loadHistory(ctx context.Context, tenantID, testSuiteID string) ([]ports.HistoryPoint, error) {
	if e.History == nil {
		return e.Storage.GetHistory(ctx, tenantID, testSuiteID)
	}
	if cached, err := e.History.Get(ctx, tenantID, testSuiteID); err == nil && cached != nil {
		return cached, nil
	}
	history, err := e.Storage.GetHistory(ctx, tenantID, testSuiteID)
	if err != nil {
		return nil, err
	}
	_ = e.History.Set(ctx, tenantID, testSuiteID, history)
	return history, nil
}

// invalidateHistory drops a test suite's cached history page after a new
// execution is recorded; cache errors are non-fatal since Storage remains
// the source of truth.
func (e *Executor) invalidateHistory(ctx context.Context, tenantID, testSuiteID string) {
	if e.History == nil {
		return
	}
	_ = e.History.Invalidate(ctx, tenantID, testSuiteID)
}

// New builds an Executor with the production clock, a uuid-backed id
// generator, the given alert BaseURL, and the default warm-up thresholds.
func New(storage ports.Storage, warehouse ports.Warehouse, baseURL string) *Executor {
	return &Executor{
		Storage:          storage,
		Warehouse:        warehouse,
		Clock:            ports.SystemClock{},
		NewID:            func() string { return uuid.NewString() },
		BaseURL:          baseURL,
		WarmupMaxSamples: DefaultWarmupMaxSamples,
		WarmupMaxDays:    DefaultWarmupMaxDays,
	}
}

func (e *Executor) warmupMaxSamples() int {
	if e.WarmupMaxSamples <= 0 {
		return DefaultWarmupMaxSamples
	}
	return e.WarmupMaxSamples
}

func (e *Executor) warmupMaxDays() int {
	if e.WarmupMaxDays <= 0 {
		return DefaultWarmupMaxDays
	}
	return e.WarmupMaxDays
}

func (e *Executor) alertSentGap() time.Duration {
	if e.AlertSentGap <= 0 {
		return DefaultAlertSentGap
	}
	return e.AlertSentGap
}

// Execute runs exactly one test. The returned value is one of
// *envelope.QuantResult, *envelope.QualResult, or *envelope.CustomResult.
func (e *Executor) Execute(ctx context.Context, req Request, auth Auth) (any, error) {
	tenancy, err := resolveTenancy(req, auth)
	if err != nil {
		return nil, err
	}
	tenantID := tenancy.OrganizationID

	kind := testtype.Classify(req.TestType)

	def, err := e.Storage.GetTestDefinition(ctx, tenantID, req.TestSuiteID, kind)
	if err != nil {
		return nil, err
	}

	for _, t := range []*model.ForcedThreshold{def.CustomLowerThreshold, def.CustomUpperThreshold, def.FeedbackLowerThreshold, def.FeedbackUpperThreshold} {
		if err := validateThreshold(t); err != nil {
			return nil, err
		}
	}

	switch kind {
	case testtype.KindQualitative:
		return e.runQualitative(ctx, tenantID, req, def)
	case testtype.KindCustom:
		return e.runCustom(ctx, tenantID, req, def)
	default:
		return e.runQuantitative(ctx, tenantID, req, def)
	}
}

// runQuantitative executes a built-in materialization or column test.
func (e *Executor) runQuantitative(ctx context.Context, tenantID string, req Request, def *model.TestDefinition) (*envelope.QuantResult, error) {
	sql, resultColumn, err := builtinQuery(def, req.TestType)
	if err != nil {
		return nil, err
	}
	value, err := e.Warehouse.ScalarRow(ctx, sql, resultColumn)
	if err != nil {
		return nil, err
	}

	history, err := e.loadHistory(ctx, tenantID, req.TestSuiteID)
	if err != nil {
		return nil, err
	}

	executedOn := e.Clock.Now()
	executionID := e.NewID()

	if err := e.Storage.InsertExecution(ctx, tenantID, model.ExecutionRecord{
		ID:          executionID,
		ExecutedOn:  executedOn,
		TestSuiteID: req.TestSuiteID,
	}); err != nil {
		return nil, err
	}

	if warmup(len(history), oldestSpan(history, executedOn), e.warmupMaxSamples(), e.warmupMaxDays()) {
		if err := e.Storage.InsertHistory(ctx, tenantID, model.HistoryEntry{
			ID:                    e.NewID(),
			TestType:              req.TestType,
			Value:                 value,
			IsAnomaly:             false,
			UserFeedbackIsAnomaly: -1,
			TestSuiteID:           req.TestSuiteID,
			ExecutionID:           executionID,
			ExecutedOn:            executedOn,
		}); err != nil {
			return nil, err
		}
		e.invalidateHistory(ctx, tenantID, req.TestSuiteID)
		return &envelope.QuantResult{
			Head: envelope.Head{
				TestSuiteID:    req.TestSuiteID,
				TestType:       req.TestType,
				ExecutionID:    executionID,
				OrganizationID: tenantID,
			},
			TargetResourceID: def.TargetResourceID,
			IsWarmup:         true,
			LastAlertSent:    def.LastAlertSent,
		}, nil
	}

	points := toQuantPoints(history)
	fused, err := quantmodel.Run(quantmodel.Inputs{
		NewPoint:    quantmodel.Point{ExecutedOn: executedOn, Value: value},
		History:     points,
		TestType:    req.TestType,
		ForcedLower: forcedThreshold(def.CustomLowerThreshold, def.FeedbackLowerThreshold),
		ForcedUpper: forcedThreshold(def.CustomUpperThreshold, def.FeedbackUpperThreshold),
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "run quantitative model", err)
	}

	if err := e.Storage.InsertResult(ctx, tenantID, req.TestSuiteID, executionID, toQuantResultRecord(fused)); err != nil {
		return nil, err
	}

	var columnName *string
	if def.ColumnName != "" {
		columnName = &def.ColumnName
	}

	var alertID *string
	var alertData *envelope.QuantAlertData
	lastAlertSent := def.LastAlertSent

	if fused.IsAnomaly {
		msg, err := alertmessage.Builtin(e.BaseURL, def.TargetResourceID, def.DatabaseName, def.SchemaName, def.MaterializationName, def.ColumnName, req.TestType)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindInternal, "build alert message", err)
		}
		id := e.NewID()
		alertID = &id

		if err := e.Storage.InsertAlert(ctx, tenantID, testtype.Classify(req.TestType), model.Alert{
			ID:          id,
			TestType:    req.TestType,
			Message:     msg,
			TestSuiteID: req.TestSuiteID,
			ExecutionID: executionID,
		}); err != nil {
			return nil, err
		}

		alertData = &envelope.QuantAlertData{
			AlertID:             id,
			Message:             msg,
			DatabaseName:        def.DatabaseName,
			SchemaName:          def.SchemaName,
			MaterializationName: def.MaterializationName,
			MaterializationType: string(def.MaterializationType),
			ExpectedValue:       fused.Expected,
			ColumnName:          columnName,
		}

		next := nextLastAlertSent(def.LastAlertSent, executedOn, e.alertSentGap())
		if def.LastAlertSent == nil || !next.Equal(*def.LastAlertSent) {
			if err := e.Storage.UpdateLastAlertSent(ctx, tenantID, req.TestSuiteID, testtype.Classify(req.TestType), *next); err != nil {
				return nil, err
			}
		}
		lastAlertSent = next
	}

	if err := e.Storage.InsertHistory(ctx, tenantID, model.HistoryEntry{
		ID:                    e.NewID(),
		TestType:              req.TestType,
		Value:                 value,
		IsAnomaly:             fused.IsAnomaly,
		UserFeedbackIsAnomaly: -1,
		TestSuiteID:           req.TestSuiteID,
		ExecutionID:           executionID,
		AlertID:               alertID,
		ExecutedOn:            executedOn,
	}); err != nil {
		return nil, err
	}
	e.invalidateHistory(ctx, tenantID, req.TestSuiteID)

	var anomalyDelta *envelope.AnomalyDelta
	if fused.IsAnomaly && fused.Importance != nil {
		anomalyDelta = &envelope.AnomalyDelta{Importance: *fused.Importance}
	}
	z := fused.ZScore.ModifiedZScore

	return &envelope.QuantResult{
		Head: envelope.Head{
			TestSuiteID:    req.TestSuiteID,
			TestType:       req.TestType,
			ExecutionID:    executionID,
			OrganizationID: tenantID,
		},
		TargetResourceID: def.TargetResourceID,
		IsWarmup:         false,
		TestData: &envelope.QuantTestData{
			ExecutedOn:         executedOn,
			DetectedValue:      value,
			ExpectedUpperBound: fused.Upper,
			ExpectedLowerBound: fused.Lower,
			ModifiedZScore:     &z,
			Deviation:          fused.Deviation,
			Anomaly:            anomalyDelta,
		},
		AlertData:     alertData,
		LastAlertSent: lastAlertSent,
	}, nil
}

// runCustom executes a custom user-SQL test. It shares the quantitative pipeline (warm-up, z-score/forecast fusion,
// forced thresholds) with the built-in tests; only the data source and
// envelope shape differ.
func (e *Executor) runCustom(ctx context.Context, tenantID string, req Request, def *model.TestDefinition) (*envelope.CustomResult, error) {
	sql := def.SQLLogic
	metricName, value, err := e.Warehouse.CustomMetric(ctx, sql)
	if err != nil {
		return nil, err
	}

	history, err := e.loadHistory(ctx, tenantID, req.TestSuiteID)
	if err != nil {
		return nil, err
	}

	executedOn := e.Clock.Now()
	executionID := e.NewID()

	if err := e.Storage.InsertExecution(ctx, tenantID, model.ExecutionRecord{
		ID:          executionID,
		ExecutedOn:  executedOn,
		TestSuiteID: req.TestSuiteID,
	}); err != nil {
		return nil, err
	}

	if warmup(len(history), oldestSpan(history, executedOn), e.warmupMaxSamples(), e.warmupMaxDays()) {
		if err := e.Storage.InsertHistory(ctx, tenantID, model.HistoryEntry{
			ID:                    e.NewID(),
			TestType:              req.TestType,
			Value:                 value,
			IsAnomaly:             false,
			UserFeedbackIsAnomaly: -1,
			TestSuiteID:           req.TestSuiteID,
			ExecutionID:           executionID,
			ExecutedOn:            executedOn,
		}); err != nil {
			return nil, err
		}
		e.invalidateHistory(ctx, tenantID, req.TestSuiteID)
		return &envelope.CustomResult{
			Head: envelope.Head{
				TestSuiteID:    req.TestSuiteID,
				TestType:       req.TestType,
				ExecutionID:    executionID,
				OrganizationID: tenantID,
			},
			TargetResourceIDs: def.TargetResourceIDs,
			IsWarmup:          true,
			LastAlertSent:     def.LastAlertSent,
		}, nil
	}

	points := toQuantPoints(history)
	fused, err := quantmodel.Run(quantmodel.Inputs{
		NewPoint:    quantmodel.Point{ExecutedOn: executedOn, Value: value},
		History:     points,
		TestType:    req.TestType,
		ForcedLower: forcedThreshold(def.CustomLowerThreshold, def.FeedbackLowerThreshold),
		ForcedUpper: forcedThreshold(def.CustomUpperThreshold, def.FeedbackUpperThreshold),
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, "run quantitative model", err)
	}

	if err := e.Storage.InsertResult(ctx, tenantID, req.TestSuiteID, executionID, toQuantResultRecord(fused)); err != nil {
		return nil, err
	}

	var alertID *string
	var alertData *envelope.CustomAlertData
	lastAlertSent := def.LastAlertSent

	if fused.IsAnomaly {
		msg := alertmessage.Custom(e.BaseURL, metricName)
		id := e.NewID()
		alertID = &id

		if err := e.Storage.InsertAlert(ctx, tenantID, testtype.KindCustom, model.Alert{
			ID:          id,
			TestType:    req.TestType,
			Message:     msg,
			TestSuiteID: req.TestSuiteID,
			ExecutionID: executionID,
		}); err != nil {
			return nil, err
		}

		alertData = &envelope.CustomAlertData{
			AlertID:       id,
			Message:       msg,
			ExpectedValue: fused.Expected,
		}

		next := nextLastAlertSent(def.LastAlertSent, executedOn, e.alertSentGap())
		if def.LastAlertSent == nil || !next.Equal(*def.LastAlertSent) {
			if err := e.Storage.UpdateLastAlertSent(ctx, tenantID, req.TestSuiteID, testtype.KindCustom, *next); err != nil {
				return nil, err
			}
		}
		lastAlertSent = next
	}

	if err := e.Storage.InsertHistory(ctx, tenantID, model.HistoryEntry{
		ID:                    e.NewID(),
		TestType:              req.TestType,
		Value:                 value,
		IsAnomaly:             fused.IsAnomaly,
		UserFeedbackIsAnomaly: -1,
		TestSuiteID:           req.TestSuiteID,
		ExecutionID:           executionID,
		AlertID:               alertID,
		ExecutedOn:            executedOn,
	}); err != nil {
		return nil, err
	}
	e.invalidateHistory(ctx, tenantID, req.TestSuiteID)

	var anomalyDelta *envelope.AnomalyDelta
	if fused.IsAnomaly && fused.Importance != nil {
		anomalyDelta = &envelope.AnomalyDelta{Importance: *fused.Importance}
	}
	z := fused.ZScore.ModifiedZScore

	return &envelope.CustomResult{
		Head: envelope.Head{
			TestSuiteID:    req.TestSuiteID,
			TestType:       req.TestType,
			ExecutionID:    executionID,
			OrganizationID: tenantID,
		},
		TargetResourceIDs: def.TargetResourceIDs,
		IsWarmup:          false,
		TestData: &envelope.CustomTestData{
			MetricName:         metricName,
			ExecutedOn:         executedOn,
			DetectedValue:      value,
			ExpectedUpperBound: fused.Upper,
			ExpectedLowerBound: fused.Lower,
			ModifiedZScore:     &z,
			Deviation:          fused.Deviation,
			Anomaly:            anomalyDelta,
		},
		AlertData:     alertData,
		LastAlertSent: lastAlertSent,
	}, nil
}

// runQualitative executes a schema-change test.
func (e *Executor) runQualitative(ctx context.Context, tenantID string, req Request, def *model.TestDefinition) (*envelope.QualResult, error) {
	sql := schemaChangeQuery(def)
	cols, err := e.Warehouse.SchemaRows(ctx, sql)
	if err != nil {
		return nil, err
	}
	newSchema := toSchema(cols)

	oldEntry, err := e.Storage.GetLastQualSchema(ctx, tenantID, req.TestSuiteID)
	if err != nil {
		return nil, err
	}
	var oldSchema model.Schema
	if oldEntry != nil {
		oldSchema = oldEntry.Value
	}

	result := qualmodel.Run(newSchema, oldSchema)

	executedOn := e.Clock.Now()
	executionID := e.NewID()

	if err := e.Storage.InsertQualExecution(ctx, tenantID, model.ExecutionRecord{
		ID:          executionID,
		ExecutedOn:  executedOn,
		TestSuiteID: req.TestSuiteID,
	}); err != nil {
		return nil, err
	}

	if err := e.Storage.InsertQualResult(ctx, tenantID, req.TestSuiteID, executionID, model.QualResult{
		ExpectedValue: result.ExpectedValue,
		Deviations:    result.Deviations,
		IsIdentical:   result.IsIdentical,
	}); err != nil {
		return nil, err
	}

	var alertID *string
	var alertData *envelope.QualAlertData

	if !result.IsIdentical {
		msg, err := alertmessage.Builtin(e.BaseURL, def.TargetResourceID, def.DatabaseName, def.SchemaName, def.MaterializationName, def.ColumnName, req.TestType)
		if err != nil {
			return nil, apperror.Wrap(apperror.KindInternal, "build alert message", err)
		}
		id := e.NewID()
		alertID = &id

		if err := e.Storage.InsertAlert(ctx, tenantID, testtype.KindQualitative, model.Alert{
			ID:          id,
			TestType:    req.TestType,
			Message:     msg,
			TestSuiteID: req.TestSuiteID,
			ExecutionID: executionID,
		}); err != nil {
			return nil, err
		}

		alertData = &envelope.QualAlertData{
			AlertID:             id,
			Message:             msg,
			DatabaseName:        def.DatabaseName,
			SchemaName:          def.SchemaName,
			MaterializationName: def.MaterializationName,
			MaterializationType: string(def.MaterializationType),
			Deviations:          result.Deviations,
		}
	}

	if err := e.Storage.InsertQualHistory(ctx, tenantID, model.QualHistoryEntry{
		ID:          e.NewID(),
		Value:       newSchema,
		IsIdentical: result.IsIdentical,
		ExecutionID: executionID,
		AlertID:     alertID,
		ExecutedOn:  executedOn,
	}); err != nil {
		return nil, err
	}

	return &envelope.QualResult{
		Head: envelope.Head{
			TestSuiteID:    req.TestSuiteID,
			TestType:       req.TestType,
			ExecutionID:    executionID,
			OrganizationID: tenantID,
		},
		TargetResourceID: def.TargetResourceID,
		TestData: &envelope.QualTestData{
			ExecutedOn:  executedOn,
			Deviations:  result.Deviations,
			IsIdentical: result.IsIdentical,
		},
		AlertData: alertData,
	}, nil
}

// nextLastAlertSent implements the lastAlertSent advance rule: unset ⇒ now;
// gap elapsed ⇒ now; otherwise unchanged.
func nextLastAlertSent(previous *time.Time, now time.Time, gap time.Duration) *time.Time {
	if previous == nil {
		t := now
		return &t
	}
	if now.Sub(*previous) >= gap {
		t := now
		return &t
	}
	return previous
}

// oldestSpan is the elapsed time since the oldest history point, or zero
// when there is no history.
func oldestSpan(history []ports.HistoryPoint, now time.Time) time.Duration {
	if len(history) == 0 {
		return 0
	}
	return now.Sub(history[0].ExecutedOn)
}

func toQuantPoints(history []ports.HistoryPoint) []quantmodel.Point {
	points := make([]quantmodel.Point, len(history))
	for i, h := range history {
		points[i] = quantmodel.Point{ExecutedOn: h.ExecutedOn, Value: h.Value}
	}
	return points
}

func toQuantResultRecord(fused quantmodel.FusedResult) model.QuantResult {
	return model.QuantResult{
		MeanAD:         fused.ZScore.MeanAD,
		MedianAD:       fused.ZScore.MedianAD,
		ModifiedZScore: fused.ZScore.ModifiedZScore,
		ExpectedValue:  fused.Expected,
		ExpectedUpper:  fused.Upper,
		ExpectedLower:  fused.Lower,
		Deviation:      fused.Deviation,
		IsAnomalous:    fused.IsAnomaly,
		Importance:     fused.Importance,
	}
}

func toSchema(cols []model.ColumnDef) model.Schema {
	schema := make(model.Schema, len(cols))
	for _, c := range cols {
		schema[strconv.Itoa(c.OrdinalPosition)] = c
	}
	return schema
}
