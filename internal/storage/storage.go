// Package storage implements the Storage Adapter: narrow single-document
// operations against a per-tenant collection set, backed by a
// MongoDB-compatible document store. Every collection name is suffixed
// with the tenant id for isolation.
package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cito-data/test-engine/internal/apperror"
	"github.com/cito-data/test-engine/internal/model"
	"github.com/cito-data/test-engine/internal/ports"
	"github.com/cito-data/test-engine/internal/testtype"
)

// Collection base names; the tenant id is appended as "_{tenantId}" at
// call time.
const (
	collTestSuites         = "test_suites"
	collTestSuitesQual     = "test_suites_qual"
	collTestSuitesCustom   = "test_suites_custom"
	collTestHistory        = "test_history"
	collTestHistoryQual    = "test_history_qual"
	collTestResults        = "test_results"
	collTestResultsQual    = "test_results_qual"
	collTestExecutions     = "test_executions"
	collTestExecutionsQual = "test_executions_qual"
	collTestAlerts         = "test_alerts"
	collTestAlertsQual     = "test_alerts_qual"
)

// Adapter is the document-store-backed implementation of ports.Storage. The
// handle is acquired once when the Adapter is built and reused for every
// call rather than opened per call.
type Adapter struct {
	db *mongo.Database
}

// New wraps an already-connected database handle. Connection lifecycle
// (Connect/Disconnect, server selection timeout) is the caller's concern;
// New takes a ready handle rather than a connection string.
func New(db *mongo.Database) *Adapter {
	return &Adapter{db: db}
}

func collection(db *mongo.Database, base, tenantID string) *mongo.Collection {
	return db.Collection(fmt.Sprintf("%s_%s", base, tenantID))
}

func suiteCollectionName(kind testtype.Kind) string {
	switch kind {
	case testtype.KindQualitative:
		return collTestSuitesQual
	case testtype.KindCustom:
		return collTestSuitesCustom
	default:
		return collTestSuites
	}
}

// GetTestDefinition selects the collection matching kind and requires
// exactly one matching document.
func (a *Adapter) GetTestDefinition(ctx context.Context, tenantID, suiteID string, kind testtype.Kind) (*model.TestDefinition, error) {
	coll := collection(a.db, suiteCollectionName(kind), tenantID)

	count, err := coll.CountDocuments(ctx, bson.M{"id": suiteID})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDownstream, "count test definitions", err)
	}
	if count != 1 {
		return nil, apperror.New(apperror.KindDataShape, "test definition: more than one or none")
	}

	var doc testSuiteDoc
	if err := coll.FindOne(ctx, bson.M{"id": suiteID}).Decode(&doc); err != nil {
		return nil, apperror.Wrap(apperror.KindDownstream, "load test definition", err)
	}
	return doc.toModel(), nil
}

// GetHistory joins test_history with test_executions on execution_id,
// applies the user-feedback override filter, and returns the (executedOn,
// value) projection in ascending executedOn order.
func (a *Adapter) GetHistory(ctx context.Context, tenantID, suiteID string) ([]ports.HistoryPoint, error) {
	historyColl := collection(a.db, collTestHistory, tenantID)
	executionsName := fmt.Sprintf("%s_%s", collTestExecutions, tenantID)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"test_suite_id": suiteID,
			"$or": bson.A{
				bson.M{"is_anomaly": bson.M{"$ne": true}},
				bson.M{"user_feedback_is_anomaly": 0},
			},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         executionsName,
			"localField":   "execution_id",
			"foreignField": "id",
			"as":           "execution",
		}}},
		{{Key: "$unwind", Value: "$execution"}},
		{{Key: "$sort", Value: bson.M{"execution.executed_on": 1}}},
		{{Key: "$project", Value: bson.M{
			"_id":         0,
			"executed_on": "$execution.executed_on",
			"value":       1,
		}}},
	}

	cur, err := historyColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDownstream, "load history", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		ExecutedOn time.Time `bson:"executed_on"`
		Value      float64   `bson:"value"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, apperror.Wrap(apperror.KindDownstream, "decode history", err)
	}

	points := make([]ports.HistoryPoint, len(rows))
	for i, r := range rows {
		points[i] = ports.HistoryPoint{ExecutedOn: r.ExecutedOn, Value: r.Value}
	}
	return points, nil
}

// GetLastQualSchema picks the most recent test_executions_qual by
// executed_on desc, joins test_history_qual on execution_id, and unwinds.
// An empty result means there is no prior snapshot.
func (a *Adapter) GetLastQualSchema(ctx context.Context, tenantID, suiteID string) (*model.QualHistoryEntry, error) {
	executionsColl := collection(a.db, collTestExecutionsQual, tenantID)
	historyName := fmt.Sprintf("%s_%s", collTestHistoryQual, tenantID)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"test_suite_id": suiteID}}},
		{{Key: "$sort", Value: bson.M{"executed_on": -1}}},
		{{Key: "$limit", Value: 1}},
		{{Key: "$lookup", Value: bson.M{
			"from":         historyName,
			"localField":   "id",
			"foreignField": "execution_id",
			"as":           "history",
		}}},
		{{Key: "$unwind", Value: "$history"}},
	}

	cur, err := executionsColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindDownstream, "load last qual schema", err)
	}
	defer cur.Close(ctx)

	var rows []qualHistoryDoc
	if err := cur.All(ctx, &rows); err != nil {
		return nil, apperror.Wrap(apperror.KindDownstream, "decode last qual schema", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toModel(), nil
}

// InsertExecution writes one ExecutionRecord.
func (a *Adapter) InsertExecution(ctx context.Context, tenantID string, rec model.ExecutionRecord) error {
	return insertAcknowledged(ctx, collection(a.db, collTestExecutions, tenantID), bson.M{
		"id":            rec.ID,
		"executed_on":   rec.ExecutedOn,
		"test_suite_id": rec.TestSuiteID,
	})
}

// InsertQualExecution writes one ExecutionRecord for a qualitative run,
// into the separate test_executions_qual collection GetLastQualSchema
// reads from.
func (a *Adapter) InsertQualExecution(ctx context.Context, tenantID string, rec model.ExecutionRecord) error {
	return insertAcknowledged(ctx, collection(a.db, collTestExecutionsQual, tenantID), bson.M{
		"id":            rec.ID,
		"executed_on":   rec.ExecutedOn,
		"test_suite_id": rec.TestSuiteID,
	})
}

// InsertHistory writes one quantitative HistoryEntry.
func (a *Adapter) InsertHistory(ctx context.Context, tenantID string, entry model.HistoryEntry) error {
	return insertAcknowledged(ctx, collection(a.db, collTestHistory, tenantID), bson.M{
		"id":                       entry.ID,
		"test_type":                entry.TestType,
		"value":                    entry.Value,
		"is_anomaly":               entry.IsAnomaly,
		"user_feedback_is_anomaly": entry.UserFeedbackIsAnomaly,
		"test_suite_id":            entry.TestSuiteID,
		"execution_id":             entry.ExecutionID,
		"alert_id":                 entry.AlertID,
		"executed_on":              entry.ExecutedOn,
	})
}

// InsertQualHistory writes one schema-snapshot HistoryEntry. The schema map
// is written through schemaDocFromModel so its keys match what
// GetLastQualSchema decodes.
func (a *Adapter) InsertQualHistory(ctx context.Context, tenantID string, entry model.QualHistoryEntry) error {
	return insertAcknowledged(ctx, collection(a.db, collTestHistoryQual, tenantID), bson.M{
		"id":           entry.ID,
		"value":        schemaDocFromModel(entry.Value),
		"is_identical": entry.IsIdentical,
		"execution_id": entry.ExecutionID,
		"alert_id":     entry.AlertID,
		"executed_on":  entry.ExecutedOn,
	})
}

// InsertResult writes one quantitative ResultRecord. The storage boundary
// standardizes the anomaly field name on "is_anomalous".
func (a *Adapter) InsertResult(ctx context.Context, tenantID string, suiteID, executionID string, result model.QuantResult) error {
	return insertAcknowledged(ctx, collection(a.db, collTestResults, tenantID), bson.M{
		"test_suite_id":    suiteID,
		"execution_id":     executionID,
		"mean_ad":          result.MeanAD,
		"median_ad":        result.MedianAD,
		"modified_z_score": result.ModifiedZScore,
		"expected_value":   result.ExpectedValue,
		"expected_upper":   result.ExpectedUpper,
		"expected_lower":   result.ExpectedLower,
		"deviation":        result.Deviation,
		"is_anomalous":     result.IsAnomalous,
		"importance":       result.Importance,
	})
}

// InsertQualResult writes one qualitative ResultRecord.
func (a *Adapter) InsertQualResult(ctx context.Context, tenantID string, suiteID, executionID string, result model.QualResult) error {
	return insertAcknowledged(ctx, collection(a.db, collTestResultsQual, tenantID), bson.M{
		"test_suite_id":  suiteID,
		"execution_id":   executionID,
		"expected_value": result.ExpectedValue,
		"deviation":      result.Deviations,
		"is_identical":   result.IsIdentical,
	})
}

// InsertAlert writes one Alert, into the quant or qual collection per kind.
func (a *Adapter) InsertAlert(ctx context.Context, tenantID string, kind testtype.Kind, alert model.Alert) error {
	base := collTestAlerts
	if kind == testtype.KindQualitative {
		base = collTestAlertsQual
	}
	return insertAcknowledged(ctx, collection(a.db, base, tenantID), bson.M{
		"id":            alert.ID,
		"test_type":     alert.TestType,
		"message":       alert.Message,
		"test_suite_id": alert.TestSuiteID,
		"execution_id":  alert.ExecutionID,
	})
}

// UpdateLastAlertSent must affect exactly one document.
func (a *Adapter) UpdateLastAlertSent(ctx context.Context, tenantID, suiteID string, kind testtype.Kind, sentAt time.Time) error {
	coll := collection(a.db, suiteCollectionName(kind), tenantID)
	res, err := coll.UpdateOne(ctx,
		bson.M{"id": suiteID},
		bson.M{"$set": bson.M{"last_alert_sent": sentAt}},
	)
	if err != nil {
		return apperror.Wrap(apperror.KindDownstream, "update last alert sent", err)
	}
	if res.MatchedCount != 1 {
		return apperror.New(apperror.KindDataShape, "update last alert sent: expected exactly one match")
	}
	return nil
}

func insertAcknowledged(ctx context.Context, coll *mongo.Collection, doc bson.M) error {
	res, err := coll.InsertOne(ctx, doc, options.InsertOne())
	if err != nil {
		return apperror.Wrap(apperror.KindDownstream, "insert document", err)
	}
	if res.InsertedID == nil {
		return apperror.New(apperror.KindDownstream, "insert not acknowledged")
	}
	return nil
}
