package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/cito-data/test-engine/internal/authjwt"
	"github.com/cito-data/test-engine/internal/model"
	"github.com/cito-data/test-engine/internal/ports"
	"github.com/cito-data/test-engine/internal/testtype"
)

const testIssuer = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_test"

func newFixedKeyVerifier(key *rsa.PrivateKey, kid string) *authjwt.Verifier {
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: string(jose.RS256), Use: "sig"}
	fetch := func(ctx context.Context) (jose.JSONWebKeySet, error) {
		return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}, nil
	}
	return authjwt.NewCustomVerifier(testIssuer, fetch)
}

// fakeWarehouse returns a canned scalar for every query.
type fakeWarehouse struct {
	scalar float64
}

func (w *fakeWarehouse) ScalarRow(ctx context.Context, sql, resultColumn string) (float64, error) {
	return w.scalar, nil
}

func (w *fakeWarehouse) SchemaRows(ctx context.Context, sql string) ([]model.ColumnDef, error) {
	return nil, nil
}

func (w *fakeWarehouse) CustomMetric(ctx context.Context, sql string) (string, float64, error) {
	return "metric", w.scalar, nil
}

// fakeStorage is a minimal in-memory ports.Storage good enough to drive one
// execution end to end through the HTTP layer.
type fakeStorage struct {
	def     *model.TestDefinition
	history []ports.HistoryPoint
}

func (s *fakeStorage) GetTestDefinition(ctx context.Context, tenantID, suiteID string, kind testtype.Kind) (*model.TestDefinition, error) {
	return s.def, nil
}

func (s *fakeStorage) GetHistory(ctx context.Context, tenantID, suiteID string) ([]ports.HistoryPoint, error) {
	return s.history, nil
}

func (s *fakeStorage) GetLastQualSchema(ctx context.Context, tenantID, suiteID string) (*model.QualHistoryEntry, error) {
	return nil, nil
}

func (s *fakeStorage) InsertExecution(ctx context.Context, tenantID string, rec model.ExecutionRecord) error {
	return nil
}

func (s *fakeStorage) InsertQualExecution(ctx context.Context, tenantID string, rec model.ExecutionRecord) error {
	return nil
}

func (s *fakeStorage) InsertHistory(ctx context.Context, tenantID string, entry model.HistoryEntry) error {
	return nil
}

func (s *fakeStorage) InsertQualHistory(ctx context.Context, tenantID string, entry model.QualHistoryEntry) error {
	return nil
}

func (s *fakeStorage) InsertResult(ctx context.Context, tenantID string, suiteID, executionID string, result model.QuantResult) error {
	return nil
}

func (s *fakeStorage) InsertQualResult(ctx context.Context, tenantID string, suiteID, executionID string, result model.QualResult) error {
	return nil
}

func (s *fakeStorage) InsertAlert(ctx context.Context, tenantID string, kind testtype.Kind, alert model.Alert) error {
	return nil
}

func (s *fakeStorage) UpdateLastAlertSent(ctx context.Context, tenantID, suiteID string, kind testtype.Kind, sentAt time.Time) error {
	return nil
}

func stableHistoryPoints(n int, value float64, start time.Time) []ports.HistoryPoint {
	points := make([]ports.HistoryPoint, n)
	for i := 0; i < n; i++ {
		points[i] = ports.HistoryPoint{ExecutedOn: start.Add(time.Duration(i) * 24 * time.Hour), Value: value}
	}
	return points
}

func generateRSAKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
}

func signToken(key *rsa.PrivateKey, kid string, claims any) string {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithHeader("kid", kid),
	)
	if err != nil {
		panic(err)
	}
	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		panic(err)
	}
	return raw
}
