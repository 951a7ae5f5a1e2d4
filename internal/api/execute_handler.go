package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cito-data/test-engine/internal/account"
	"github.com/cito-data/test-engine/internal/apperror"
	"github.com/cito-data/test-engine/internal/authjwt"
	"github.com/cito-data/test-engine/internal/envelope"
	"github.com/cito-data/test-engine/internal/executor"
	"github.com/cito-data/test-engine/internal/observability"
	"github.com/cito-data/test-engine/internal/webhook"
)

type contextKey string

const claimsContextKey contextKey = "test-engine.auth.claims"

// ExecuteHandler serves the test execution endpoint.
type ExecuteHandler struct {
	Executor *executor.Executor
	Verifier *authjwt.Verifier
	Accounts *account.Client
	Webhook  *webhook.Client
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// executeRequestBody is the JSON body of a POST .../execute call.
type executeRequestBody struct {
	TestType             string `json:"testType"`
	TargetOrganizationID string `json:"targetOrganizationId,omitempty"`
}

// Authenticate verifies the bearer token and resolves the caller's
// organization membership through the account service before the request
// reaches Execute.
func (h *ExecuteHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := h.Verifier.Verify(r.Context(), rawToken)
		if err != nil {
			respondError(w, h.Logger, http.StatusUnauthorized, "authentication failed", err)
			return
		}

		if h.Accounts != nil {
			accounts, err := h.Accounts.GetByUserID(r.Context(), claims.Subject, rawToken)
			if err != nil || len(accounts) == 0 {
				respondError(w, h.Logger, http.StatusUnauthorized, "account lookup failed", err)
				return
			}
			if claims.OrganizationID == "" {
				claims.OrganizationID = accounts[0].OrganizationID
			}
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Execute handles POST /test-engine/v1/test-suites/{testSuiteId}/execute.
func (h *ExecuteHandler) Execute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, _ := ctx.Value(claimsContextKey).(authjwt.Claims)
	rawToken := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	var body executeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, h.Logger, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if body.TestType == "" {
		respondError(w, h.Logger, http.StatusBadRequest, "testType is required", nil)
		return
	}

	req := executor.Request{
		TestSuiteID: chi.URLParam(r, "testSuiteId"),
		TestType:    body.TestType,
		TargetOrgID: body.TargetOrganizationID,
	}
	auth := executor.Auth{
		JWT:              rawToken,
		CallerOrgID:      claims.OrganizationID,
		IsSystemInternal: claims.TokenUse == "access" && body.TargetOrganizationID != "",
	}

	started := time.Now()
	result, err := h.Executor.Execute(ctx, req, auth)
	h.recordMetrics(body.TestType, started, result, err)
	if err != nil {
		respondDomainError(w, h.Logger, err)
		return
	}

	if h.Webhook != nil {
		go h.broadcast(req, result, rawToken)
	}

	respondJSON(w, http.StatusCreated, result)
}

func (h *ExecuteHandler) recordMetrics(testType string, started time.Time, result any, err error) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.Duration.WithLabelValues(testType).Observe(time.Since(started).Seconds())

	// A failed run can still carry a typed nil envelope, so the error is
	// checked before the envelope is inspected.
	if err != nil {
		h.Metrics.Executions.WithLabelValues(testType, "failure").Inc()
		return
	}

	outcome := "success"
	anomalous := false
	switch r := result.(type) {
	case *envelope.QuantResult:
		if r.IsWarmup {
			outcome = "warmup"
		}
		anomalous = r.AlertData != nil
	case *envelope.CustomResult:
		if r.IsWarmup {
			outcome = "warmup"
		}
		anomalous = r.AlertData != nil
	case *envelope.QualResult:
		anomalous = r.AlertData != nil
	default:
		if err != nil {
			outcome = "failure"
		}
	}
	h.Metrics.Executions.WithLabelValues(testType, outcome).Inc()
	if anomalous {
		h.Metrics.Anomalies.WithLabelValues(testType).Inc()
	}
}

func (h *ExecuteHandler) broadcast(req executor.Request, result any, jwt string) {
	ctx := context.Background()
	var err error
	if strings.HasPrefix(req.TestType, "Qual") || req.TestType == "MaterializationSchemaChange" {
		err = h.Webhook.SendQual(ctx, req.TestSuiteID, result, jwt)
	} else {
		err = h.Webhook.SendQuant(ctx, req.TestSuiteID, result, jwt)
	}
	if err != nil {
		h.Logger.Warn("failed to broadcast test execution result", zap.Error(err), zap.String("test_suite_id", req.TestSuiteID))
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, logger *zap.Logger, status int, message string, err error) {
	if err != nil {
		logger.Warn(message, zap.Error(err), zap.Int("status", status))
	} else {
		logger.Warn(message, zap.Int("status", status))
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"title":  http.StatusText(status),
		"detail": message,
	})
}

// respondDomainError maps an apperror.Kind to its HTTP status.
func respondDomainError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	switch apperror.KindOf(err) {
	case apperror.KindConfiguration, apperror.KindDataShape:
		status = http.StatusBadRequest
	case apperror.KindUnauthorized:
		status = http.StatusUnauthorized
	}
	respondError(w, logger, status, err.Error(), err)
}
