// Package executor implements the test execution engine: the state
// machine that resolves a test definition to a driver, fetches a fresh
// measurement, loads history, enforces the warm-up gate, runs the
// appropriate analysis model, persists the outcome, and returns a result
// envelope.
package executor

import (
	"time"

	"github.com/cito-data/test-engine/internal/apperror"
)

// Request identifies the test suite to run.
type Request struct {
	TestSuiteID  string
	TestType     string
	TargetOrgID  string // optional; mutually exclusive with Auth.CallerOrgID
}

// Auth carries the caller's authentication/authorization context.
// The JWT itself is opaque to the executor; it is validated upstream by the
// external auth collaborator and is only threaded through in case a
// downstream collaborator (account lookup) needs to present it.
type Auth struct {
	JWT              string
	CallerOrgID      string
	IsSystemInternal bool
}

// Tenancy identifies the organization a test execution runs against, once
// the org-id resolution rule has been applied to a request/auth pair.
type Tenancy struct {
	OrganizationID string
}

// resolveTenancy implements the tenancy resolution rule: exactly one of
// req.TargetOrgID, auth.CallerOrgID must be present; system-internal
// callers must supply TargetOrgID, others must supply CallerOrgID.
func resolveTenancy(req Request, auth Auth) (Tenancy, error) {
	hasTarget := req.TargetOrgID != ""
	hasCaller := auth.CallerOrgID != ""

	if hasTarget == hasCaller {
		return Tenancy{}, apperror.New(apperror.KindUnauthorized, "exactly one of targetOrgId, callerOrgId must be present")
	}

	if auth.IsSystemInternal {
		if !hasTarget {
			return Tenancy{}, apperror.New(apperror.KindUnauthorized, "system-internal callers must supply targetOrgId")
		}
		return Tenancy{OrganizationID: req.TargetOrgID}, nil
	}

	if !hasCaller {
		return Tenancy{}, apperror.New(apperror.KindUnauthorized, "non-system callers must supply callerOrgId")
	}
	return Tenancy{OrganizationID: auth.CallerOrgID}, nil
}

// DefaultWarmupMaxSamples and DefaultWarmupMaxDays are the built-in
// warm-up thresholds; Executor.WarmupMaxSamples/WarmupMaxDays default
// to these when left at zero.
const (
	DefaultWarmupMaxSamples = 30
	DefaultWarmupMaxDays    = 7
)

// warmup reports whether a run with n prior history points spanning the
// given duration since the oldest point is a warm-up run. The exit
// condition is an AND of both thresholds (n > maxSamples AND days >
// maxDays) — the engine stays in warm-up, judging nothing, until whichever
// of the two thresholds is crossed last.
func warmup(n int, oldestToNow time.Duration, maxSamples, maxDays int) bool {
	days := 0.0
	if n > 0 {
		days = oldestToNow.Hours() / 24
	}
	exceededSamples := n > maxSamples
	exceededDays := days > float64(maxDays)
	return !(exceededSamples && exceededDays)
}
