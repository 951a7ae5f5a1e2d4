// Package authjwt verifies the Cognito-issued bearer tokens the engine's
// HTTP entrypoint receives: fetch the user pool's JWKS, pick the key
// matching the token's kid, and verify an RS256 signature. Claim validation
// (issuer and expiry) is layered on top since go-jose only verifies the
// signature; a not-before claim is not checked.
package authjwt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/cito-data/test-engine/internal/apperror"
)

// Claims is the subset of a Cognito access/id token payload the engine
// cares about.
type Claims struct {
	Subject        string `json:"sub"`
	TokenUse       string `json:"token_use"`
	Issuer         string `json:"iss"`
	ExpiresAt      int64  `json:"exp"`
	IssuedAt       int64  `json:"iat"`
	OrganizationID string `json:"custom:organizationId"`
}

// KeySetFetcher retrieves the user pool's JWKS document. Production code
// uses HTTPKeySetFetcher; tests substitute a fixed key set.
type KeySetFetcher func(ctx context.Context) (jose.JSONWebKeySet, error)

// Verifier validates bearer tokens against one Cognito user pool.
type Verifier struct {
	issuer  string
	fetch   KeySetFetcher
	mu      sync.Mutex
	cache   jose.JSONWebKeySet
	fetched time.Time
	ttl     time.Duration
}

// NewVerifier builds a Verifier for the pool at
// https://cognito-idp.{region}.amazonaws.com/{userPoolID}.
func NewVerifier(region, userPoolID string) *Verifier {
	issuer := fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
	return &Verifier{
		issuer: issuer,
		fetch:  HTTPKeySetFetcher(issuer + "/.well-known/jwks.json"),
		ttl:    time.Hour,
	}
}

// NewCustomVerifier builds a Verifier against an arbitrary issuer and key
// set source, bypassing the Cognito URL convention NewVerifier assumes.
// Tests use this to substitute a fixed key set.
func NewCustomVerifier(issuer string, fetch KeySetFetcher) *Verifier {
	return &Verifier{issuer: issuer, fetch: fetch, ttl: time.Hour}
}

// HTTPKeySetFetcher fetches and decodes a JWKS document over HTTP.
func HTTPKeySetFetcher(jwksURL string) KeySetFetcher {
	return func(ctx context.Context) (jose.JSONWebKeySet, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
		if err != nil {
			return jose.JSONWebKeySet{}, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return jose.JSONWebKeySet{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return jose.JSONWebKeySet{}, fmt.Errorf("fetch jwks: unexpected status %d", resp.StatusCode)
		}
		var set jose.JSONWebKeySet
		if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
			return jose.JSONWebKeySet{}, fmt.Errorf("decode jwks: %w", err)
		}
		return set, nil
	}
}

// Verify parses rawToken, resolves its signing key from the cached (or
// freshly fetched) JWKS by kid, checks the signature, and validates
// issuer/expiry. It returns apperror.KindUnauthorized on any failure.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (Claims, error) {
	rawToken = strings.TrimPrefix(strings.TrimSpace(rawToken), "Bearer ")
	if rawToken == "" {
		return Claims{}, apperror.New(apperror.KindUnauthorized, "missing bearer token")
	}

	tok, err := jwt.ParseSigned(rawToken, []jose.SignatureAlgorithm{jose.RS256})
	if err != nil {
		return Claims{}, apperror.Wrap(apperror.KindUnauthorized, "parse token", err)
	}
	if len(tok.Headers) == 0 {
		return Claims{}, apperror.New(apperror.KindUnauthorized, "token carries no header")
	}
	kid := tok.Headers[0].KeyID

	keySet, err := v.keySet(ctx)
	if err != nil {
		return Claims{}, apperror.Wrap(apperror.KindUnauthorized, "fetch signing keys", err)
	}
	matches := keySet.Key(kid)
	if len(matches) == 0 {
		// key rotated since last fetch; force a refresh once before failing
		keySet, err = v.forceKeySet(ctx)
		if err != nil {
			return Claims{}, apperror.Wrap(apperror.KindUnauthorized, "refresh signing keys", err)
		}
		matches = keySet.Key(kid)
		if len(matches) == 0 {
			return Claims{}, apperror.New(apperror.KindUnauthorized, "no signing key for kid "+kid)
		}
	}

	var claims Claims
	if err := tok.Claims(matches[0].Key, &claims); err != nil {
		return Claims{}, apperror.Wrap(apperror.KindUnauthorized, "verify signature", err)
	}

	if claims.Issuer != v.issuer {
		return Claims{}, apperror.New(apperror.KindUnauthorized, "unexpected issuer: "+claims.Issuer)
	}
	if claims.ExpiresAt != 0 && time.Unix(claims.ExpiresAt, 0).Before(time.Now()) {
		return Claims{}, apperror.New(apperror.KindUnauthorized, "token expired")
	}

	return claims, nil
}

func (v *Verifier) keySet(ctx context.Context) (jose.JSONWebKeySet, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if time.Since(v.fetched) < v.ttl && len(v.cache.Keys) > 0 {
		return v.cache, nil
	}
	set, err := v.fetch(ctx)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	v.cache = set
	v.fetched = time.Now()
	return set, nil
}

func (v *Verifier) forceKeySet(ctx context.Context) (jose.JSONWebKeySet, error) {
	v.mu.Lock()
	v.fetched = time.Time{}
	v.mu.Unlock()
	return v.keySet(ctx)
}
