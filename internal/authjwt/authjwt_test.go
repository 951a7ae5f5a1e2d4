package authjwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cito-data/test-engine/internal/apperror"
)

const testIssuer = "https://cognito-idp.us-east-1.amazonaws.com/us-east-1_test"

func newSignedToken(t *testing.T, key *rsa.PrivateKey, kid string, claims Claims) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithHeader("kid", kid),
	)
	require.NoError(t, err)
	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw
}

func verifierWithFixedKey(key *rsa.PrivateKey, kid string) *Verifier {
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: kid, Algorithm: string(jose.RS256), Use: "sig"}
	fetch := func(ctx context.Context) (jose.JSONWebKeySet, error) {
		return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}}, nil
	}
	return &Verifier{issuer: testIssuer, fetch: fetch, ttl: time.Hour}
}

func TestVerifyValidTokenReturnsClaims(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := Claims{Subject: "user-1", Issuer: testIssuer, ExpiresAt: time.Now().Add(time.Hour).Unix(), OrganizationID: "org-1"}
	raw := newSignedToken(t, key, "key-1", claims)

	v := verifierWithFixedKey(key, "key-1")
	got, err := v.Verify(context.Background(), "Bearer "+raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Subject)
	assert.Equal(t, "org-1", got.OrganizationID)
}

func TestVerifyEmptyTokenFails(t *testing.T) {
	v := &Verifier{issuer: testIssuer, ttl: time.Hour}
	_, err := v.Verify(context.Background(), "   ")
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}

func TestVerifyWrongIssuerFails(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := Claims{Subject: "user-1", Issuer: "https://evil.example.com", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	raw := newSignedToken(t, key, "key-1", claims)

	v := verifierWithFixedKey(key, "key-1")
	_, err = v.Verify(context.Background(), raw)
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}

func TestVerifyExpiredTokenFails(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := Claims{Subject: "user-1", Issuer: testIssuer, ExpiresAt: time.Now().Add(-time.Hour).Unix()}
	raw := newSignedToken(t, key, "key-1", claims)

	v := verifierWithFixedKey(key, "key-1")
	_, err = v.Verify(context.Background(), raw)
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}

func TestVerifyUnknownKidRefetchesThenFails(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := Claims{Subject: "user-1", Issuer: testIssuer, ExpiresAt: time.Now().Add(time.Hour).Unix()}
	raw := newSignedToken(t, key, "key-missing", claims)

	v := verifierWithFixedKey(otherKey, "key-1")
	_, err = v.Verify(context.Background(), raw)
	assert.Equal(t, apperror.KindUnauthorized, apperror.KindOf(err))
}
