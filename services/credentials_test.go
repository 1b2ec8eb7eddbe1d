package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceAccount(t *testing.T) (*ServiceAccount, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return &ServiceAccount{
		ProjectID:    "ruuvi-test",
		PrivateKeyID: "kid-123",
		PrivateKey:   string(pemKey),
		ClientEmail:  "gateway@ruuvi-test.iam.gserviceaccount.com",
	}, key
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func TestParseServiceAccount(t *testing.T) {
	sa, err := ParseServiceAccount([]byte(`{"project_id":"p","private_key_id":"k","private_key":"pem","client_email":"a@b"}`))
	require.NoError(t, err)
	assert.Equal(t, "p", sa.ProjectID)

	_, err = ParseServiceAccount([]byte(`{"project_id":"p"}`))
	assert.Error(t, err)
	_, err = ParseServiceAccount([]byte(`not json`))
	assert.Error(t, err)
}

func TestCredentialIssuer_SignsVerifiableToken(t *testing.T) {
	sa, key := testServiceAccount(t)
	clock := &fakeClock{t: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	issuer, err := NewCredentialIssuer(sa, "", clock.Now)
	require.NoError(t, err)

	tok, err := issuer.Token()
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, clock.t.Add(time.Hour), tok.Expiry)

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tok.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	}, jwt.WithoutClaimsValidation())
	require.NoError(t, err)
	assert.Equal(t, "kid-123", parsed.Header["kid"])
	assert.Equal(t, "RS256", parsed.Header["alg"])
	assert.Equal(t, sa.ClientEmail, claims.Issuer)
	assert.Equal(t, sa.ClientEmail, claims.Subject)
	assert.Equal(t, jwt.ClaimStrings{FirestoreAudience}, claims.Audience)
}

func TestCredentialIssuer_CachesUntilRefreshWindow(t *testing.T) {
	sa, _ := testServiceAccount(t)
	clock := &fakeClock{t: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	issuer, err := NewCredentialIssuer(sa, "", clock.Now)
	require.NoError(t, err)

	first, err := issuer.Token()
	require.NoError(t, err)

	clock.t = clock.t.Add(54 * time.Minute)
	cached, err := issuer.Token()
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, cached.AccessToken)

	clock.t = clock.t.Add(time.Minute) // 55 min: inside the 5 minute refresh window
	refreshed, err := issuer.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, refreshed.AccessToken)
}

func TestCredentialIssuer_Invalidate(t *testing.T) {
	sa, _ := testServiceAccount(t)
	clock := &fakeClock{t: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	issuer, err := NewCredentialIssuer(sa, "", clock.Now)
	require.NoError(t, err)

	first, err := issuer.Token()
	require.NoError(t, err)
	issuer.Invalidate()
	clock.t = clock.t.Add(time.Second)
	second, err := issuer.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
}

func TestCredentialIssuer_RejectsUnsetClock(t *testing.T) {
	sa, _ := testServiceAccount(t)
	clock := &fakeClock{t: time.Unix(86400, 0)}
	issuer, err := NewCredentialIssuer(sa, "", clock.Now)
	require.NoError(t, err)

	_, err = issuer.Token()
	assert.ErrorIs(t, err, ErrClockNotSet)
}

func TestNewCredentialIssuer_BadKey(t *testing.T) {
	_, err := NewCredentialIssuer(&ServiceAccount{PrivateKey: "nope", ClientEmail: "a@b"}, "", nil)
	assert.Error(t, err)
}
