package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/forgeapps/licensing-backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return string(pem.EncodeToMemory(block))
}

func TestSignerRoundTrip(t *testing.T) {
	signer, err := NewSigner(testKeyPEM(t), "licensing-backend")
	require.NoError(t, err)
	require.True(t, signer.Ready())

	trialStart := time.Now().UTC().Truncate(time.Second)
	lk := &models.LicenseKey{
		ID:         uuid.New(),
		Type:       models.LicenseTypeTrial,
		TrialStart: &trialStart,
	}
	jti := uuid.NewString()

	signed, err := signer.SignActivation(lk, jti, "abc123hash", time.Now())
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := signer.VerifyActivation(signed)
	require.NoError(t, err)
	assert.Equal(t, lk.ID.String(), claims.LicenseID)
	assert.Equal(t, jti, claims.JTI)
	assert.Equal(t, models.LicenseTypeTrial, claims.Type)
	assert.Equal(t, "abc123hash", claims.MachineID)
	assert.Equal(t, trialStart.Unix(), claims.TrialStart)
}

func TestSignerFailsClosedWithoutKey(t *testing.T) {
	signer, err := NewSigner("", "licensing-backend")
	require.NoError(t, err)
	assert.False(t, signer.Ready())

	_, err = signer.SignActivation(&models.LicenseKey{ID: uuid.New()}, uuid.NewString(), "hash", time.Now())
	assert.ErrorIs(t, err, ErrNoSigningKey)

	_, err = signer.VerifyActivation("anything")
	assert.ErrorIs(t, err, ErrNoSigningKey)
}

func TestSignerRejectsMalformedKey(t *testing.T) {
	_, err := NewSigner("not a pem key", "licensing-backend")
	assert.Error(t, err)
}

func TestSignerRejectsTokenFromOtherKey(t *testing.T) {
	a, err := NewSigner(testKeyPEM(t), "licensing-backend")
	require.NoError(t, err)
	b, err := NewSigner(testKeyPEM(t), "licensing-backend")
	require.NoError(t, err)

	signed, err := a.SignActivation(&models.LicenseKey{ID: uuid.New(), Type: models.LicenseTypePro},
		uuid.NewString(), "hash", time.Now())
	require.NoError(t, err)

	_, err = b.VerifyActivation(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionSignerRoundTrip(t *testing.T) {
	sessions := NewSessionSigner("test-secret", time.Hour)

	customer := &models.Customer{
		ID:    uuid.New(),
		Email: "jamie@example.com",
		Role:  models.RoleStaff,
	}

	signed, err := sessions.SignSession(customer)
	require.NoError(t, err)

	id, role, err := sessions.VerifySession(signed)
	require.NoError(t, err)
	assert.Equal(t, customer.ID, id)
	assert.Equal(t, models.RoleStaff, role)
}

func TestSessionSignerRejectsWrongSecret(t *testing.T) {
	sessions := NewSessionSigner("secret-a", time.Hour)
	other := NewSessionSigner("secret-b", time.Hour)

	signed, err := sessions.SignSession(&models.Customer{ID: uuid.New(), Role: models.RoleCustomer})
	require.NoError(t, err)

	_, _, err = other.VerifySession(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionSignerRejectsActivationTokens(t *testing.T) {
	// RS256 activation tokens must never pass as HS256 sessions.
	signer, err := NewSigner(testKeyPEM(t), "licensing-backend")
	require.NoError(t, err)
	sessions := NewSessionSigner("test-secret", time.Hour)

	signed, err := signer.SignActivation(&models.LicenseKey{ID: uuid.New(), Type: models.LicenseTypePaid},
		uuid.NewString(), "hash", time.Now())
	require.NoError(t, err)

	_, _, err = sessions.VerifySession(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionSignerExpiry(t *testing.T) {
	sessions := NewSessionSigner("test-secret", -time.Minute)

	signed, err := sessions.SignSession(&models.Customer{ID: uuid.New(), Role: models.RoleCustomer})
	require.NoError(t, err)

	_, _, err = sessions.VerifySession(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
