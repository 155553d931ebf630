package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/nortide/identity/pkg/errors"
)

const testSecret = "test-secret-key-at-least-32-bytes-long"

func newTestService() *Service {
	return NewService(testSecret, "identity", "identity-api", 15*time.Minute)
}

func TestSignVerify_RoundTrip(t *testing.T) {
	svc := newTestService()

	signed, err := svc.Sign("user-1", "sess-1", "a@x.com", "user")
	require.NoError(t, err)

	claims, err := svc.Verify(signed)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "identity", claims.Issuer)
	assert.Contains(t, []string(claims.Audience), "identity-api")
	assert.True(t, claims.ExpiresAt.After(time.Now()))
}

func TestVerify_Garbage(t *testing.T) {
	svc := newTestService()

	_, err := svc.Verify("not.a.token")
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)

	_, err = svc.Verify("")
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestVerify_WrongSignature(t *testing.T) {
	other := NewService("another-secret-key-also-32-bytes-xx", "identity", "identity-api", time.Minute)
	signed, err := other.Sign("user-1", "sess-1", "a@x.com", "user")
	require.NoError(t, err)

	_, err = newTestService().Verify(signed)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestVerify_Expired(t *testing.T) {
	svc := NewService(testSecret, "identity", "identity-api", -time.Minute)

	signed, err := svc.Sign("user-1", "sess-1", "a@x.com", "user")
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
}

func TestVerify_WrongIssuer(t *testing.T) {
	other := NewService(testSecret, "someone-else", "identity-api", time.Minute)
	signed, err := other.Sign("user-1", "sess-1", "a@x.com", "user")
	require.NoError(t, err)

	_, err = newTestService().Verify(signed)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestVerify_WrongAudience(t *testing.T) {
	other := NewService(testSecret, "identity", "another-audience", time.Minute)
	signed, err := other.Sign("user-1", "sess-1", "a@x.com", "user")
	require.NoError(t, err)

	_, err = newTestService().Verify(signed)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestVerify_RejectsUnsignedAlgorithm(t *testing.T) {
	claims := &Claims{UserID: "user-1"}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	tokenString, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestService().Verify(tokenString)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}
