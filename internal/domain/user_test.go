package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_IsActive(t *testing.T) {
	assert.True(t, User{Status: StatusActive}.IsActive())
	assert.False(t, User{Status: StatusSuspended}.IsActive())
	assert.False(t, User{Status: StatusDeleted}.IsActive())
	assert.False(t, User{}.IsActive())
}

func TestUser_HasProvider(t *testing.T) {
	u := User{AuthProviders: []AuthProvider{
		{Type: ProviderEmail, ProviderID: "a@x.com"},
		{Type: ProviderGoogle, ProviderID: "google-123"},
	}}
	assert.True(t, u.HasProvider(ProviderEmail))
	assert.True(t, u.HasProvider(ProviderGoogle))
	assert.False(t, u.HasProvider(ProviderPasskey))
}

func TestUser_WithEmailVerified(t *testing.T) {
	u := User{Email: Email{Address: "a@x.com"}}
	at := time.Now().UTC()

	updated := u.WithEmailVerified(at)

	assert.True(t, updated.Email.Verified)
	assert.Equal(t, &at, updated.Email.VerifiedAt)
	assert.Equal(t, at, updated.UpdatedAt)
	// Original is untouched.
	assert.False(t, u.Email.Verified)
	assert.Nil(t, u.Email.VerifiedAt)
}

func TestUser_WithProvider_DoesNotMutateOriginal(t *testing.T) {
	u := User{AuthProviders: []AuthProvider{{Type: ProviderEmail, ProviderID: "a@x.com"}}}
	at := time.Now().UTC()

	updated := u.WithProvider(ProviderApple, "apple-1", at)

	assert.Len(t, updated.AuthProviders, 2)
	assert.Len(t, u.AuthProviders, 1)
	assert.Equal(t, ProviderApple, updated.AuthProviders[1].Type)
	assert.Equal(t, at, updated.AuthProviders[1].LinkedAt)
}

func TestUser_WithTOTP(t *testing.T) {
	at := time.Now().UTC()
	updated := User{}.WithTOTP("JBSWY3DP", at)

	assert.True(t, updated.TOTPEnabled)
	assert.Equal(t, "JBSWY3DP", updated.TOTPSecret)
	assert.Equal(t, at, updated.UpdatedAt)
}

func TestSession_IsValidFor(t *testing.T) {
	now := time.Now().UTC()
	s := Session{
		ID:        "sess-1",
		UserID:    "user-1",
		Status:    SessionActive,
		ExpiresAt: now.Add(time.Hour),
	}

	assert.True(t, s.IsValidFor("user-1", now))
	assert.False(t, s.IsValidFor("user-2", now), "wrong owner")
	assert.False(t, s.IsValidFor("user-1", now.Add(2*time.Hour)), "expired")

	revoked := s.WithRevoked("logout", now)
	assert.False(t, revoked.IsValidFor("user-1", now))
}

func TestSession_WithRevoked_TerminalIsPermanent(t *testing.T) {
	now := time.Now().UTC()
	s := Session{Status: SessionActive, ExpiresAt: now.Add(time.Hour)}

	revoked := s.WithRevoked("security", now)
	assert.Equal(t, SessionRevoked, revoked.Status)
	assert.Equal(t, "security", revoked.RevokedReason)
	assert.NotNil(t, revoked.RevokedAt)

	// Revoking again or expiring a terminal session changes nothing.
	again := revoked.WithRevoked("other", now.Add(time.Minute))
	assert.Equal(t, "security", again.RevokedReason)
	assert.Equal(t, SessionRevoked, revoked.WithExpired().Status)
}

func TestSession_WithExpired(t *testing.T) {
	s := Session{Status: SessionActive}
	assert.Equal(t, SessionExpired, s.WithExpired().Status)
	assert.Equal(t, SessionActive, s.Status)
}

func TestSession_WithActivity(t *testing.T) {
	at := time.Now().UTC()
	s := Session{}.WithActivity(at)
	assert.Equal(t, at, s.LastActivityAt)
}

func TestPasskeyCredential_WithSignCount(t *testing.T) {
	at := time.Now().UTC()
	c := PasskeyCredential{SignCount: 3}

	updated := c.WithSignCount(7, at)

	assert.Equal(t, uint32(7), updated.SignCount)
	assert.Equal(t, at, updated.LastUsedAt)
	assert.Equal(t, uint32(3), c.SignCount)
}
