package passkey

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nortide/identity/internal/domain"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(Config{
		RPID:          "example.com",
		RPDisplayName: "Example",
		RPOrigins:     []string{"https://example.com"},
	})
	require.NoError(t, err)
	return v
}

func TestNewVerifier_InvalidConfig(t *testing.T) {
	_, err := NewVerifier(Config{})
	assert.Error(t, err)
}

func TestBeginRegistration_ChallengeAndUserHandle(t *testing.T) {
	v := newTestVerifier(t)
	user := &User{ID: []byte("u-1"), Name: "a@x.com", DisplayName: "Alice"}

	creation, session, err := v.BeginRegistration(user)
	require.NoError(t, err)

	assert.NotEmpty(t, creation.Response.Challenge)
	assert.Equal(t, "example.com", creation.Response.RelyingParty.ID)
	assert.NotEmpty(t, session.Challenge)
	assert.Equal(t, []byte("u-1"), session.UserID)
}

func TestBeginRegistration_ExcludesExistingCredentials(t *testing.T) {
	v := newTestVerifier(t)
	user := &User{
		ID:   []byte("u-1"),
		Name: "a@x.com",
		Credentials: []webauthn.Credential{
			{ID: []byte{0x01, 0x02}},
		},
	}

	creation, _, err := v.BeginRegistration(user)
	require.NoError(t, err)
	require.Len(t, creation.Response.CredentialExcludeList, 1)
	assert.Equal(t, []byte{0x01, 0x02}, []byte(creation.Response.CredentialExcludeList[0].CredentialID))
}

func TestSessionData_JSONRoundTrip(t *testing.T) {
	v := newTestVerifier(t)
	user := &User{ID: []byte("u-1"), Name: "a@x.com"}

	_, session, err := v.BeginRegistration(user)
	require.NoError(t, err)

	// The orchestrator stores SessionData as JSON in the flow store.
	data, err := json.Marshal(session)
	require.NoError(t, err)

	var restored webauthn.SessionData
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, session.Challenge, restored.Challenge)
	assert.Equal(t, session.UserID, restored.UserID)
}

func TestBeginLogin_RequiresCredentials(t *testing.T) {
	v := newTestVerifier(t)

	_, _, err := v.BeginLogin(&User{ID: []byte("u-1"), Name: "a@x.com"})
	assert.Error(t, err, "a user with no registered credentials cannot begin a scoped login")
}

func TestBeginDiscoverableLogin(t *testing.T) {
	v := newTestVerifier(t)

	assertion, session, err := v.BeginDiscoverableLogin()
	require.NoError(t, err)
	assert.NotEmpty(t, assertion.Response.Challenge)
	assert.Empty(t, assertion.Response.AllowedCredentials)
	assert.NotEmpty(t, session.Challenge)
}

func TestFinishRegistration_MalformedResponse(t *testing.T) {
	v := newTestVerifier(t)
	user := &User{ID: []byte("u-1"), Name: "a@x.com"}

	_, session, err := v.BeginRegistration(user)
	require.NoError(t, err)

	_, err = v.FinishRegistration(user, *session, []byte(`{"not":"a credential"}`))
	assert.Error(t, err)
}

func TestParseAssertion_Malformed(t *testing.T) {
	v := newTestVerifier(t)

	_, err := v.ParseAssertion([]byte(`garbage`))
	assert.Error(t, err)
}

func TestCredentialFromDomain(t *testing.T) {
	now := time.Now().UTC()
	rec := domain.PasskeyCredential{
		CredentialID:    []byte{0xde, 0xad},
		PublicKey:       []byte{0xbe, 0xef},
		AttestationType: "none",
		Transports:      []string{"internal", "usb"},
		SignCount:       42,
		BackedUp:        true,
		CreatedAt:       now,
	}

	cred := CredentialFromDomain(rec)

	assert.Equal(t, rec.CredentialID, cred.ID)
	assert.Equal(t, rec.PublicKey, cred.PublicKey)
	assert.Equal(t, uint32(42), cred.Authenticator.SignCount)
	assert.True(t, cred.Flags.BackupState)
	require.Len(t, cred.Transport, 2)
	assert.Equal(t, "internal", string(cred.Transport[0]))
}

func TestTransportsToStrings(t *testing.T) {
	cred := CredentialFromDomain(domain.PasskeyCredential{Transports: []string{"hybrid"}})
	assert.Equal(t, []string{"hybrid"}, TransportsToStrings(cred.Transport))
}
