package passkey

import (
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/nortide/identity/internal/domain"
	apperrors "github.com/nortide/identity/pkg/errors"
)

// Config identifies the relying party to authenticators.
type Config struct {
	RPID          string
	RPDisplayName string
	RPOrigins     []string
}

// Verifier wraps the WebAuthn ceremony library for registration and
// authentication. Challenge SessionData is serialized by the caller into the
// flow store between begin and finish.
type Verifier struct {
	wa *webauthn.WebAuthn
}

// NewVerifier creates a WebAuthn verifier for the configured relying party.
func NewVerifier(cfg Config) (*Verifier, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &Verifier{wa: wa}, nil
}

// User adapts an account to the webauthn.User interface. The ID is the user
// handle returned by discoverable credentials.
type User struct {
	ID          []byte
	Name        string
	DisplayName string
	Credentials []webauthn.Credential
}

func (u *User) WebAuthnID() []byte                         { return u.ID }
func (u *User) WebAuthnName() string                       { return u.Name }
func (u *User) WebAuthnDisplayName() string                { return u.DisplayName }
func (u *User) WebAuthnIcon() string                       { return "" }
func (u *User) WebAuthnCredentials() []webauthn.Credential { return u.Credentials }

// BeginRegistration generates a credential creation challenge for the user.
// Existing credentials are excluded so an authenticator cannot re-register.
func (v *Verifier) BeginRegistration(user *User) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	opts := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	}
	if len(user.Credentials) > 0 {
		opts = append(opts, webauthn.WithExclusions(
			webauthn.Credentials(user.Credentials).CredentialDescriptors(),
		))
	}

	creation, session, err := v.wa.BeginRegistration(user, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("begin passkey registration: %w", err)
	}
	return creation, session, nil
}

// FinishRegistration verifies the client's attestation response against the
// stored challenge and returns the new credential.
func (v *Verifier) FinishRegistration(user *User, session webauthn.SessionData, responseJSON []byte) (*webauthn.Credential, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		return nil, apperrors.PasskeyInvalid()
	}

	credential, err := v.wa.CreateCredential(user, session, parsed)
	if err != nil {
		return nil, apperrors.PasskeyInvalid()
	}
	return credential, nil
}

// BeginLogin generates an assertion challenge scoped to the user's credentials.
func (v *Verifier) BeginLogin(user *User) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	assertion, session, err := v.wa.BeginLogin(user)
	if err != nil {
		return nil, nil, fmt.Errorf("begin passkey login: %w", err)
	}
	return assertion, session, nil
}

// BeginDiscoverableLogin generates an assertion challenge with no credential
// allowlist; the authenticator chooses a resident credential.
func (v *Verifier) BeginDiscoverableLogin() (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	assertion, session, err := v.wa.BeginDiscoverableLogin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin discoverable passkey login: %w", err)
	}
	return assertion, session, nil
}

// ParseAssertion decodes the client's assertion response, exposing the
// credential id before full validation so the owning user can be resolved.
func (v *Verifier) ParseAssertion(responseJSON []byte) (*protocol.ParsedCredentialAssertionData, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return nil, apperrors.PasskeyInvalid()
	}
	return parsed, nil
}

// FinishLogin verifies the parsed assertion against the stored challenge and
// the user's registered credentials, returning the credential with its new
// signature counter.
func (v *Verifier) FinishLogin(user *User, session webauthn.SessionData, parsed *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	credential, err := v.wa.ValidateLogin(user, session, parsed)
	if err != nil {
		return nil, apperrors.PasskeyInvalid()
	}
	return credential, nil
}

// FinishDiscoverableLogin verifies an assertion produced against a
// discoverable challenge, resolving the owning user through the handler from
// the credential id and user handle in the response.
func (v *Verifier) FinishDiscoverableLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, parsed *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	credential, err := v.wa.ValidateDiscoverableLogin(handler, session, parsed)
	if err != nil {
		return nil, apperrors.PasskeyInvalid()
	}
	return credential, nil
}

// CredentialFromDomain converts a stored credential record into the library's
// representation for ceremony validation.
func CredentialFromDomain(c domain.PasskeyCredential) webauthn.Credential {
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}

	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupState: c.BackedUp,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: c.SignCount,
		},
	}
}

// TransportsToStrings flattens library transports for storage.
func TransportsToStrings(transports []protocol.AuthenticatorTransport) []string {
	out := make([]string, 0, len(transports))
	for _, t := range transports {
		out = append(out, string(t))
	}
	return out
}
