package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/nortide/identity/internal/cache"
	"github.com/nortide/identity/internal/domain"
	"github.com/nortide/identity/internal/passkey"
	apperrors "github.com/nortide/identity/pkg/errors"
)

// PasskeyRegisterInitInput holds the parameters for starting a passkey
// registration.
type PasskeyRegisterInitInput struct {
	Email string
	Name  string
}

// PasskeyRegisterInitResult carries the credential creation options the
// client passes to the authenticator.
type PasskeyRegisterInitResult struct {
	UserID    string
	Options   *protocol.CredentialCreation
	ExpiresIn int64
}

// PasskeyRegisterInit generates a registration challenge and parks it in the
// flow store keyed by the generated user id.
func (s *AuthService) PasskeyRegisterInit(ctx context.Context, in PasskeyRegisterInitInput) (*PasskeyRegisterInitResult, error) {
	if err := s.ensureEmailAvailable(ctx, in.Email); err != nil {
		return nil, err
	}

	userID := uuid.New().String()
	waUser := &passkey.User{
		ID:          []byte(userID),
		Name:        in.Email,
		DisplayName: in.Name,
	}

	creation, sessionData, err := s.webauthn.BeginRegistration(waUser)
	if err != nil {
		return nil, err
	}

	rec := pendingRegistration{
		Method:   methodPasskey,
		Email:    in.Email,
		Name:     in.Name,
		WebAuthn: sessionData,
	}
	if err := s.store.Set(ctx, cache.Key(cache.FlowPendingRegister, userID), rec, s.cfg.ChallengeTTL); err != nil {
		return nil, fmt.Errorf("store pending registration: %w", err)
	}

	s.logger.InfoContext(ctx, "passkey registration started",
		slog.String("user_id", userID),
	)

	return &PasskeyRegisterInitResult{
		UserID:    userID,
		Options:   creation,
		ExpiresIn: int64(s.cfg.ChallengeTTL.Seconds()),
	}, nil
}

// PasskeyRegisterCompleteInput holds the parameters for completing a passkey
// registration.
type PasskeyRegisterCompleteInput struct {
	UserID     string
	Response   json.RawMessage
	DeviceName string
	Device     domain.DeviceInfo
}

// PasskeyRegisterComplete verifies the attestation response against the
// stored challenge and persists the user together with the new credential.
func (s *AuthService) PasskeyRegisterComplete(ctx context.Context, in PasskeyRegisterCompleteInput) (*AuthResult, error) {
	key := cache.Key(cache.FlowPendingRegister, in.UserID)

	var rec pendingRegistration
	if err := s.store.Get(ctx, key, &rec); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, apperrors.PasskeyChallengeFailed()
		}
		return nil, fmt.Errorf("load pending registration: %w", err)
	}
	if rec.Method != methodPasskey || rec.WebAuthn == nil {
		return nil, apperrors.PasskeyChallengeFailed()
	}

	waUser := &passkey.User{
		ID:          []byte(in.UserID),
		Name:        rec.Email,
		DisplayName: rec.Name,
	}
	credential, err := s.webauthn.FinishRegistration(waUser, *rec.WebAuthn, in.Response)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:     in.UserID,
		Email:  domain.Email{Address: rec.Email},
		Name:   rec.Name,
		Status: domain.StatusActive,
		Role:   domain.RoleUser,
		AuthProviders: []domain.AuthProvider{{
			Type:       domain.ProviderPasskey,
			ProviderID: base64.RawURLEncoding.EncodeToString(credential.ID),
			LinkedAt:   now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	cred := &domain.PasskeyCredential{
		ID:              uuid.New().String(),
		UserID:          user.ID,
		CredentialID:    credential.ID,
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		Transports:      passkey.TransportsToStrings(credential.Transport),
		SignCount:       credential.Authenticator.SignCount,
		DeviceName:      in.DeviceName,
		BackedUp:        credential.Flags.BackupState,
		CreatedAt:       now,
	}
	if err := s.passkeys.Create(ctx, cred); err != nil {
		return nil, err
	}

	s.deleteFlow(ctx, key)

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("method", methodPasskey),
	)
	s.publishRegistered(ctx, user, domain.ProviderPasskey)

	return s.login(ctx, user, in.Device)
}

// passkeyLogin is the flow record held between login init and complete. An
// empty UserID means the challenge is discoverable.
type passkeyLogin struct {
	UserID  string               `json:"user_id,omitempty"`
	Session webauthn.SessionData `json:"session"`
}

// PasskeyLoginInitInput holds the parameters for starting a passkey login.
// Email is optional; when present the challenge is scoped to that account's
// credentials.
type PasskeyLoginInitInput struct {
	Email string
}

// PasskeyLoginInitResult carries the assertion options for the authenticator.
type PasskeyLoginInitResult struct {
	LoginToken string
	Options    *protocol.CredentialAssertion
	ExpiresIn  int64
}

// PasskeyLoginInit generates an authentication challenge. An unknown email
// or an account without credentials falls back to a discoverable challenge
// so the response shape does not disclose account state.
func (s *AuthService) PasskeyLoginInit(ctx context.Context, in PasskeyLoginInitInput) (*PasskeyLoginInitResult, error) {
	var (
		assertion   *protocol.CredentialAssertion
		sessionData *webauthn.SessionData
		userID      string
	)

	if in.Email != "" {
		user, err := s.users.GetByEmail(ctx, in.Email)
		switch {
		case err == nil:
			creds, err := s.passkeys.ListByUserID(ctx, user.ID)
			if err != nil {
				return nil, fmt.Errorf("list credentials: %w", err)
			}
			if len(creds) > 0 {
				waCreds := make([]webauthn.Credential, 0, len(creds))
				for _, c := range creds {
					waCreds = append(waCreds, passkey.CredentialFromDomain(c))
				}
				waUser := &passkey.User{
					ID:          []byte(user.ID),
					Name:        user.Email.Address,
					DisplayName: user.Name,
					Credentials: waCreds,
				}
				assertion, sessionData, err = s.webauthn.BeginLogin(waUser)
				if err != nil {
					return nil, err
				}
				userID = user.ID
			}
		case !errors.Is(err, apperrors.ErrNotFound):
			return nil, fmt.Errorf("look up user: %w", err)
		}
	}

	if assertion == nil {
		var err error
		assertion, sessionData, err = s.webauthn.BeginDiscoverableLogin()
		if err != nil {
			return nil, err
		}
	}

	loginToken := uuid.New().String()
	rec := passkeyLogin{UserID: userID, Session: *sessionData}
	if err := s.store.Set(ctx, cache.Key(cache.FlowPasskeyChallenge, loginToken), rec, s.cfg.ChallengeTTL); err != nil {
		return nil, fmt.Errorf("store login challenge: %w", err)
	}

	return &PasskeyLoginInitResult{
		LoginToken: loginToken,
		Options:    assertion,
		ExpiresIn:  int64(s.cfg.ChallengeTTL.Seconds()),
	}, nil
}

// PasskeyLoginCompleteInput holds the parameters for completing a passkey
// login.
type PasskeyLoginCompleteInput struct {
	LoginToken string
	Response   json.RawMessage
	Device     domain.DeviceInfo
}

// PasskeyLoginComplete verifies the assertion against the stored challenge
// and the credential's signature counter, then opens a session. A counter
// that fails to advance indicates a cloned authenticator and rejects the
// login without persisting anything.
func (s *AuthService) PasskeyLoginComplete(ctx context.Context, in PasskeyLoginCompleteInput) (*AuthResult, error) {
	key := cache.Key(cache.FlowPasskeyChallenge, in.LoginToken)

	var rec passkeyLogin
	if err := s.store.Get(ctx, key, &rec); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, apperrors.PasskeyChallengeFailed()
		}
		return nil, fmt.Errorf("load login challenge: %w", err)
	}

	parsed, err := s.webauthn.ParseAssertion(in.Response)
	if err != nil {
		return nil, err
	}

	stored, err := s.passkeys.FindByCredentialID(ctx, parsed.RawID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.PasskeyInvalid()
		}
		return nil, fmt.Errorf("look up credential: %w", err)
	}
	if rec.UserID != "" && rec.UserID != stored.UserID {
		return nil, apperrors.PasskeyInvalid()
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.PasskeyInvalid()
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	waUser := &passkey.User{
		ID:          []byte(user.ID),
		Name:        user.Email.Address,
		DisplayName: user.Name,
		Credentials: []webauthn.Credential{passkey.CredentialFromDomain(*stored)},
	}

	var credential *webauthn.Credential
	if rec.UserID == "" {
		handler := func(rawID, userHandle []byte) (webauthn.User, error) {
			if string(userHandle) != stored.UserID {
				return nil, apperrors.PasskeyInvalid()
			}
			return waUser, nil
		}
		credential, err = s.webauthn.FinishDiscoverableLogin(handler, rec.Session, parsed)
	} else {
		credential, err = s.webauthn.FinishLogin(waUser, rec.Session, parsed)
	}
	if err != nil {
		return nil, err
	}

	if credential.Authenticator.CloneWarning ||
		(stored.SignCount > 0 && credential.Authenticator.SignCount <= stored.SignCount) {
		s.logger.WarnContext(ctx, "passkey counter regression",
			slog.String("user_id", user.ID),
			slog.String("credential_id", stored.ID),
		)
		return nil, apperrors.PasskeyInvalid()
	}

	if err := s.passkeys.UpdateSignCount(ctx, stored.ID, credential.Authenticator.SignCount, time.Now().UTC()); err != nil {
		return nil, err
	}

	s.deleteFlow(ctx, key)

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", methodPasskey),
	)

	return s.login(ctx, user, in.Device)
}

// ListPasskeys returns the user's registered credentials.
func (s *AuthService) ListPasskeys(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	return s.passkeys.ListByUserID(ctx, userID)
}
