package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nortide/identity/internal/cache"
	"github.com/nortide/identity/internal/domain"
	apperrors "github.com/nortide/identity/pkg/errors"
)

// TOTPRegisterInitInput holds the parameters for starting a TOTP registration.
type TOTPRegisterInitInput struct {
	Email string
	Name  string
}

// TOTPRegisterInitResult carries the generated secret back to the client so
// it can be enrolled in an authenticator app.
type TOTPRegisterInitResult struct {
	UserID       string
	Secret       string
	ProvisionURI string
	ExpiresIn    int64
}

// TOTPRegisterInit generates a TOTP secret and parks the registration in the
// flow store until the client proves possession of the secret.
func (s *AuthService) TOTPRegisterInit(ctx context.Context, in TOTPRegisterInitInput) (*TOTPRegisterInitResult, error) {
	if err := s.ensureEmailAvailable(ctx, in.Email); err != nil {
		return nil, err
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, err
	}

	userID := uuid.New().String()
	rec := pendingRegistration{
		Method: methodTOTP,
		Email:  in.Email,
		Name:   in.Name,
		Secret: secret,
	}
	if err := s.store.Set(ctx, cache.Key(cache.FlowPendingRegister, userID), rec, s.cfg.PendingRegisterTTL); err != nil {
		return nil, fmt.Errorf("store pending registration: %w", err)
	}

	s.logger.InfoContext(ctx, "totp registration started",
		slog.String("user_id", userID),
	)

	return &TOTPRegisterInitResult{
		UserID:       userID,
		Secret:       secret,
		ProvisionURI: s.totp.ProvisionURI(secret, in.Email),
		ExpiresIn:    int64(s.cfg.PendingRegisterTTL.Seconds()),
	}, nil
}

// TOTPRegisterCompleteInput holds the parameters for completing a TOTP
// registration.
type TOTPRegisterCompleteInput struct {
	UserID string
	Code   string
	Device domain.DeviceInfo
}

// TOTPRegisterComplete verifies the submitted code against the pending
// secret and creates the user. A wrong code leaves the pending record in
// place so the client can retry until the TTL expires.
func (s *AuthService) TOTPRegisterComplete(ctx context.Context, in TOTPRegisterCompleteInput) (*AuthResult, error) {
	key := cache.Key(cache.FlowPendingRegister, in.UserID)

	var rec pendingRegistration
	if err := s.store.Get(ctx, key, &rec); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, apperrors.NotFound("pending registration", in.UserID)
		}
		return nil, fmt.Errorf("load pending registration: %w", err)
	}
	if rec.Method != methodTOTP {
		return nil, apperrors.NotFound("pending registration", in.UserID)
	}

	ok, err := s.totp.Verify(rec.Secret, in.Code, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("verify totp code: %w", err)
	}
	if !ok {
		return nil, apperrors.TOTPInvalid()
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:     in.UserID,
		Email:  domain.Email{Address: rec.Email},
		Name:   rec.Name,
		Status: domain.StatusActive,
		Role:   domain.RoleUser,
		AuthProviders: []domain.AuthProvider{{
			Type:       domain.ProviderEmail,
			ProviderID: rec.Email,
			LinkedAt:   now,
		}},
		TOTPSecret:  rec.Secret,
		TOTPEnabled: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.deleteFlow(ctx, key)

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("method", methodTOTP),
	)
	s.publishRegistered(ctx, user, domain.ProviderEmail)

	return s.login(ctx, user, in.Device)
}

// totpLoginAttempt is the flow record held between login init and complete.
// Fake attempts exist so an unknown email produces the same response shape
// as a known one; they carry a decoy secret so completion verifies a code
// either way.
type totpLoginAttempt struct {
	Fake   bool   `json:"fake"`
	UserID string `json:"user_id,omitempty"`
	Secret string `json:"secret,omitempty"`
}

// TOTPLoginInitInput holds the parameters for starting a TOTP login.
type TOTPLoginInitInput struct {
	Email string
}

// TOTPLoginInitResult carries the opaque login token for the complete step.
type TOTPLoginInitResult struct {
	LoginToken string
	ExpiresIn  int64
}

// TOTPLoginInit resolves the account and issues a single-use login token. An
// unknown email gets a token bound to a fake attempt with the same TTL.
func (s *AuthService) TOTPLoginInit(ctx context.Context, in TOTPLoginInitInput) (*TOTPLoginInitResult, error) {
	attempt := totpLoginAttempt{Fake: true}

	user, err := s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		if !user.TOTPEnabled {
			// Picking the TOTP method already implies the account exists,
			// so this failure does not need to be disguised.
			return nil, apperrors.InvalidInput("totp is not enabled for this account")
		}
		attempt = totpLoginAttempt{UserID: user.ID}
	case errors.Is(err, apperrors.ErrNotFound):
		secret, err := s.totp.GenerateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate decoy secret: %w", err)
		}
		attempt.Secret = secret
	default:
		return nil, fmt.Errorf("look up user: %w", err)
	}

	loginToken := uuid.New().String()
	if err := s.store.Set(ctx, cache.Key(cache.FlowLoginAttempt, loginToken), attempt, s.cfg.LoginAttemptTTL); err != nil {
		return nil, fmt.Errorf("store login attempt: %w", err)
	}

	return &TOTPLoginInitResult{
		LoginToken: loginToken,
		ExpiresIn:  int64(s.cfg.LoginAttemptTTL.Seconds()),
	}, nil
}

// TOTPLoginCompleteInput holds the parameters for completing a TOTP login.
type TOTPLoginCompleteInput struct {
	LoginToken string
	Code       string
	Device     domain.DeviceInfo
}

// TOTPLoginComplete verifies the code for the attempt and opens a session.
// A missing record, a fake attempt, and a wrong code all fail with the same
// INVALID_CREDENTIALS kind.
func (s *AuthService) TOTPLoginComplete(ctx context.Context, in TOTPLoginCompleteInput) (*AuthResult, error) {
	key := cache.Key(cache.FlowLoginAttempt, in.LoginToken)

	var attempt totpLoginAttempt
	if err := s.store.Get(ctx, key, &attempt); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, apperrors.InvalidCredentials()
		}
		return nil, fmt.Errorf("load login attempt: %w", err)
	}

	if attempt.Fake {
		// Verify against the decoy secret so completion timing does not
		// reveal whether the attempt is real.
		_, _ = s.totp.Verify(attempt.Secret, in.Code, time.Now().UTC())
		return nil, apperrors.InvalidCredentials()
	}

	user, err := s.users.GetByID(ctx, attempt.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.deleteFlow(ctx, key)
			return nil, apperrors.InvalidCredentials()
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	ok, err := s.totp.Verify(user.TOTPSecret, in.Code, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("verify totp code: %w", err)
	}
	if !ok {
		return nil, apperrors.InvalidCredentials()
	}

	s.deleteFlow(ctx, key)

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", methodTOTP),
	)

	return s.login(ctx, user, in.Device)
}
