package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nortide/identity/internal/domain"
	"github.com/nortide/identity/internal/token"
	apperrors "github.com/nortide/identity/pkg/errors"
)

// Revocation reasons recorded on sessions.
const (
	ReasonLogout        = "logout"
	ReasonRevokedByUser = "revoked_by_user"
)

// Authenticate verifies an access token and the session behind it, returning
// the claims. A revoked, expired, or unknown session all fail identically.
// Last-activity is bumped fire-and-forget.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*token.Claims, error) {
	claims, err := s.tokens.Verify(accessToken)
	if err != nil {
		return nil, err
	}

	ok, err := s.sessions.Validate(ctx, claims.SessionID, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}
	if !ok {
		return nil, apperrors.Unauthorized("session is not valid")
	}

	s.sessions.Touch(ctx, claims.SessionID)

	return claims, nil
}

// Logout revokes the caller's current session.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) error {
	return s.revokeOwned(ctx, userID, sessionID, ReasonLogout)
}

// RevokeSession revokes one of the caller's sessions by id.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	return s.revokeOwned(ctx, userID, sessionID, ReasonRevokedByUser)
}

// revokeOwned revokes a session after confirming it belongs to the caller.
// A session owned by someone else reads as NOT_FOUND.
func (s *AuthService) revokeOwned(ctx context.Context, userID, sessionID, reason string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return apperrors.NotFound("session", sessionID)
	}

	return s.sessions.Revoke(ctx, sessionID, reason)
}

// RevokeAllSessions revokes every active session for the user except the
// current one, returning how many were revoked. A security notification is
// published when anything was revoked.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID, exceptSessionID string) (int, error) {
	count, err := s.sessions.RevokeAll(ctx, userID, exceptSessionID, ReasonRevokedByUser)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to load user for session revocation notice",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		} else if err := s.producer.PublishSessionRevoked(ctx, userID, user.Email.Address, ReasonRevokedByUser, count); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish session.revoked event",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	return count, nil
}

// ListSessions returns the user's active sessions.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.sessions.ListActive(ctx, userID)
}

// GetProfile returns the user's account record.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
