package repository

import (
	"context"
	"time"

	"github.com/nortide/identity/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user together with its auth provider links.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user and their provider links by identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// FindByAuthProvider retrieves the user linked to the given
	// (provider type, provider id) pair.
	FindByAuthProvider(ctx context.Context, providerType, providerID string) (*domain.User, error)

	// Update modifies an existing user's core fields.
	Update(ctx context.Context, user *domain.User) error

	// LinkProvider attaches an additional auth provider to an existing user.
	LinkProvider(ctx context.Context, userID string, provider domain.AuthProvider) error

	// Delete removes a user from the store by their identifier.
	Delete(ctx context.Context, id string) error
}

// PasskeyRepository defines the interface for WebAuthn credential persistence.
type PasskeyRepository interface {
	// Create inserts a new passkey credential.
	Create(ctx context.Context, cred *domain.PasskeyCredential) error

	// FindByCredentialID retrieves a credential by its raw WebAuthn id.
	FindByCredentialID(ctx context.Context, credentialID []byte) (*domain.PasskeyCredential, error)

	// ListByUserID returns all credentials registered to the given user.
	ListByUserID(ctx context.Context, userID string) ([]domain.PasskeyCredential, error)

	// UpdateSignCount persists an advanced signature counter.
	UpdateSignCount(ctx context.Context, id string, signCount uint32, lastUsedAt time.Time) error
}

// SessionRepository defines the interface for session persistence operations.
type SessionRepository interface {
	// Create inserts a new session.
	Create(ctx context.Context, session *domain.Session) error

	// GetByID retrieves a session by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Session, error)

	// ListActiveByUserID returns all unexpired active sessions for the user.
	ListActiveByUserID(ctx context.Context, userID string) ([]domain.Session, error)

	// Revoke marks an active session revoked. Terminal sessions are untouched.
	Revoke(ctx context.Context, id, reason string, at time.Time) error

	// RevokeAllByUserID revokes every active session for the user except the
	// given one, returning the ids of the sessions that were revoked.
	RevokeAllByUserID(ctx context.Context, userID, exceptID, reason string, at time.Time) ([]string, error)

	// UpdateLastActivity bumps the session's last-activity timestamp.
	UpdateLastActivity(ctx context.Context, id string, at time.Time) error

	// DeleteExpired removes terminal sessions whose expiry passed before the
	// cutoff, returning the number of rows deleted.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
