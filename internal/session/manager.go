package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nortide/identity/internal/cache"
	"github.com/nortide/identity/internal/domain"
	"github.com/nortide/identity/internal/repository"
	apperrors "github.com/nortide/identity/pkg/errors"
)

// validityEntry is the cached outcome of a session validation. Negative
// entries absorb repeated traffic carrying invalid or stale tokens.
type validityEntry struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
}

// Config holds session manager tuning.
type Config struct {
	TTL         time.Duration
	CacheTTL    time.Duration
	NegativeTTL time.Duration
}

// Manager creates, validates, revokes, and lists sessions. Postgres is the
// source of truth; the flow store caches validation results on the hot path.
type Manager struct {
	sessions repository.SessionRepository
	store    cache.Store
	cfg      Config
	logger   *slog.Logger
}

// NewManager creates a session manager.
func NewManager(sessions repository.SessionRepository, store cache.Store, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		sessions: sessions,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}

// Create opens a new active session for the user.
func (m *Manager) Create(ctx context.Context, userID string, device domain.DeviceInfo) (*domain.Session, error) {
	now := time.Now().UTC()
	session := &domain.Session{
		ID:             uuid.New().String(),
		UserID:         userID,
		Status:         domain.SessionActive,
		Device:         device,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.cfg.TTL),
		LastActivityAt: now,
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	m.logger.InfoContext(ctx, "session created",
		slog.String("session_id", session.ID),
		slog.String("user_id", userID),
	)

	return session, nil
}

// Validate reports whether the session authenticates the claimed user. An
// invalid session and a missing session are indistinguishable to the caller.
func (m *Manager) Validate(ctx context.Context, sessionID, userID string) (bool, error) {
	key := cache.Key(cache.FlowSessionValid, sessionID)

	var entry validityEntry
	err := m.store.Get(ctx, key, &entry)
	if err == nil {
		return entry.Valid && entry.UserID == userID, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		// Cache trouble falls through to the durable store.
		m.logger.ErrorContext(ctx, "session cache read failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	session, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			m.cacheResult(ctx, key, validityEntry{Valid: false}, m.cfg.NegativeTTL)
			return false, nil
		}
		return false, fmt.Errorf("load session: %w", err)
	}

	now := time.Now().UTC()
	if !session.IsValidFor(session.UserID, now) {
		m.cacheResult(ctx, key, validityEntry{Valid: false}, m.cfg.NegativeTTL)
		return false, nil
	}

	m.cacheResult(ctx, key, validityEntry{Valid: true, UserID: session.UserID}, m.cfg.CacheTTL)
	return session.UserID == userID, nil
}

// Get loads a session from the durable store.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.sessions.GetByID(ctx, sessionID)
}

// Revoke moves an active session to the terminal revoked state and drops its
// cache entry.
func (m *Manager) Revoke(ctx context.Context, sessionID, reason string) error {
	if err := m.sessions.Revoke(ctx, sessionID, reason, time.Now().UTC()); err != nil {
		return err
	}

	m.invalidate(ctx, sessionID)

	m.logger.InfoContext(ctx, "session revoked",
		slog.String("session_id", sessionID),
		slog.String("reason", reason),
	)

	return nil
}

// RevokeAll revokes every active session for the user except exceptID,
// returning how many were revoked. Cache entries for the revoked sessions
// are invalidated.
func (m *Manager) RevokeAll(ctx context.Context, userID, exceptID, reason string) (int, error) {
	ids, err := m.sessions.RevokeAllByUserID(ctx, userID, exceptID, reason, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		m.invalidate(ctx, id)
	}

	m.logger.InfoContext(ctx, "sessions revoked",
		slog.String("user_id", userID),
		slog.Int("count", len(ids)),
		slog.String("reason", reason),
	)

	return len(ids), nil
}

// ListActive returns the user's active sessions.
func (m *Manager) ListActive(ctx context.Context, userID string) ([]domain.Session, error) {
	return m.sessions.ListActiveByUserID(ctx, userID)
}

// Touch bumps the session's last-activity timestamp. Failures are logged and
// never propagated; activity tracking must not block the request path.
func (m *Manager) Touch(ctx context.Context, sessionID string) {
	if err := m.sessions.UpdateLastActivity(ctx, sessionID, time.Now().UTC()); err != nil {
		m.logger.ErrorContext(ctx, "failed to update session activity",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

// CleanupExpired deletes terminal sessions past their expiry.
func (m *Manager) CleanupExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	n, err := m.sessions.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}

	if n > 0 {
		m.logger.InfoContext(ctx, "expired sessions removed", slog.Int64("count", n))
	}

	return n, nil
}

func (m *Manager) cacheResult(ctx context.Context, key string, entry validityEntry, ttl time.Duration) {
	if err := m.store.Set(ctx, key, entry, ttl); err != nil {
		m.logger.ErrorContext(ctx, "session cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) invalidate(ctx context.Context, sessionID string) {
	if err := m.store.Delete(ctx, cache.Key(cache.FlowSessionValid, sessionID)); err != nil {
		m.logger.ErrorContext(ctx, "session cache invalidation failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}
