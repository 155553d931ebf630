package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nortide/identity/internal/domain"
	apperrors "github.com/nortide/identity/pkg/errors"
)

// SessionRepository implements repository.SessionRepository using PostgreSQL.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new PostgreSQL-backed session repository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, status, user_agent, ip, browser, os, location,
	created_at, expires_at, last_activity_at, revoked_at, revoked_reason`

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, status, user_agent, ip, browser, os, location,
			created_at, expires_at, last_activity_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.Status,
		s.Device.UserAgent,
		s.Device.IP,
		s.Device.Browser,
		s.Device.OS,
		s.Device.Location,
		s.CreatedAt,
		s.ExpiresAt,
		s.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	var s domain.Session
	var revokedReason *string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.Status,
		&s.Device.UserAgent,
		&s.Device.IP,
		&s.Device.Browser,
		&s.Device.OS,
		&s.Device.Location,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.LastActivityAt,
		&s.RevokedAt,
		&revokedReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	if revokedReason != nil {
		s.RevokedReason = *revokedReason
	}

	return &s, nil
}

// ListActiveByUserID returns all unexpired active sessions for the user.
func (r *SessionRepository) ListActiveByUserID(ctx context.Context, userID string) ([]domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND status = $2 AND expires_at > $3
		ORDER BY last_activity_at DESC`

	rows, err := r.db.Query(ctx, query, userID, domain.SessionActive, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		var revokedReason *string
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.Status,
			&s.Device.UserAgent,
			&s.Device.IP,
			&s.Device.Browser,
			&s.Device.OS,
			&s.Device.Location,
			&s.CreatedAt,
			&s.ExpiresAt,
			&s.LastActivityAt,
			&s.RevokedAt,
			&revokedReason,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		if revokedReason != nil {
			s.RevokedReason = *revokedReason
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}

	if sessions == nil {
		sessions = []domain.Session{}
	}

	return sessions, nil
}

// Revoke marks an active session revoked. A session already in a terminal
// state is left untouched and reported as not found.
func (r *SessionRepository) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	query := `
		UPDATE sessions
		SET status = $1, revoked_at = $2, revoked_reason = $3
		WHERE id = $4 AND status = $5`

	ct, err := r.db.Exec(ctx, query, domain.SessionRevoked, at, reason, id, domain.SessionActive)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("session", id)
	}

	return nil
}

// RevokeAllByUserID revokes every active session for the user except the
// given one, returning the revoked session ids.
func (r *SessionRepository) RevokeAllByUserID(ctx context.Context, userID, exceptID, reason string, at time.Time) ([]string, error) {
	query := `
		UPDATE sessions
		SET status = $1, revoked_at = $2, revoked_reason = $3
		WHERE user_id = $4 AND status = $5 AND id <> $6
		RETURNING id`

	rows, err := r.db.Query(ctx, query, domain.SessionRevoked, at, reason, userID, domain.SessionActive, exceptID)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions by user: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan revoked session id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revoked session ids: %w", err)
	}

	return ids, nil
}

// UpdateLastActivity bumps the session's last-activity timestamp.
func (r *SessionRepository) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE sessions SET last_activity_at = $1 WHERE id = $2 AND status = $3`

	_, err := r.db.Exec(ctx, query, at, id, domain.SessionActive)
	if err != nil {
		return fmt.Errorf("update session activity: %w", err)
	}

	return nil
}

// DeleteExpired removes terminal sessions whose expiry passed before the
// cutoff. Active rows are never deleted here.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM sessions WHERE status <> $1 AND expires_at < $2`

	ct, err := r.db.Exec(ctx, query, domain.SessionActive, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return ct.RowsAffected(), nil
}
