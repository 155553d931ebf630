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

// PasskeyRepository implements repository.PasskeyRepository using PostgreSQL.
type PasskeyRepository struct {
	db DB
}

// NewPasskeyRepository creates a new PostgreSQL-backed passkey credential repository.
func NewPasskeyRepository(db DB) *PasskeyRepository {
	return &PasskeyRepository{db: db}
}

const passkeyColumns = `id, user_id, credential_id, public_key, attestation_type, transports,
	sign_count, device_name, backed_up, created_at, last_used_at`

// Create inserts a new passkey credential.
func (r *PasskeyRepository) Create(ctx context.Context, c *domain.PasskeyCredential) error {
	query := `
		INSERT INTO passkey_credentials (id, user_id, credential_id, public_key, attestation_type,
			transports, sign_count, device_name, backed_up, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		c.ID,
		c.UserID,
		c.CredentialID,
		c.PublicKey,
		c.AttestationType,
		c.Transports,
		c.SignCount,
		c.DeviceName,
		c.BackedUp,
		c.CreatedAt,
		c.LastUsedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("passkey credential", "credential_id", c.ID)
		}
		return fmt.Errorf("insert passkey credential: %w", err)
	}

	return nil
}

// FindByCredentialID retrieves a credential by its raw WebAuthn id.
func (r *PasskeyRepository) FindByCredentialID(ctx context.Context, credentialID []byte) (*domain.PasskeyCredential, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkey_credentials WHERE credential_id = $1`
	return r.scanCredential(r.db.QueryRow(ctx, query, credentialID))
}

// ListByUserID returns all credentials registered to the given user.
func (r *PasskeyRepository) ListByUserID(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkey_credentials WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list passkey credentials: %w", err)
	}
	defer rows.Close()

	var creds []domain.PasskeyCredential
	for rows.Next() {
		c, err := r.scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passkey credential rows: %w", err)
	}

	if creds == nil {
		creds = []domain.PasskeyCredential{}
	}

	return creds, nil
}

// UpdateSignCount persists an advanced signature counter and last-used time.
func (r *PasskeyRepository) UpdateSignCount(ctx context.Context, id string, signCount uint32, lastUsedAt time.Time) error {
	query := `UPDATE passkey_credentials SET sign_count = $1, last_used_at = $2 WHERE id = $3`

	ct, err := r.db.Exec(ctx, query, signCount, lastUsedAt, id)
	if err != nil {
		return fmt.Errorf("update passkey sign count: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("passkey credential", id)
	}

	return nil
}

func (r *PasskeyRepository) scanCredential(row pgx.Row) (*domain.PasskeyCredential, error) {
	var c domain.PasskeyCredential
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.CredentialID,
		&c.PublicKey,
		&c.AttestationType,
		&c.Transports,
		&c.SignCount,
		&c.DeviceName,
		&c.BackedUp,
		&c.CreatedAt,
		&c.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan passkey credential: %w", err)
	}

	return &c, nil
}
