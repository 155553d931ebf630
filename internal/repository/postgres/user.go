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

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db DB
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, email_verified, email_verified_at, phone, phone_verified, phone_verified_at,
	name, avatar_url, status, role, totp_secret, totp_enabled, created_at, updated_at`

// Create inserts a new user and their auth provider links in one transaction.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO users (id, email, email_verified, email_verified_at, phone, phone_verified, phone_verified_at,
			name, avatar_url, status, role, totp_secret, totp_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = tx.Exec(ctx, query,
		u.ID,
		u.Email.Address,
		u.Email.Verified,
		u.Email.VerifiedAt,
		u.Phone.Number,
		u.Phone.Verified,
		u.Phone.VerifiedAt,
		u.Name,
		u.AvatarURL,
		u.Status,
		u.Role,
		u.TOTPSecret,
		u.TOTPEnabled,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email.Address)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	for _, p := range u.AuthProviders {
		_, err = tx.Exec(ctx,
			`INSERT INTO auth_providers (user_id, provider_type, provider_id, linked_at) VALUES ($1, $2, $3, $4)`,
			u.ID, p.Type, p.ProviderID, p.LinkedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperrors.AlreadyExists("auth provider", "provider_id", p.ProviderID)
			}
			return fmt.Errorf("insert auth provider: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a user and their provider links by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(ctx, query, id)
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(ctx, query, email)
}

// FindByAuthProvider retrieves the user linked to the given provider identity.
func (r *UserRepository) FindByAuthProvider(ctx context.Context, providerType, providerID string) (*domain.User, error) {
	query := `
		SELECT u.id, u.email, u.email_verified, u.email_verified_at, u.phone, u.phone_verified, u.phone_verified_at,
			u.name, u.avatar_url, u.status, u.role, u.totp_secret, u.totp_enabled, u.created_at, u.updated_at
		FROM users u
		JOIN auth_providers ap ON ap.user_id = u.id
		WHERE ap.provider_type = $1 AND ap.provider_id = $2`

	return r.scanUser(ctx, query, providerType, providerID)
}

// Update modifies an existing user's core fields.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users
		SET email = $1, email_verified = $2, email_verified_at = $3, phone = $4, phone_verified = $5,
		    phone_verified_at = $6, name = $7, avatar_url = $8, status = $9, role = $10,
		    totp_secret = $11, totp_enabled = $12, updated_at = $13
		WHERE id = $14`

	ct, err := r.db.Exec(ctx, query,
		u.Email.Address,
		u.Email.Verified,
		u.Email.VerifiedAt,
		u.Phone.Number,
		u.Phone.Verified,
		u.Phone.VerifiedAt,
		u.Name,
		u.AvatarURL,
		u.Status,
		u.Role,
		u.TOTPSecret,
		u.TOTPEnabled,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email.Address)
		}
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}

	return nil
}

// LinkProvider attaches an additional auth provider to an existing user.
func (r *UserRepository) LinkProvider(ctx context.Context, userID string, p domain.AuthProvider) error {
	query := `INSERT INTO auth_providers (user_id, provider_type, provider_id, linked_at) VALUES ($1, $2, $3, $4)`

	_, err := r.db.Exec(ctx, query, userID, p.Type, p.ProviderID, p.LinkedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("auth provider", "provider_id", p.ProviderID)
		}
		return fmt.Errorf("insert auth provider: %w", err)
	}

	return nil
}

// Delete removes a user from the database by their ID.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}

	return nil
}

// scanUser executes a query expected to return a single user row, then loads
// the user's auth provider links.
func (r *UserRepository) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email.Address,
		&u.Email.Verified,
		&u.Email.VerifiedAt,
		&u.Phone.Number,
		&u.Phone.Verified,
		&u.Phone.VerifiedAt,
		&u.Name,
		&u.AvatarURL,
		&u.Status,
		&u.Role,
		&u.TOTPSecret,
		&u.TOTPEnabled,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	providers, err := r.loadProviders(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.AuthProviders = providers

	return &u, nil
}

func (r *UserRepository) loadProviders(ctx context.Context, userID string) ([]domain.AuthProvider, error) {
	rows, err := r.db.Query(ctx,
		`SELECT provider_type, provider_id, linked_at FROM auth_providers WHERE user_id = $1 ORDER BY linked_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list auth providers: %w", err)
	}
	defer rows.Close()

	var providers []domain.AuthProvider
	for rows.Next() {
		var p domain.AuthProvider
		if err := rows.Scan(&p.Type, &p.ProviderID, &p.LinkedAt); err != nil {
			return nil, fmt.Errorf("scan auth provider row: %w", err)
		}
		providers = append(providers, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate auth provider rows: %w", err)
	}

	return providers, nil
}
