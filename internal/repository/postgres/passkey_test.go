package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nortide/identity/internal/domain"
	apperrors "github.com/nortide/identity/pkg/errors"
)

func newPasskeyTestFixture(t *testing.T) (*PasskeyRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewPasskeyRepository(mock)
	return repo, mock
}

func sampleCredential() *domain.PasskeyCredential {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.PasskeyCredential{
		ID:              "pk-1",
		UserID:          "u-1234",
		CredentialID:    []byte{0x01, 0x02, 0x03},
		PublicKey:       []byte{0xaa, 0xbb},
		AttestationType: "none",
		Transports:      []string{"internal", "hybrid"},
		SignCount:       5,
		DeviceName:      "Pixel 9",
		BackedUp:        true,
		CreatedAt:       now,
		LastUsedAt:      now,
	}
}

func passkeyTestColumns() []string {
	return []string{
		"id", "user_id", "credential_id", "public_key", "attestation_type",
		"transports", "sign_count", "device_name", "backed_up", "created_at", "last_used_at",
	}
}

func credentialRow(c *domain.PasskeyCredential) *pgxmock.Rows {
	return pgxmock.NewRows(passkeyTestColumns()).AddRow(
		c.ID, c.UserID, c.CredentialID, c.PublicKey, c.AttestationType,
		c.Transports, c.SignCount, c.DeviceName, c.BackedUp, c.CreatedAt, c.LastUsedAt,
	)
}

func TestPasskeyRepository_Create_Success(t *testing.T) {
	repo, mock := newPasskeyTestFixture(t)
	defer mock.Close()

	c := sampleCredential()

	mock.ExpectExec("INSERT INTO passkey_credentials").
		WithArgs(
			c.ID, c.UserID, c.CredentialID, c.PublicKey, c.AttestationType,
			c.Transports, c.SignCount, c.DeviceName, c.BackedUp, c.CreatedAt, c.LastUsedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), c)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasskeyRepository_FindByCredentialID_Success(t *testing.T) {
	repo, mock := newPasskeyTestFixture(t)
	defer mock.Close()

	c := sampleCredential()

	mock.ExpectQuery("SELECT .+ FROM passkey_credentials WHERE credential_id =").
		WithArgs(c.CredentialID).
		WillReturnRows(credentialRow(c))

	got, err := repo.FindByCredentialID(context.Background(), c.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.UserID, got.UserID)
	assert.Equal(t, uint32(5), got.SignCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasskeyRepository_FindByCredentialID_NotFound(t *testing.T) {
	repo, mock := newPasskeyTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM passkey_credentials WHERE credential_id =").
		WithArgs([]byte{0xff}).
		WillReturnRows(pgxmock.NewRows(passkeyTestColumns()))

	_, err := repo.FindByCredentialID(context.Background(), []byte{0xff})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasskeyRepository_ListByUserID(t *testing.T) {
	repo, mock := newPasskeyTestFixture(t)
	defer mock.Close()

	c := sampleCredential()

	mock.ExpectQuery("SELECT .+ FROM passkey_credentials WHERE user_id =").
		WithArgs(c.UserID).
		WillReturnRows(credentialRow(c))

	creds, err := repo.ListByUserID(context.Background(), c.UserID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, c.CredentialID, creds[0].CredentialID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPasskeyRepository_UpdateSignCount_NotFound(t *testing.T) {
	repo, mock := newPasskeyTestFixture(t)
	defer mock.Close()

	at := time.Now().UTC()

	mock.ExpectExec("UPDATE passkey_credentials SET sign_count").
		WithArgs(uint32(9), at, "pk-missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateSignCount(context.Background(), "pk-missing", 9, at)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
