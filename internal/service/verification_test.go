package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nortide/identity/internal/domain"
	apperrors "github.com/nortide/identity/pkg/errors"
)

func TestEmailVerificationInit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.users.On("GetByID", ctx, "u-1").Return(sampleUser("u-1"), nil)

	res, err := f.svc.EmailVerificationInit(ctx, "u-1")
	require.NoError(t, err)
	assert.Positive(t, res.ExpiresIn)

	code := f.mr.HGet("verify_code:u-1", "code")
	assert.Len(t, code, 6)
}

func TestEmailVerificationInit_AlreadyVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := sampleUser("u-1")
	user.Email.Verified = true
	f.users.On("GetByID", ctx, "u-1").Return(user, nil)

	_, err := f.svc.EmailVerificationInit(ctx, "u-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestEmailVerificationComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.users.On("GetByID", ctx, "u-1").Return(sampleUser("u-1"), nil)
	f.users.On("Update", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email.Verified && u.Email.VerifiedAt != nil
	})).Return(nil)

	_, err := f.svc.EmailVerificationInit(ctx, "u-1")
	require.NoError(t, err)

	code := f.mr.HGet("verify_code:u-1", "code")
	require.NoError(t, f.svc.EmailVerificationComplete(ctx, "u-1", code))
	f.users.AssertExpectations(t)

	// The code is single use.
	err = f.svc.EmailVerificationComplete(ctx, "u-1", code)
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestEmailVerificationComplete_WrongCodeBurnsAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.users.On("GetByID", ctx, "u-1").Return(sampleUser("u-1"), nil)

	_, err := f.svc.EmailVerificationInit(ctx, "u-1")
	require.NoError(t, err)

	err = f.svc.EmailVerificationComplete(ctx, "u-1", "000000")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	assert.Equal(t, "1", f.mr.HGet("verify_code:u-1", "attempts"))
}

func TestEmailVerificationComplete_TooManyAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.users.On("GetByID", ctx, "u-1").Return(sampleUser("u-1"), nil)

	_, err := f.svc.EmailVerificationInit(ctx, "u-1")
	require.NoError(t, err)

	// Default budget is five attempts; the last one deletes the record.
	for i := 0; i < 4; i++ {
		err = f.svc.EmailVerificationComplete(ctx, "u-1", "000000")
		require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	}

	err = f.svc.EmailVerificationComplete(ctx, "u-1", "000000")
	require.ErrorIs(t, err, apperrors.ErrTooManyAttempts)

	// Even the correct code cannot revive the flow; it must restart.
	err = f.svc.EmailVerificationComplete(ctx, "u-1", "000000")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	f.users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}
