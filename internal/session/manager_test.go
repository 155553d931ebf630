package session

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nortide/identity/internal/cache"
	"github.com/nortide/identity/internal/domain"
	apperrors "github.com/nortide/identity/pkg/errors"
)

// --- Mock Session Repository ---

type mockSessionRepository struct {
	mock.Mock
}

func (m *mockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionRepository) ListActiveByUserID(ctx context.Context, userID string) ([]domain.Session, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *mockSessionRepository) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	args := m.Called(ctx, id, reason, at)
	return args.Error(0)
}

func (m *mockSessionRepository) RevokeAllByUserID(ctx context.Context, userID, exceptID, reason string, at time.Time) ([]string, error) {
	args := m.Called(ctx, userID, exceptID, reason, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockSessionRepository) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockSessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(t *testing.T, repo *mockSessionRepository) (*Manager, cache.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cache.NewRedisStore(client)

	cfg := Config{
		TTL:         24 * time.Hour,
		CacheTTL:    time.Minute,
		NegativeTTL: 10 * time.Second,
	}
	return NewManager(repo, store, cfg, newTestLogger()), store
}

func activeSession(id, userID string) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:             id,
		UserID:         userID,
		Status:         domain.SessionActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Hour),
		LastActivityAt: now,
	}
}

// --- Tests ---

func TestManager_Create(t *testing.T) {
	repo := new(mockSessionRepository)
	mgr, _ := newTestManager(t, repo)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(s *domain.Session) bool {
		return s.UserID == "u-1" && s.Status == domain.SessionActive && s.ExpiresAt.After(s.CreatedAt)
	})).Return(nil)

	session, err := mgr.Create(context.Background(), "u-1", domain.DeviceInfo{IP: "1.2.3.4"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "u-1", session.UserID)
	repo.AssertExpectations(t)
}

func TestManager_Validate_CacheMissThenHit(t *testing.T) {
	repo := new(mockSessionRepository)
	mgr, _ := newTestManager(t, repo)
	ctx := context.Background()

	repo.On("GetByID", mock.Anything, "sess-1").Return(activeSession("sess-1", "u-1"), nil).Once()

	ok, err := mgr.Validate(ctx, "sess-1", "u-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second call is served from cache; the repo mock only allows one call.
	ok, err = mgr.Validate(ctx, "sess-1", "u-1")
	require.NoError(t, err)
	assert.True(t, ok)
	repo.AssertExpectations(t)
}

func TestManager_Validate_WrongOwner(t *testing.T) {
	repo := new(mockSessionRepository)
	mgr, _ := newTestManager(t, repo)

	repo.On("GetByID", mock.Anything, "sess-1").Return(activeSession("sess-1", "u-1"), nil)

	ok, err := mgr.Validate(context.Background(), "sess-1", "u-other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_Validate_MissingAndInvalidLookIdentical(t *testing.T) {
	repo := new(mockSessionRepository)
	mgr, _ := newTestManager(t, repo)
	ctx := context.Background()

	repo.On("GetByID", mock.Anything, "sess-missing").Return(nil, apperrors.ErrNotFound)
	expired := activeSession("sess-expired", "u-1")
	expired.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	repo.On("GetByID", mock.Anything, "sess-expired").Return(expired, nil)

	okMissing, err := mgr.Validate(ctx, "sess-missing", "u-1")
	require.NoError(t, err)
	okExpired, err := mgr.Validate(ctx, "sess-expired", "u-1")
	require.NoError(t, err)

	assert.Equal(t, okMissing, okExpired)
	assert.False(t, okMissing)
}

func TestManager_Validate_NegativeResultIsCached(t *testing.T) {
	repo := new(mockSessionRepository)
	mgr, _ := newTestManager(t, repo)
	ctx := context.Background()

	repo.On("GetByID", mock.Anything, "sess-gone").Return(nil, apperrors.ErrNotFound).Once()

	ok, err := mgr.Validate(ctx, "sess-gone", "u-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = mgr.Validate(ctx, "sess-gone", "u-1")
	require.NoError(t, err)
	assert.False(t, ok)
	repo.AssertExpectations(t)
}

func TestManager_Validate_RevokedStaysInvalid(t *testing.T) {
	repo := new(mockSessionRepository)
	mgr, _ := newTestManager(t, repo)

	revoked := activeSession("sess-1", "u-1").WithRevoked("logout", time.Now().UTC())
	repo.On("GetByID", mock.Anything, "sess-1").Return(&revoked, nil)

	ok, err := mgr.Validate(context.Background(), "sess-1", "u-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_Revoke_InvalidatesCache(t *testing.T) {
	repo := new(mockSessionRepository)
	mgr, store := newTestManager(t, repo)
	ctx := context.Background()

	// Warm the cache with a positive entry.
	repo.On("GetByID", mock.Anything, "sess-1").Return(activeSession("sess-1", "u-1"), nil).Once()
	ok, err := mgr.Validate(ctx, "sess-1", "u-1")
	require.NoError(t, err)
	require.True(t, ok)

	repo.On("Revoke", mock.Anything, "sess-1", "logout", mock.Anything).Return(nil)
	require.NoError(t, mgr.Revoke(ctx, "sess-1", "logout"))

	present, err := store.Exists(ctx, cache.Key(cache.FlowSessionValid, "sess-1"))
	require.NoError(t, err)
	assert.False(t, present)
	repo.AssertExpectations(t)
}

func TestManager_RevokeAll_KeepsCurrentSession(t *testing.T) {
	repo := new(mockSessionRepository)
	mgr, store := newTestManager(t, repo)
	ctx := context.Background()

	// Warm cache entries for the sessions that will be revoked.
	repo.On("GetByID", mock.Anything, "sess-2").Return(activeSession("sess-2", "u-1"), nil).Once()
	repo.On("GetByID", mock.Anything, "sess-3").Return(activeSession("sess-3", "u-1"), nil).Once()
	for _, id := range []string{"sess-2", "sess-3"} {
		ok, err := mgr.Validate(ctx, id, "u-1")
		require.NoError(t, err)
		require.True(t, ok)
	}

	repo.On("RevokeAllByUserID", mock.Anything, "u-1", "sess-1", "revoke_all", mock.Anything).
		Return([]string{"sess-2", "sess-3"}, nil)

	n, err := mgr.RevokeAll(ctx, "u-1", "sess-1", "revoke_all")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"sess-2", "sess-3"} {
		present, err := store.Exists(ctx, cache.Key(cache.FlowSessionValid, id))
		require.NoError(t, err)
		assert.False(t, present, "cache entry for %s should be invalidated", id)
	}
	repo.AssertExpectations(t)
}

func TestManager_Touch_SwallowsErrors(t *testing.T) {
	repo := new(mockSessionRepository)
	mgr, _ := newTestManager(t, repo)

	repo.On("UpdateLastActivity", mock.Anything, "sess-1", mock.Anything).
		Return(assert.AnError)

	// Must not panic or propagate.
	mgr.Touch(context.Background(), "sess-1")
	repo.AssertExpectations(t)
}

func TestManager_CleanupExpired(t *testing.T) {
	repo := new(mockSessionRepository)
	mgr, _ := newTestManager(t, repo)

	repo.On("DeleteExpired", mock.Anything, mock.Anything).Return(int64(4), nil)

	n, err := mgr.CleanupExpired(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
