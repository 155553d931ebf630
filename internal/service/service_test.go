package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/nortide/identity/internal/cache"
	"github.com/nortide/identity/internal/domain"
	"github.com/nortide/identity/internal/event"
	"github.com/nortide/identity/internal/oauth"
	"github.com/nortide/identity/internal/passkey"
	"github.com/nortide/identity/internal/repository"
	"github.com/nortide/identity/internal/session"
	"github.com/nortide/identity/internal/token"
	"github.com/nortide/identity/internal/totp"
	"github.com/nortide/identity/pkg/kafka"
)

// --- Mocks ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) FindByAuthProvider(ctx context.Context, providerType, providerID string) (*domain.User, error) {
	args := m.Called(ctx, providerType, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) LinkProvider(ctx context.Context, userID string, provider domain.AuthProvider) error {
	args := m.Called(ctx, userID, provider)
	return args.Error(0)
}

func (m *mockUserRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockPasskeyRepository struct {
	mock.Mock
}

func (m *mockPasskeyRepository) Create(ctx context.Context, cred *domain.PasskeyCredential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *mockPasskeyRepository) FindByCredentialID(ctx context.Context, credentialID []byte) (*domain.PasskeyCredential, error) {
	args := m.Called(ctx, credentialID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasskeyCredential), args.Error(1)
}

func (m *mockPasskeyRepository) ListByUserID(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PasskeyCredential), args.Error(1)
}

func (m *mockPasskeyRepository) UpdateSignCount(ctx context.Context, id string, signCount uint32, lastUsedAt time.Time) error {
	args := m.Called(ctx, id, signCount, lastUsedAt)
	return args.Error(0)
}

type mockSessionRepository struct {
	mock.Mock
}

func (m *mockSessionRepository) Create(ctx context.Context, sess *domain.Session) error {
	args := m.Called(ctx, sess)
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
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
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

// fakeProvider is a canned OAuth provider for orchestrator tests.
type fakeProvider struct {
	name string
	info *oauth.UserInfo
	err  error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthorizationURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (p *fakeProvider) ExchangeCode(ctx context.Context, code string) (*oauth.Token, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &oauth.Token{AccessToken: "provider-access-token"}, nil
}

func (p *fakeProvider) GetUserInfo(ctx context.Context, t *oauth.Token) (*oauth.UserInfo, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.info, nil
}

func (p *fakeProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth.Token, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &oauth.Token{AccessToken: "refreshed-access-token"}, nil
}

// --- Fixture ---

func newTestEventProducer() *event.Producer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kafkaProducer := kafka.NewProducer(kafka.DefaultProducerConfig([]string{"localhost:9092"}), logger)
	return event.NewProducer(kafkaProducer, logger)
}

type fixture struct {
	svc      *AuthService
	users    *mockUserRepository
	passkeys *mockPasskeyRepository
	sessions *mockSessionRepository
	store    cache.Store
	mr       *miniredis.Miniredis
	totp     *totp.Verifier
	webauthn *passkey.Verifier
	google   *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := cache.NewRedisStore(client)
	codes := cache.NewVerificationStore(client)

	users := new(mockUserRepository)
	passkeys := new(mockPasskeyRepository)
	sessionRepo := new(mockSessionRepository)

	sessions := session.NewManager(sessionRepo, store, session.Config{
		TTL:         time.Hour,
		CacheTTL:    time.Minute,
		NegativeTTL: 10 * time.Second,
	}, logger)

	tokens := token.NewService("test-secret", "identity", "identity-clients", 15*time.Minute)
	totpVerifier := totp.NewVerifier("Nortide", 0, 0, 0)

	webauthnVerifier, err := passkey.NewVerifier(passkey.Config{
		RPID:          "example.com",
		RPDisplayName: "Example",
		RPOrigins:     []string{"https://example.com"},
	})
	if err != nil {
		t.Fatalf("configure webauthn: %v", err)
	}

	google := &fakeProvider{
		name: "google",
		info: &oauth.UserInfo{
			ProviderID:    "google-sub-1",
			Email:         "oauth@example.com",
			EmailVerified: true,
			Name:          "OAuth User",
		},
	}

	svc := NewAuthService(
		users,
		passkeys,
		sessions,
		store,
		codes,
		tokens,
		totpVerifier,
		webauthnVerifier,
		map[string]oauth.Provider{"google": google},
		newTestEventProducer(),
		Config{},
		logger,
	)

	return &fixture{
		svc:      svc,
		users:    users,
		passkeys: passkeys,
		sessions: sessionRepo,
		store:    store,
		mr:       mr,
		totp:     totpVerifier,
		webauthn: webauthnVerifier,
		google:   google,
	}
}

func sampleUser(id string) *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		ID:     id,
		Email:  domain.Email{Address: "alice@example.com"},
		Name:   "Alice",
		Status: domain.StatusActive,
		Role:   domain.RoleUser,
		AuthProviders: []domain.AuthProvider{{
			Type:       domain.ProviderEmail,
			ProviderID: "alice@example.com",
			LinkedAt:   now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

var _ repository.UserRepository = (*mockUserRepository)(nil)
var _ repository.PasskeyRepository = (*mockPasskeyRepository)(nil)
var _ repository.SessionRepository = (*mockSessionRepository)(nil)
var _ WebAuthnVerifier = (*passkey.Verifier)(nil)
