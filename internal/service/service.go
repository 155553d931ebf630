package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/nortide/identity/internal/cache"
	"github.com/nortide/identity/internal/domain"
	"github.com/nortide/identity/internal/event"
	"github.com/nortide/identity/internal/oauth"
	"github.com/nortide/identity/internal/passkey"
	"github.com/nortide/identity/internal/repository"
	"github.com/nortide/identity/internal/session"
	"github.com/nortide/identity/internal/token"
	"github.com/nortide/identity/internal/totp"
	apperrors "github.com/nortide/identity/pkg/errors"
)

// Credential method names used in flow records and logs.
const (
	methodTOTP    = "totp"
	methodPasskey = "passkey"
)

// Config holds TTLs and limits for the authentication flows. Zero values
// fall back to conservative defaults.
type Config struct {
	PendingRegisterTTL time.Duration
	LoginAttemptTTL    time.Duration
	OAuthStateTTL      time.Duration
	ChallengeTTL       time.Duration
	VerifyCodeTTL      time.Duration
	MaxCodeAttempts    int
}

func (c Config) withDefaults() Config {
	if c.PendingRegisterTTL <= 0 {
		c.PendingRegisterTTL = 10 * time.Minute
	}
	if c.LoginAttemptTTL <= 0 {
		c.LoginAttemptTTL = 5 * time.Minute
	}
	if c.OAuthStateTTL <= 0 {
		c.OAuthStateTTL = 10 * time.Minute
	}
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = 5 * time.Minute
	}
	if c.VerifyCodeTTL <= 0 {
		c.VerifyCodeTTL = 15 * time.Minute
	}
	if c.MaxCodeAttempts <= 0 {
		c.MaxCodeAttempts = 5
	}
	return c
}

// WebAuthnVerifier runs the WebAuthn registration and authentication
// ceremonies. Satisfied by passkey.Verifier.
type WebAuthnVerifier interface {
	BeginRegistration(user *passkey.User) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	FinishRegistration(user *passkey.User, session webauthn.SessionData, responseJSON []byte) (*webauthn.Credential, error)
	BeginLogin(user *passkey.User) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin() (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ParseAssertion(responseJSON []byte) (*protocol.ParsedCredentialAssertionData, error)
	FinishLogin(user *passkey.User, session webauthn.SessionData, parsed *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	FinishDiscoverableLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, parsed *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// AuthService implements the business logic for the authentication flows:
// registration and login for each credential method, session lifecycle, and
// email verification. Every flow follows init, ephemeral record, complete,
// durable mutation, ephemeral cleanup.
type AuthService struct {
	users     repository.UserRepository
	passkeys  repository.PasskeyRepository
	sessions  *session.Manager
	store     cache.Store
	codes     *cache.VerificationStore
	tokens    *token.Service
	totp      *totp.Verifier
	webauthn  WebAuthnVerifier
	providers map[string]oauth.Provider
	producer  *event.Producer
	cfg       Config
	logger    *slog.Logger
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	users repository.UserRepository,
	passkeys repository.PasskeyRepository,
	sessions *session.Manager,
	store cache.Store,
	codes *cache.VerificationStore,
	tokens *token.Service,
	totpVerifier *totp.Verifier,
	webauthnVerifier WebAuthnVerifier,
	providers map[string]oauth.Provider,
	producer *event.Producer,
	cfg Config,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		passkeys:  passkeys,
		sessions:  sessions,
		store:     store,
		codes:     codes,
		tokens:    tokens,
		totp:      totpVerifier,
		webauthn:  webauthnVerifier,
		providers: providers,
		producer:  producer,
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

// AuthResult is returned by every flow that ends in a login.
type AuthResult struct {
	User        *domain.User
	Session     *domain.Session
	AccessToken string
	ExpiresIn   int64
}

// pendingRegistration is the flow record held between register init and
// complete, keyed by the generated user id.
type pendingRegistration struct {
	Method   string                `json:"method"`
	Email    string                `json:"email"`
	Name     string                `json:"name"`
	Secret   string                `json:"secret,omitempty"`
	WebAuthn *webauthn.SessionData `json:"webauthn,omitempty"`
}

// login opens a session for the user and signs an access token bound to it.
func (s *AuthService) login(ctx context.Context, user *domain.User, device domain.DeviceInfo) (*AuthResult, error) {
	if !user.IsActive() {
		return nil, apperrors.Forbidden("account is not active")
	}

	sess, err := s.sessions.Create(ctx, user.ID, device)
	if err != nil {
		return nil, err
	}

	accessToken, err := s.tokens.Sign(user.ID, sess.ID, user.Email.Address, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &AuthResult{
		User:        user,
		Session:     sess,
		AccessToken: accessToken,
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
	}, nil
}

// provider resolves a configured OAuth provider by name.
func (s *AuthService) provider(name string) (oauth.Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported oauth provider %q", name))
	}
	return p, nil
}

// ensureEmailAvailable fails with ALREADY_EXISTS when the email is taken.
func (s *AuthService) ensureEmailAvailable(ctx context.Context, email string) error {
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return apperrors.AlreadyExists("user", "email", email)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("check email availability: %w", err)
	}
	return nil
}

// deleteFlow removes an ephemeral flow record. Deletion is idempotent and a
// failure only shortens nothing; the record expires with its TTL anyway.
func (s *AuthService) deleteFlow(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete flow record",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// publishRegistered fires the welcome event. Failures are logged and never
// roll back the registration.
func (s *AuthService) publishRegistered(ctx context.Context, user *domain.User, provider string) {
	if err := s.producer.PublishUserRegistered(ctx, user, provider); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}
