package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nortide/identity/internal/cache"
	"github.com/nortide/identity/internal/domain"
	apperrors "github.com/nortide/identity/pkg/errors"
)

// OAuth flow modes recorded in the CSRF state.
const (
	OAuthModeLogin    = "login"
	OAuthModeRegister = "register"
)

// oauthState is the flow record behind the CSRF state parameter.
type oauthState struct {
	Provider    string `json:"provider"`
	Mode        string `json:"mode"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// OAuthInitInput holds the parameters for starting an OAuth flow.
type OAuthInitInput struct {
	Provider    string
	Mode        string
	RedirectURI string
}

// OAuthInitResult carries the provider consent URL embedding the state.
type OAuthInitResult struct {
	AuthorizationURL string
	State            string
	ExpiresIn        int64
}

// OAuthInit issues a single-use CSRF state and builds the provider's
// authorization URL.
func (s *AuthService) OAuthInit(ctx context.Context, in OAuthInitInput) (*OAuthInitResult, error) {
	p, err := s.provider(in.Provider)
	if err != nil {
		return nil, err
	}

	mode := in.Mode
	if mode == "" {
		mode = OAuthModeLogin
	}
	if mode != OAuthModeLogin && mode != OAuthModeRegister {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown oauth mode %q", in.Mode))
	}

	state := uuid.New().String()
	rec := oauthState{
		Provider:    in.Provider,
		Mode:        mode,
		RedirectURI: in.RedirectURI,
	}
	if err := s.store.Set(ctx, cache.Key(cache.FlowOAuthState, state), rec, s.cfg.OAuthStateTTL); err != nil {
		return nil, fmt.Errorf("store oauth state: %w", err)
	}

	return &OAuthInitResult{
		AuthorizationURL: p.AuthorizationURL(state),
		State:            state,
		ExpiresIn:        int64(s.cfg.OAuthStateTTL.Seconds()),
	}, nil
}

// OAuthCompleteInput holds the callback parameters for completing an OAuth
// flow.
type OAuthCompleteInput struct {
	Provider string
	State    string
	Code     string
	// Name is only delivered by Apple on the user's first authorization, so
	// the client carries it through the completion payload.
	Name   string
	Device domain.DeviceInfo
}

// OAuthComplete consumes the state, exchanges the authorization code, and
// either logs in the linked account or, in register mode, creates a new one.
// OAuth providers are trusted to have verified the email.
func (s *AuthService) OAuthComplete(ctx context.Context, in OAuthCompleteInput) (*AuthResult, error) {
	p, err := s.provider(in.Provider)
	if err != nil {
		return nil, err
	}

	key := cache.Key(cache.FlowOAuthState, in.State)
	var state oauthState
	if err := s.store.Get(ctx, key, &state); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, apperrors.OAuthInvalidState()
		}
		return nil, fmt.Errorf("load oauth state: %w", err)
	}
	if state.Provider != in.Provider {
		return nil, apperrors.OAuthInvalidState()
	}

	// The state is single use regardless of how the exchange turns out.
	s.deleteFlow(ctx, key)

	providerToken, err := p.ExchangeCode(ctx, in.Code)
	if err != nil {
		return nil, err
	}

	info, err := p.GetUserInfo(ctx, providerToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByAuthProvider(ctx, in.Provider, info.ProviderID)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "user logged in",
			slog.String("user_id", user.ID),
			slog.String("method", in.Provider),
		)
		return s.login(ctx, user, in.Device)
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("look up provider link: %w", err)
	}

	if state.Mode != OAuthModeRegister {
		return nil, apperrors.InvalidCredentials()
	}

	if _, err := s.users.GetByEmail(ctx, info.Email); err == nil {
		return nil, apperrors.AlreadyExists("user", "email", info.Email)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check email availability: %w", err)
	}

	name := info.Name
	if name == "" {
		name = in.Name
	}

	now := time.Now().UTC()
	user = &domain.User{
		ID: uuid.New().String(),
		Email: domain.Email{
			Address:    info.Email,
			Verified:   true,
			VerifiedAt: &now,
		},
		Name:      name,
		AvatarURL: info.AvatarURL,
		Status:    domain.StatusActive,
		Role:      domain.RoleUser,
		AuthProviders: []domain.AuthProvider{{
			Type:       in.Provider,
			ProviderID: info.ProviderID,
			LinkedAt:   now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("method", in.Provider),
	)
	s.publishRegistered(ctx, user, in.Provider)

	return s.login(ctx, user, in.Device)
}
