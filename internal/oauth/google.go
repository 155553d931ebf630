package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nortide/identity/internal/domain"
	apperrors "github.com/nortide/identity/pkg/errors"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// GoogleProvider implements Provider against Google's OAuth 2.0 endpoints.
type GoogleProvider struct {
	cfg    Config
	client Doer

	authURL     string
	tokenURL    string
	userInfoURL string
}

// NewGoogleProvider creates a Google OAuth client.
func NewGoogleProvider(cfg Config, client Doer) *GoogleProvider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "email", "profile"}
	}
	return &GoogleProvider{
		cfg:         cfg,
		client:      client,
		authURL:     googleAuthURL,
		tokenURL:    googleTokenURL,
		userInfoURL: googleUserInfoURL,
	}
}

// Name returns the provider identifier.
func (p *GoogleProvider) Name() string {
	return domain.ProviderGoogle
}

// AuthorizationURL builds the Google consent URL embedding the CSRF state.
func (p *GoogleProvider) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.RedirectURI)
	q.Set("scope", strings.Join(p.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("access_type", "offline")

	return p.authURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for Google tokens.
func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURI)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	return exchangeForm(ctx, p.client, p.tokenURL, form)
}

// GetUserInfo fetches the authenticated user's profile from the OpenID
// Connect userinfo endpoint.
func (p *GoogleProvider) GetUserInfo(ctx context.Context, token *Token) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(ctx, req)
	if err != nil {
		return nil, apperrors.OAuthExchangeFailed(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.OAuthExchangeFailed(fmt.Errorf("userinfo endpoint returned %d", resp.StatusCode))
	}

	var payload struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.OAuthExchangeFailed(fmt.Errorf("decode userinfo response: %w", err))
	}
	if payload.Sub == "" {
		return nil, apperrors.OAuthExchangeFailed(fmt.Errorf("userinfo response missing subject"))
	}

	return &UserInfo{
		ProviderID:    payload.Sub,
		Email:         payload.Email,
		EmailVerified: payload.EmailVerified,
		Name:          payload.Name,
		AvatarURL:     payload.Picture,
	}, nil
}

// RefreshToken obtains fresh tokens from a refresh token.
func (p *GoogleProvider) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	return exchangeForm(ctx, p.client, p.tokenURL, form)
}
