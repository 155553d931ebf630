package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/nortide/identity/pkg/errors"
)

// Doer executes outbound HTTP requests. Satisfied by httpclient.Client and
// httpclient.CircuitBreakerClient.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Token holds the provider tokens returned by a code exchange.
type Token struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Scope        string
	ExpiresAt    time.Time
}

// UserInfo is the normalized identity returned by a provider.
type UserInfo struct {
	ProviderID    string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
}

// Provider is one third-party OAuth relying-party client.
type Provider interface {
	// Name returns the provider identifier ("google", "apple").
	Name() string

	// AuthorizationURL builds the provider's consent URL embedding the CSRF state.
	AuthorizationURL(state string) string

	// ExchangeCode trades an authorization code for provider tokens.
	ExchangeCode(ctx context.Context, code string) (*Token, error)

	// GetUserInfo resolves the authenticated user's identity from the tokens.
	GetUserInfo(ctx context.Context, token *Token) (*UserInfo, error)

	// RefreshToken obtains fresh tokens from a refresh token.
	RefreshToken(ctx context.Context, refreshToken string) (*Token, error)
}

// Config holds one provider's client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// tokenResponse is the common token endpoint payload shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

// exchangeForm posts an authorization-code grant to the token endpoint.
func exchangeForm(ctx context.Context, client Doer, tokenURL string, form url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, apperrors.OAuthExchangeFailed(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.OAuthExchangeFailed(fmt.Errorf("token endpoint returned %d", resp.StatusCode))
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.OAuthExchangeFailed(fmt.Errorf("decode token response: %w", err))
	}
	if payload.AccessToken == "" {
		return nil, apperrors.OAuthExchangeFailed(fmt.Errorf("token response missing access token"))
	}

	token := &Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		IDToken:      payload.IDToken,
		Scope:        payload.Scope,
	}
	if payload.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().UTC().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}

	return token, nil
}
