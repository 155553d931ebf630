package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nortide/identity/internal/domain"
	apperrors "github.com/nortide/identity/pkg/errors"
)

const (
	appleAuthURL  = "https://appleid.apple.com/auth/authorize"
	appleTokenURL = "https://appleid.apple.com/auth/token"
)

// AppleProvider implements Provider against Sign in with Apple. Apple has no
// userinfo endpoint; identity comes from the id_token returned by the code
// exchange.
type AppleProvider struct {
	cfg    Config
	client Doer

	authURL  string
	tokenURL string
}

// NewAppleProvider creates an Apple OAuth client.
func NewAppleProvider(cfg Config, client Doer) *AppleProvider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"name", "email"}
	}
	return &AppleProvider{
		cfg:      cfg,
		client:   client,
		authURL:  appleAuthURL,
		tokenURL: appleTokenURL,
	}
}

// Name returns the provider identifier.
func (p *AppleProvider) Name() string {
	return domain.ProviderApple
}

// AuthorizationURL builds the Apple consent URL embedding the CSRF state.
// Apple requires form_post response mode when name or email scopes are requested.
func (p *AppleProvider) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.cfg.ClientID)
	q.Set("redirect_uri", p.cfg.RedirectURI)
	q.Set("scope", strings.Join(p.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("response_mode", "form_post")

	return p.authURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for Apple tokens.
func (p *AppleProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.cfg.RedirectURI)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	return exchangeForm(ctx, p.client, p.tokenURL, form)
}

// appleIDClaims are the claims Apple places in the id_token.
type appleIDClaims struct {
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	jwt.RegisteredClaims
}

// GetUserInfo decodes the id_token from the exchange. The token arrived
// directly from Apple's token endpoint over TLS in the same flow, so its
// claims are trusted without a separate JWKS signature check.
func (p *AppleProvider) GetUserInfo(_ context.Context, token *Token) (*UserInfo, error) {
	if token.IDToken == "" {
		return nil, apperrors.OAuthExchangeFailed(fmt.Errorf("token response missing id_token"))
	}

	var claims appleIDClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token.IDToken, &claims); err != nil {
		return nil, apperrors.OAuthExchangeFailed(fmt.Errorf("decode id_token: %w", err))
	}

	if claims.Subject == "" {
		return nil, apperrors.OAuthExchangeFailed(fmt.Errorf("id_token missing subject"))
	}

	return &UserInfo{
		ProviderID:    claims.Subject,
		Email:         claims.Email,
		EmailVerified: appleBool(claims.EmailVerified),
	}, nil
}

// RefreshToken obtains fresh tokens from a refresh token.
func (p *AppleProvider) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)

	return exchangeForm(ctx, p.client, p.tokenURL, form)
}

// appleBool tolerates Apple sending email_verified as either a bool or the
// string "true".
func appleBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	default:
		return false
	}
}
