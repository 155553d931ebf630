package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/nortide/identity/pkg/errors"
)

// Claims are the access-token claims carried by every signed token.
type Claims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and verifies HMAC-signed access tokens bound to a fixed
// issuer and audience.
type Service struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

// NewService creates a token service.
func NewService(secret, issuer, audience string, ttl time.Duration) *Service {
	return &Service{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
	}
}

// TTL returns the configured access-token lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Sign issues a signed access token for the given subject and session.
func (s *Service) Sign(userID, sessionID, email, role string) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		UserID:    userID,
		SessionID: sessionID,
		Email:     email,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token: structure, signature, expiry, issuer,
// audience, in that order. Failures surface only as the TOKEN_EXPIRED or
// TOKEN_INVALID error kinds so callers cannot learn which check failed.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.TokenInvalid()
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apperrors.TokenInvalid()
	}

	if claims.Issuer != s.issuer {
		return nil, apperrors.TokenInvalid()
	}

	audienceOK := false
	for _, aud := range claims.Audience {
		if aud == s.audience {
			audienceOK = true
			break
		}
	}
	if !audienceOK {
		return nil, apperrors.TokenInvalid()
	}

	return claims, nil
}
