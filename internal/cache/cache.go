package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or its TTL has elapsed.
var ErrNotFound = errors.New("cache: key not found")

// Store is the ephemeral flow store: TTL-keyed JSON values used for
// in-progress authentication state, session validation caching, and
// verification codes. Absence after the TTL elapses means the flow expired.
type Store interface {
	// Get unmarshals the value at key into dest. Returns ErrNotFound when
	// the key is absent or expired.
	Get(ctx context.Context, key string, dest any) error

	// Set marshals value as JSON and stores it under key. A zero TTL stores
	// the value without expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)
}

// Key builds a namespaced flow key of the form "<flow>:<token>".
func Key(flow, token string) string {
	return flow + ":" + token
}

// Flow namespaces used across authentication flows.
const (
	FlowOAuthState       = "oauth_state"
	FlowPendingRegister  = "pending_register"
	FlowLoginAttempt     = "login_attempt"
	FlowPasskeyChallenge = "passkey_challenge"
	FlowVerifyCode       = "verify_code"
	FlowSessionValid     = "session_valid"
)
