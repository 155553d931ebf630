package domain

import (
	"time"
)

// User statuses.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
	StatusDeleted   = "deleted"
)

// User roles.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Auth provider types.
const (
	ProviderEmail   = "email"
	ProviderGoogle  = "google"
	ProviderApple   = "apple"
	ProviderPasskey = "passkey"
)

// Email is a contact address together with its verification state.
type Email struct {
	Address    string     `json:"address"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// Phone is an optional contact number together with its verification state.
type Phone struct {
	Number     string     `json:"number,omitempty"`
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// AuthProvider links a user to one credential method. The (Type, ProviderID)
// pair is globally unique across all users.
type AuthProvider struct {
	Type       string    `json:"type"`
	ProviderID string    `json:"provider_id"`
	LinkedAt   time.Time `json:"linked_at"`
}

// User represents a registered account in the identity store.
type User struct {
	ID            string         `json:"id"`
	Email         Email          `json:"email"`
	Phone         Phone          `json:"phone,omitempty"`
	Name          string         `json:"name"`
	AvatarURL     string         `json:"avatar_url,omitempty"`
	Status        string         `json:"status"`
	Role          string         `json:"role"`
	AuthProviders []AuthProvider `json:"auth_providers"`
	TOTPSecret    string         `json:"-"`
	TOTPEnabled   bool           `json:"totp_enabled"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsActive reports whether the user may authenticate.
func (u User) IsActive() bool {
	return u.Status == StatusActive
}

// HasProvider reports whether the user is linked to the given provider type.
func (u User) HasProvider(providerType string) bool {
	for _, p := range u.AuthProviders {
		if p.Type == providerType {
			return true
		}
	}
	return false
}

// WithEmailVerified returns a copy of the user with the email marked verified.
func (u User) WithEmailVerified(at time.Time) User {
	u.Email.Verified = true
	u.Email.VerifiedAt = &at
	u.UpdatedAt = at
	return u
}

// WithStatus returns a copy of the user with the given status.
func (u User) WithStatus(status string, at time.Time) User {
	u.Status = status
	u.UpdatedAt = at
	return u
}

// WithProvider returns a copy of the user with an additional auth provider link.
func (u User) WithProvider(providerType, providerID string, at time.Time) User {
	providers := make([]AuthProvider, len(u.AuthProviders), len(u.AuthProviders)+1)
	copy(providers, u.AuthProviders)
	u.AuthProviders = append(providers, AuthProvider{
		Type:       providerType,
		ProviderID: providerID,
		LinkedAt:   at,
	})
	u.UpdatedAt = at
	return u
}

// WithTOTP returns a copy of the user with TOTP enabled and the secret set.
func (u User) WithTOTP(secret string, at time.Time) User {
	u.TOTPSecret = secret
	u.TOTPEnabled = true
	u.UpdatedAt = at
	return u
}
