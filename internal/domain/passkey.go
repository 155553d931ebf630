package domain

import (
	"time"
)

// PasskeyCredential is one WebAuthn credential registered to a user. The
// signature counter must only ever move forward; a counter that fails to
// advance indicates a cloned authenticator.
type PasskeyCredential struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	CredentialID    []byte    `json:"credential_id"`
	PublicKey       []byte    `json:"public_key"`
	AttestationType string    `json:"attestation_type,omitempty"`
	Transports      []string  `json:"transports,omitempty"`
	SignCount       uint32    `json:"sign_count"`
	DeviceName      string    `json:"device_name,omitempty"`
	BackedUp        bool      `json:"backed_up"`
	CreatedAt       time.Time `json:"created_at"`
	LastUsedAt      time.Time `json:"last_used_at"`
}

// WithSignCount returns a copy of the credential with an advanced counter and
// refreshed last-used timestamp.
func (c PasskeyCredential) WithSignCount(count uint32, at time.Time) PasskeyCredential {
	c.SignCount = count
	c.LastUsedAt = at
	return c
}
