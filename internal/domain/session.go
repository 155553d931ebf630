package domain

import (
	"time"
)

// Session statuses. Revoked and expired are terminal.
const (
	SessionActive  = "active"
	SessionExpired = "expired"
	SessionRevoked = "revoked"
)

// DeviceInfo carries client metadata captured when a session is created.
type DeviceInfo struct {
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	Location  string `json:"location,omitempty"`
}

// Session represents one authenticated device session for a user.
type Session struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Status         string     `json:"status"`
	Device         DeviceInfo `json:"device"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	RevokedReason  string     `json:"revoked_reason,omitempty"`
}

// IsValidFor reports whether the session currently authenticates the given
// user: it must be active, unexpired, and owned by that user.
func (s Session) IsValidFor(userID string, now time.Time) bool {
	return s.Status == SessionActive && now.Before(s.ExpiresAt) && s.UserID == userID
}

// WithRevoked returns a copy of the session in the terminal revoked state.
// Revoking a session that is already terminal is a no-op.
func (s Session) WithRevoked(reason string, at time.Time) Session {
	if s.Status != SessionActive {
		return s
	}
	s.Status = SessionRevoked
	s.RevokedAt = &at
	s.RevokedReason = reason
	return s
}

// WithExpired returns a copy of the session in the terminal expired state.
func (s Session) WithExpired() Session {
	if s.Status != SessionActive {
		return s
	}
	s.Status = SessionExpired
	return s
}

// WithActivity returns a copy of the session with the last-activity timestamp bumped.
func (s Session) WithActivity(at time.Time) Session {
	s.LastActivityAt = at
	return s
}
