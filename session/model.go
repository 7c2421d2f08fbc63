package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session is a server-side record binding a refresh token and the most
// recently issued access token to a user and device metadata.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	AccessToken    string    `json:"access_token"`
	RefreshHash    string    `json:"refresh_hash"`
	UserAgent      string    `json:"user_agent,omitempty"`
	IPAddress      string    `json:"ip_address,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Meta carries the device metadata captured at session creation.
type Meta struct {
	UserAgent string
	IPAddress string
}

// Active reports whether the session has not yet expired at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.ExpiresAt.After(now)
}

// HashRefreshToken derives the storage key material for a refresh token.
// Only the hash is persisted.
func HashRefreshToken(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}
