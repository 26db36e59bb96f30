// internal/pkg/session/types.go
package session

import "time"

// RefreshTokenKey is the durable storage name of the refresh token.
const RefreshTokenKey = "refresh_token"

// Tokens is the credential triple returned by login and refresh.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}
