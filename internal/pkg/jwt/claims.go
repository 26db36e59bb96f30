// internal/pkg/jwt/claims.go
package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the console reads out of an access token issued by the user service.
// Signatures are never checked here: the console only holds tokens, the backend verifies them.
type Claims struct {
	IdentityID     int64    `json:"identity_id"`
	Roles          []string `json:"roles,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	SessionPurpose string   `json:"session_purpose,omitempty"`
	jwt.RegisteredClaims
}

// Inspect decodes the claims without verifying the signature.
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to decode access token: %w", err)
	}
	return claims, nil
}

// Expiry returns the exp claim of an access token, if it has one.
func Expiry(token string) (time.Time, bool) {
	claims, err := Inspect(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// HasRole checks if the claims contain a specific role
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
