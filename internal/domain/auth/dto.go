// internal/domain/auth/dto.go
package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Credentials for the login endpoint. Never log the password.
type Credentials struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// String redacts the password so credentials are safe in %v output.
func (c Credentials) String() string {
	return fmt.Sprintf("{username:%s password:[redacted]}", c.Username)
}

// TokenResponse is the payload of login and refresh.
type TokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    Timestamp `json:"expires_at"`
}

// millisThreshold separates unix seconds from unix milliseconds.
// 1e12 seconds is far past year 33000, 1e12 ms is September 2001.
const millisThreshold = 1_000_000_000_000

// Timestamp decodes unix seconds, unix milliseconds, RFC3339 strings, or null.
type Timestamp struct {
	time.Time
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid expires_at: %w", err)
		}
		return ts.parseString(s)
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid expires_at: %w", err)
	}
	return ts.parseNumber(string(n))
}

func (ts *Timestamp) parseString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		ts.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		ts.Time = t
		return nil
	}
	return ts.parseNumber(s)
}

func (ts *Timestamp) parseNumber(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid expires_at %q: %w", s, err)
	}
	n := int64(f)
	if n >= millisThreshold {
		ts.Time = time.UnixMilli(n)
	} else {
		ts.Time = time.Unix(n, 0)
	}
	return nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Unix())
}
