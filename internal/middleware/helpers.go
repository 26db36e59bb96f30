// internal/middleware/helpers.go
package middleware

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// IsAPIRequest reports whether the caller expects JSON rather than a page.
func IsAPIRequest(c *gin.Context) bool {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		return true
	}
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}

// LoginURL builds the login location that returns to target after sign-in.
func LoginURL(loginPath, target string) string {
	if !IsSafeRedirect(target) || target == loginPath {
		return loginPath
	}
	return loginPath + "?redirect=" + url.QueryEscape(target)
}

// IsSafeRedirect accepts only same-origin relative paths.
func IsSafeRedirect(target string) bool {
	if target == "" || !strings.HasPrefix(target, "/") {
		return false
	}
	// "//host" and "/\host" are treated as absolute by browsers.
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}

// SafeRedirect returns target when it is safe, fallback otherwise.
func SafeRedirect(target, fallback string) string {
	if IsSafeRedirect(target) {
		return target
	}
	return fallback
}
