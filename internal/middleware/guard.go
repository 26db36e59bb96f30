// internal/middleware/guard.go
package middleware

import (
	"net/http"

	"backoffice-console/internal/domain/permission"
	"backoffice-console/internal/pkg/response"
	"backoffice-console/internal/pkg/routes"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionView is the read side of the operator session the guard checks.
type SessionView interface {
	IsLoading() bool
	IsAuthenticated() bool
	HasPermission(mode permission.Mode, keys ...permission.Key) bool
}

// Guard protects console pages and API routes.
type Guard struct {
	session SessionView
	table   *routes.Table
	logger  *zap.Logger
}

func NewGuard(session SessionView, table *routes.Table, logger *zap.Logger) *Guard {
	return &Guard{
		session: session,
		table:   table,
		logger:  logger,
	}
}

// RequireSession lets authenticated requests through. Pages are redirected to
// the login page with the original location preserved; API calls get 401.
func (g *Guard) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.session.IsLoading() {
			c.Header("Retry-After", "1")
			response.Error(c, http.StatusServiceUnavailable, "session is loading", nil)
			return
		}

		if g.session.IsAuthenticated() {
			c.Next()
			return
		}

		if IsAPIRequest(c) {
			response.Unauthorized(c, "authentication required")
			return
		}
		c.Redirect(http.StatusFound, LoginURL(g.table.LoginPath, c.Request.URL.RequestURI()))
		c.Abort()
	}
}

// RequirePermission checks the granted permissions. Must run after RequireSession.
func (g *Guard) RequirePermission(mode permission.Mode, keys ...permission.Key) gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.session.HasPermission(mode, keys...) {
			c.Next()
			return
		}

		g.logger.Info("permission denied",
			zap.String("path", c.FullPath()),
			zap.Any("required", keys),
			zap.String("mode", string(mode)),
		)

		if IsAPIRequest(c) {
			response.Error(c, http.StatusForbidden, "insufficient permissions", nil, map[string]any{
				"required_permissions": keys,
				"mode":                 mode,
			})
			return
		}
		c.Redirect(http.StatusFound, g.table.ForbiddenPath)
		c.Abort()
	}
}

// Route returns the middleware chain for a route table entry.
func (g *Guard) Route(r routes.Route) []gin.HandlerFunc {
	if r.Public {
		return nil
	}
	return []gin.HandlerFunc{
		g.RequireSession(),
		g.RequirePermission(r.Mode, r.Permissions...),
	}
}
