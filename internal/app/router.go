// internal/app/router.go
package app

import (
	"net/http"

	"backoffice-console/internal/domain/permission"
	eventsHandler "backoffice-console/internal/handlers/events"
	groupHandler "backoffice-console/internal/handlers/permissiongroup"
	proxyHandler "backoffice-console/internal/handlers/proxy"
	sessionHandler "backoffice-console/internal/handlers/session"
	"backoffice-console/internal/middleware"
	"backoffice-console/internal/pkg/routes"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	SessionHandler *sessionHandler.SessionHandler
	GroupHandler   *groupHandler.PermissionGroupHandler
	CatalogProxy   *proxyHandler.ProxyHandler
	UsersProxy     *proxyHandler.ProxyHandler
	SessionEvents  *eventsHandler.SessionEventsHandler
	Guard          *middleware.Guard
	Routes         *routes.Table
}

// permission keys guarding the console API
var (
	groupView   = []permission.Key{"permission_group:view"}
	groupCreate = []permission.Key{"permission_group:create"}
	groupUpdate = []permission.Key{"permission_group:update"}
	groupDelete = []permission.Key{"permission_group:delete"}
	groupEdit   = []permission.Key{"permission_group:create", "permission_group:update"}
	catalogView = []permission.Key{"product:view"}
	usersView   = []permission.Key{"user:view"}
)

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api")
	guard := h.Guard

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"session_streams": h.SessionEvents.Active(),
		})
	})

	// ==================== Session ====================
	sessionPublic := api.Group("/session")
	{
		sessionPublic.GET("", h.SessionHandler.Get)
		sessionPublic.POST("/login", h.SessionHandler.Login)
		sessionPublic.POST("/logout", h.SessionHandler.Logout)
		sessionPublic.GET("/events", h.SessionEvents.Stream)
	}

	sessionProtected := api.Group("/session")
	sessionProtected.Use(guard.RequireSession())
	{
		sessionProtected.POST("/refresh", h.SessionHandler.Refresh)
		sessionProtected.POST("/permissions/sync", h.SessionHandler.SyncPermissions)
		sessionProtected.GET("/check", h.SessionHandler.Check)
	}

	// ==================== Permission Groups ====================
	groups := api.Group("/permission-groups")
	groups.Use(guard.RequireSession())
	{
		groups.GET("", guard.RequirePermission(permission.ModeAll, groupView...), h.GroupHandler.List)
		groups.POST("", guard.RequirePermission(permission.ModeAll, groupCreate...), h.GroupHandler.Create)
		groups.POST("/editor", guard.RequirePermission(permission.ModeAny, groupEdit...), h.GroupHandler.Toggle)
		groups.GET("/:id", guard.RequirePermission(permission.ModeAll, groupView...), h.GroupHandler.Get)
		groups.GET("/:id/editor", guard.RequirePermission(permission.ModeAll, groupView...), h.GroupHandler.EditorFor)
		groups.PUT("/:id", guard.RequirePermission(permission.ModeAll, groupUpdate...), h.GroupHandler.Update)
		groups.PUT("/:id/permissions", guard.RequirePermission(permission.ModeAll, groupUpdate...), h.GroupHandler.ApplyPermissions)
		groups.DELETE("/:id", guard.RequirePermission(permission.ModeAll, groupDelete...), h.GroupHandler.Delete)
	}

	// ==================== Backend Proxy ====================
	api.Any("/catalog/*path", guard.RequireSession(), guard.RequirePermission(permission.ModeAll, catalogView...), h.CatalogProxy.Forward)
	api.Any("/users/*path", guard.RequireSession(), guard.RequirePermission(permission.ModeAll, usersView...), h.UsersProxy.Forward)

	// ==================== Console Pages ====================
	for _, route := range h.Routes.Routes {
		handlers := append(guard.Route(route), page(route))
		r.GET(route.Path, handlers...)
	}

	logger.Info("router ready", zap.Int("pages", len(h.Routes.Routes)))
}

// page answers a guarded console page. Rendering belongs to the front end.
func page(route routes.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"page":        route.Name,
			"path":        c.Request.URL.Path,
			"permissions": route.Permissions,
		})
	}
}
