// internal/handlers/session/session_handler.go
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"backoffice-console/internal/domain/auth"
	"backoffice-console/internal/domain/permission"
	"backoffice-console/internal/middleware"
	xerrors "backoffice-console/internal/pkg/errors"
	"backoffice-console/internal/pkg/response"
	sessionsvc "backoffice-console/internal/service/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Service is the part of the session coordinator the handler drives.
type Service interface {
	Snapshot() sessionsvc.Snapshot
	Login(ctx context.Context, creds auth.Credentials) error
	Logout()
	RefreshSession(ctx context.Context, override string) (string, error)
	SyncPermissions(ctx context.Context) error
	HasPermission(mode permission.Mode, keys ...permission.Key) bool
}

type SessionHandler struct {
	session  Service
	homePath string
	logger   *zap.Logger
}

func NewSessionHandler(session Service, homePath string, logger *zap.Logger) *SessionHandler {
	if homePath == "" {
		homePath = "/"
	}
	return &SessionHandler{
		session:  session,
		homePath: homePath,
		logger:   logger,
	}
}

type loginRequest struct {
	auth.Credentials
	Redirect string `json:"redirect" form:"redirect"`
}

type loginResponse struct {
	Session  sessionsvc.Snapshot `json:"session"`
	Redirect string              `json:"redirect"`
}

// Get returns the current session snapshot.
func (h *SessionHandler) Get(c *gin.Context) {
	response.Success(c, http.StatusOK, "session", h.session.Snapshot())
}

// Login signs the operator in and tells the caller where to go next.
func (h *SessionHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.ValidationError(c, "username and password are required", nil)
		return
	}
	if req.Redirect == "" {
		req.Redirect = c.Query("redirect")
	}

	if err := h.session.Login(c.Request.Context(), req.Credentials); err != nil {
		if errors.Is(err, xerrors.ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, "invalid username or password", nil)
			return
		}
		h.logger.Error("login failed", zap.String("username", req.Username), zap.Error(err))
		response.FromError(c, "login failed", err)
		return
	}

	response.Success(c, http.StatusOK, "login successful", loginResponse{
		Session:  h.session.Snapshot(),
		Redirect: middleware.SafeRedirect(req.Redirect, h.homePath),
	})
}

// Logout ends the session. It always succeeds.
func (h *SessionHandler) Logout(c *gin.Context) {
	h.session.Logout()
	response.Success(c, http.StatusOK, "logout successful", h.session.Snapshot())
}

// Refresh renews the access token. A rejected refresh ends the session.
func (h *SessionHandler) Refresh(c *gin.Context) {
	if _, err := h.session.RefreshSession(c.Request.Context(), ""); err != nil {
		response.FromError(c, "session refresh failed", err)
		return
	}
	response.Success(c, http.StatusOK, "session refreshed", h.session.Snapshot())
}

// SyncPermissions reloads the operator's permissions.
func (h *SessionHandler) SyncPermissions(c *gin.Context) {
	if err := h.session.SyncPermissions(c.Request.Context()); err != nil {
		response.FromError(c, "permission sync failed", err)
		return
	}
	response.Success(c, http.StatusOK, "permissions synced", h.session.Snapshot())
}

// Check answers whether the session holds the given permissions.
// ?permissions=a,b&permissions=c&mode=any
func (h *SessionHandler) Check(c *gin.Context) {
	var keys []permission.Key
	for _, raw := range c.QueryArray("permissions") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				keys = append(keys, permission.Key(part))
			}
		}
	}
	mode := permission.ParseMode(c.Query("mode"))

	response.Success(c, http.StatusOK, "permission check", gin.H{
		"allowed":     h.session.HasPermission(mode, keys...),
		"mode":        mode,
		"permissions": keys,
	})
}
