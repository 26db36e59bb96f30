// internal/handlers/permissiongroup/permission_group_handler.go
package permissiongroup

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"backoffice-console/internal/domain/permission"
	"backoffice-console/internal/pkg/response"
	permsvc "backoffice-console/internal/service/permission"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Service is the permission-group API the handler talks to.
type Service interface {
	List(ctx context.Context) ([]permission.Group, error)
	Get(ctx context.Context, id int64) (*permission.Group, error)
	Create(ctx context.Context, req permission.GroupRequest) (*permission.Group, error)
	Update(ctx context.Context, id int64, req permission.GroupRequest) (*permission.Group, error)
	Delete(ctx context.Context, id int64) error
	Apply(ctx context.Context, id int64, editor *permsvc.Editor) (*permission.Group, error)
	Editor(ctx context.Context, id int64) (*permsvc.Editor, error)
}

type PermissionGroupHandler struct {
	groups Service
	logger *zap.Logger
}

func NewPermissionGroupHandler(groups Service, logger *zap.Logger) *PermissionGroupHandler {
	return &PermissionGroupHandler{
		groups: groups,
		logger: logger,
	}
}

// EditorRequest toggles one key against a selection. Catalog lists the keys to
// describe in the answer; the selection is described when it is empty.
type EditorRequest struct {
	Selected []permission.Key `json:"selected"`
	Toggle   permission.Key   `json:"toggle" binding:"required"`
	Catalog  []permission.Key `json:"catalog"`
}

// EditorState is the selection after a toggle plus how each key renders.
type EditorState struct {
	Selected []permission.Key         `json:"selected"`
	Entries  []permission.EditorEntry `json:"entries"`
}

type applyRequest struct {
	PermissionIDs []permission.Key `json:"permission_ids"`
}

// ========== Editor ==========

// Toggle applies the section rules to one key. A rejected deselect answers 409
// with the unchanged selection.
func (h *PermissionGroupHandler) Toggle(c *gin.Context) {
	var req EditorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid editor request", err)
		return
	}

	editor := permsvc.NewEditor(req.Selected...)
	err := editor.Toggle(req.Toggle)
	state := describe(editor, req.Catalog)

	switch {
	case errors.Is(err, permsvc.ErrViewRequired), errors.Is(err, permsvc.ErrLocked):
		response.Conflict(c, "permission cannot be removed", err, state)
	case err != nil:
		response.Error(c, http.StatusInternalServerError, "editor failed", err)
	default:
		response.Success(c, http.StatusOK, "selection updated", state)
	}
}

// EditorFor describes a stored group's selection.
func (h *PermissionGroupHandler) EditorFor(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	editor, err := h.groups.Editor(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "failed to load permission group", err)
		return
	}

	var catalog []permission.Key
	for _, k := range c.QueryArray("catalog") {
		catalog = append(catalog, permission.Key(k))
	}
	response.Success(c, http.StatusOK, "permission group editor", describe(editor, catalog))
}

// ApplyPermissions replaces a group's permissions with the given selection.
func (h *PermissionGroupHandler) ApplyPermissions(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}

	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	group, err := h.groups.Apply(c.Request.Context(), id, permsvc.NewEditor(req.PermissionIDs...))
	if err != nil {
		h.logger.Error("failed to apply permission group selection", zap.Int64("group_id", id), zap.Error(err))
		response.FromError(c, "failed to update permission group", err)
		return
	}

	response.Success(c, http.StatusOK, "permission group updated", group)
}

// ========== CRUD ==========

func (h *PermissionGroupHandler) List(c *gin.Context) {
	groups, err := h.groups.List(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to list permission groups", err)
		return
	}
	response.Success(c, http.StatusOK, "permission groups", groups)
}

func (h *PermissionGroupHandler) Get(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}
	group, err := h.groups.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "failed to get permission group", err)
		return
	}
	response.Success(c, http.StatusOK, "permission group", group)
}

func (h *PermissionGroupHandler) Create(c *gin.Context) {
	var req permission.GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}
	group, err := h.groups.Create(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, "failed to create permission group", err)
		return
	}
	response.Success(c, http.StatusCreated, "permission group created", group)
}

func (h *PermissionGroupHandler) Update(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}
	var req permission.GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}
	group, err := h.groups.Update(c.Request.Context(), id, req)
	if err != nil {
		response.FromError(c, "failed to update permission group", err)
		return
	}
	response.Success(c, http.StatusOK, "permission group updated", group)
}

func (h *PermissionGroupHandler) Delete(c *gin.Context) {
	id, ok := groupID(c)
	if !ok {
		return
	}
	if err := h.groups.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, "failed to delete permission group", err)
		return
	}
	response.Success(c, http.StatusOK, "permission group deleted", nil)
}

func groupID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.ValidationError(c, "invalid permission group id", nil)
		return 0, false
	}
	return id, true
}

func describe(editor *permsvc.Editor, catalog []permission.Key) EditorState {
	selected := editor.Keys()
	if len(catalog) == 0 {
		catalog = selected
	}
	return EditorState{
		Selected: selected,
		Entries:  editor.Entries(catalog),
	}
}
