// internal/service/permissiongroup/api.go
package permissiongroup

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"backoffice-console/internal/domain/permission"
	"backoffice-console/internal/httpclient"
	xerrors "backoffice-console/internal/pkg/errors"
	permsvc "backoffice-console/internal/service/permission"

	"go.uber.org/zap"
)

const basePath = "/permission-groups"

// API is the permission-group REST wrapper on the authenticated client.
type API struct {
	client *httpclient.Client
	logger *zap.Logger
}

func NewAPI(client *httpclient.Client, logger *zap.Logger) *API {
	return &API{client: client, logger: logger}
}

func (a *API) List(ctx context.Context) ([]permission.Group, error) {
	var groups []permission.Group
	if err := a.client.GetJSON(ctx, basePath, &groups); err != nil {
		return nil, fmt.Errorf("failed to list permission groups: %w", err)
	}
	return groups, nil
}

func (a *API) Get(ctx context.Context, id int64) (*permission.Group, error) {
	var group permission.Group
	if err := a.client.GetJSON(ctx, groupPath(id), &group); err != nil {
		return nil, notFound(fmt.Errorf("failed to get permission group %d: %w", id, err))
	}
	return &group, nil
}

func (a *API) Create(ctx context.Context, req permission.GroupRequest) (*permission.Group, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var group permission.Group
	if err := a.client.PostJSON(ctx, basePath, req, &group); err != nil {
		return nil, fmt.Errorf("failed to create permission group: %w", err)
	}

	a.logger.Info("permission group created", zap.Int64("group_id", group.ID), zap.String("name", group.Name))
	return &group, nil
}

func (a *API) Update(ctx context.Context, id int64, req permission.GroupRequest) (*permission.Group, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var group permission.Group
	if err := a.client.PutJSON(ctx, groupPath(id), req, &group); err != nil {
		return nil, notFound(fmt.Errorf("failed to update permission group %d: %w", id, err))
	}

	a.logger.Info("permission group updated", zap.Int64("group_id", id), zap.Int("permissions", len(req.PermissionIDs)))
	return &group, nil
}

func (a *API) Delete(ctx context.Context, id int64) error {
	if err := a.client.Delete(ctx, groupPath(id)); err != nil {
		return notFound(fmt.Errorf("failed to delete permission group %d: %w", id, err))
	}
	a.logger.Info("permission group deleted", zap.Int64("group_id", id))
	return nil
}

// Apply stores the editor's selection as the group's permissions, keeping name and description.
func (a *API) Apply(ctx context.Context, id int64, editor *permsvc.Editor) (*permission.Group, error) {
	current, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	return a.Update(ctx, id, permission.GroupRequest{
		Name:          current.Name,
		Description:   current.Description,
		PermissionIDs: editor.Keys(),
	})
}

// Editor opens an editor on the group's current selection.
func (a *API) Editor(ctx context.Context, id int64) (*permsvc.Editor, error) {
	group, err := a.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return permsvc.NewEditor(group.PermissionIDs...), nil
}

func groupPath(id int64) string {
	return basePath + "/" + strconv.FormatInt(id, 10)
}

func validate(req permission.GroupRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: group name is required", xerrors.ErrInvalidInput)
	}
	return nil
}

func notFound(err error) error {
	if httpclient.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: %w", xerrors.ErrNotFound, err)
	}
	return err
}
