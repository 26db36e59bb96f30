package permissiongroup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backoffice-console/internal/domain/permission"
	xerrors "backoffice-console/internal/pkg/errors"
	permsvc "backoffice-console/internal/service/permission"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() { gin.SetMode(gin.TestMode) }

type memGroups struct {
	groups map[int64]*permission.Group
	nextID int64
}

func newMemGroups(seed ...permission.Group) *memGroups {
	m := &memGroups{groups: map[int64]*permission.Group{}}
	for i := range seed {
		g := seed[i]
		m.groups[g.ID] = &g
		m.nextID = max(m.nextID, g.ID)
	}
	return m
}

func (m *memGroups) List(context.Context) ([]permission.Group, error) {
	out := make([]permission.Group, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (m *memGroups) Get(_ context.Context, id int64) (*permission.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %d: %w", id, xerrors.ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

func (m *memGroups) Create(_ context.Context, req permission.GroupRequest) (*permission.Group, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: group name is required", xerrors.ErrInvalidInput)
	}
	m.nextID++
	g := &permission.Group{ID: m.nextID, Name: req.Name, Description: req.Description, PermissionIDs: req.PermissionIDs}
	m.groups[g.ID] = g
	return g, nil
}

func (m *memGroups) Update(_ context.Context, id int64, req permission.GroupRequest) (*permission.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	g.Name, g.Description, g.PermissionIDs = req.Name, req.Description, req.PermissionIDs
	return g, nil
}

func (m *memGroups) Delete(_ context.Context, id int64) error {
	if _, ok := m.groups[id]; !ok {
		return xerrors.ErrNotFound
	}
	delete(m.groups, id)
	return nil
}

func (m *memGroups) Apply(ctx context.Context, id int64, editor *permsvc.Editor) (*permission.Group, error) {
	g, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Update(ctx, id, permission.GroupRequest{Name: g.Name, Description: g.Description, PermissionIDs: editor.Keys()})
}

func (m *memGroups) Editor(ctx context.Context, id int64) (*permsvc.Editor, error) {
	g, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return permsvc.NewEditor(g.PermissionIDs...), nil
}

func newRouter(t *testing.T, groups Service) *gin.Engine {
	t.Helper()
	h := NewPermissionGroupHandler(groups, zaptest.NewLogger(t))
	r := gin.New()
	g := r.Group("/api/permission-groups")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.POST("/editor", h.Toggle)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.GET("/:id/editor", h.EditorFor)
	g.PUT("/:id/permissions", h.ApplyPermissions)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func call(t *testing.T, r *gin.Engine, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestToggle_SelectActionPullsInView(t *testing.T) {
	t.Parallel()
	r := newRouter(t, newMemGroups())

	code, env := call(t, r, http.MethodPost, "/api/permission-groups/editor",
		`{"selected":["order:view"],"toggle":"product:update"}`)
	require.Equal(t, http.StatusOK, code)

	var state EditorState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, []permission.Key{"order:view", "product:update", "product:view"}, state.Selected)
}

func TestToggle_LockedKeyConflicts(t *testing.T) {
	t.Parallel()
	r := newRouter(t, newMemGroups())

	code, env := call(t, r, http.MethodPost, "/api/permission-groups/editor",
		`{"selected":["product"],"toggle":"product:view","catalog":["product","product:view","order:view"]}`)
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, permsvc.ErrLocked.Error(), env.Error)

	var state EditorState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	assert.Equal(t, []permission.Key{"product"}, state.Selected)
	require.Len(t, state.Entries, 3)
	assert.Equal(t, permission.EditorEntry{Key: "product:view", Section: "product", Checked: true, Locked: true}, state.Entries[1])
	assert.False(t, state.Entries[2].Checked)
}

func TestToggle_ViewRequiredConflicts(t *testing.T) {
	t.Parallel()
	r := newRouter(t, newMemGroups())

	code, env := call(t, r, http.MethodPost, "/api/permission-groups/editor",
		`{"selected":["order:view","order:refund"],"toggle":"order:view"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, permsvc.ErrViewRequired.Error(), env.Error)

	code, _ = call(t, r, http.MethodPost, "/api/permission-groups/editor", `{"selected":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestApplyPermissions(t *testing.T) {
	t.Parallel()
	groups := newMemGroups(permission.Group{ID: 7, Name: "support", Description: "tier 1", PermissionIDs: []permission.Key{"order:view"}})
	r := newRouter(t, groups)

	code, env := call(t, r, http.MethodPut, "/api/permission-groups/7/permissions",
		`{"permission_ids":["order:view","order:refund"]}`)
	require.Equal(t, http.StatusOK, code)

	var group permission.Group
	require.NoError(t, json.Unmarshal(env.Data, &group))
	assert.Equal(t, "support", group.Name)
	assert.Equal(t, "tier 1", group.Description)
	assert.Equal(t, []permission.Key{"order:refund", "order:view"}, group.PermissionIDs)

	code, _ = call(t, r, http.MethodPut, "/api/permission-groups/99/permissions", `{"permission_ids":[]}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, r, http.MethodPut, "/api/permission-groups/abc/permissions", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestEditorFor(t *testing.T) {
	t.Parallel()
	r := newRouter(t, newMemGroups(permission.Group{ID: 3, Name: "catalog", PermissionIDs: []permission.Key{"product"}}))

	code, env := call(t, r, http.MethodGet, "/api/permission-groups/3/editor?catalog=product:update", "")
	require.Equal(t, http.StatusOK, code)

	var state EditorState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	require.Len(t, state.Entries, 1)
	assert.True(t, state.Entries[0].Locked)
}

func TestCRUD(t *testing.T) {
	t.Parallel()
	r := newRouter(t, newMemGroups())

	code, _ := call(t, r, http.MethodPost, "/api/permission-groups", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := call(t, r, http.MethodPost, "/api/permission-groups", `{"name":"ops","permission_ids":["report:view"]}`)
	require.Equal(t, http.StatusCreated, code)
	var created permission.Group
	require.NoError(t, json.Unmarshal(env.Data, &created))

	path := fmt.Sprintf("/api/permission-groups/%d", created.ID)
	code, _ = call(t, r, http.MethodPut, path, `{"name":"ops-renamed"}`)
	assert.Equal(t, http.StatusOK, code)

	code, env = call(t, r, http.MethodGet, "/api/permission-groups", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "ops-renamed")

	code, _ = call(t, r, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, r, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, code)
}
