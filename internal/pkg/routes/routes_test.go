package routes

import (
	"os"
	"path/filepath"
	"testing"

	"backoffice-console/internal/domain/permission"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	table, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "/login", table.LoginPath)
	assert.Equal(t, "/forbidden", table.ForbiddenPath)

	login, ok := table.Lookup("login")
	require.True(t, ok)
	assert.True(t, login.Public)

	reports, ok := table.Lookup("reports")
	require.True(t, ok)
	assert.Equal(t, permission.ModeAny, reports.Mode)
	assert.Equal(t, []permission.Key{"report:view", "order:view"}, reports.Permissions)

	products, _ := table.Lookup("products")
	assert.Equal(t, permission.ModeAll, products.Mode)

	_, ok = table.Lookup("missing")
	assert.False(t, ok)
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unguarded route": `
login_path: /login
forbidden_path: /forbidden
routes:
  - {name: open, path: /open}
`,
		"blank permissions only": `
login_path: /login
forbidden_path: /forbidden
routes:
  - {name: open, path: /open, permissions: ["  "]}
`,
		"public with permissions": `
login_path: /login
forbidden_path: /forbidden
routes:
  - {name: odd, path: /odd, public: true, permissions: [a:view]}
`,
		"relative login path": `
login_path: login
forbidden_path: /forbidden
`,
		"duplicate name": `
login_path: /login
forbidden_path: /forbidden
routes:
  - {name: a, path: /a, public: true}
  - {name: a, path: /b, public: true}
`,
		"unknown field": `
login_path: /login
forbidden_path: /forbidden
redirects: []
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
login_path: /signin
forbidden_path: /denied
routes:
  - name: catalog
    path: /catalog
    permissions: [" product:view "]
`), 0o600))

	table, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/signin", table.LoginPath)
	assert.Equal(t, []permission.Key{"product:view"}, table.Routes[0].Permissions)

	table, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "/login", table.LoginPath)

	_, err = Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
