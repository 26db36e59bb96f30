// internal/pkg/routes/routes.go
package routes

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"backoffice-console/internal/domain/permission"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultTable []byte

// Route is one guarded console page.
type Route struct {
	Name        string           `yaml:"name"`
	Path        string           `yaml:"path"`
	Permissions []permission.Key `yaml:"permissions"`
	Mode        permission.Mode  `yaml:"mode"`
	// Public routes skip the session check. A route must be public or list permissions.
	Public bool `yaml:"public"`
}

// Table is the console route table.
type Table struct {
	LoginPath     string  `yaml:"login_path"`
	ForbiddenPath string  `yaml:"forbidden_path"`
	Routes        []Route `yaml:"routes"`
}

// Default returns the built-in route table.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// Load reads a route table from path, or the built-in one when path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route table: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML route table. Unknown fields are rejected.
func Parse(data []byte) (*Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var t Table
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal route table: %w", err)
	}
	if err := t.normalize(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Table) normalize() error {
	if !strings.HasPrefix(t.LoginPath, "/") {
		return fmt.Errorf("login_path must be an absolute path, got %q", t.LoginPath)
	}
	if !strings.HasPrefix(t.ForbiddenPath, "/") {
		return fmt.Errorf("forbidden_path must be an absolute path, got %q", t.ForbiddenPath)
	}

	names := make(map[string]struct{}, len(t.Routes))
	paths := make(map[string]struct{}, len(t.Routes))

	for i := range t.Routes {
		r := &t.Routes[i]
		r.Name = strings.TrimSpace(r.Name)
		r.Path = strings.TrimSpace(r.Path)
		r.Mode = permission.ParseMode(string(r.Mode))

		keys := r.Permissions[:0]
		for _, k := range r.Permissions {
			if k = permission.Key(strings.TrimSpace(string(k))); k != "" {
				keys = append(keys, k)
			}
		}
		r.Permissions = keys

		switch {
		case r.Name == "":
			return fmt.Errorf("route %d: name is required", i)
		case !strings.HasPrefix(r.Path, "/"):
			return fmt.Errorf("route %q: path must be absolute", r.Name)
		case r.Public && len(r.Permissions) > 0:
			return fmt.Errorf("route %q: public routes cannot require permissions", r.Name)
		case !r.Public && len(r.Permissions) == 0:
			return fmt.Errorf("route %q: must be public or require permissions", r.Name)
		}

		if _, dup := names[r.Name]; dup {
			return fmt.Errorf("route %q: duplicate name", r.Name)
		}
		if _, dup := paths[r.Path]; dup {
			return fmt.Errorf("route %q: duplicate path %s", r.Name, r.Path)
		}
		names[r.Name] = struct{}{}
		paths[r.Path] = struct{}{}
	}
	return nil
}

// Lookup finds a route by name.
func (t *Table) Lookup(name string) (Route, bool) {
	for _, r := range t.Routes {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}
