// internal/service/permission/editor.go
package permission

import (
	"errors"
	"strings"

	"backoffice-console/internal/domain/permission"
)

var (
	// ErrViewRequired rejects removing a view key while sibling keys stay selected.
	ErrViewRequired = errors.New("view permission is required by other selected permissions in the section")

	// ErrLocked rejects removing a key implied by the section's global key.
	ErrLocked = errors.New("permission is implied by the section's global permission")
)

// Editor applies the permission-group selection rules:
//   - a global key replaces everything else selected in its section;
//   - any other key drops the section's global key and pulls in the section's view key;
//   - a view key cannot be removed while non-view siblings remain;
//   - keys implied by a selected global key are locked.
type Editor struct {
	selected permission.Set
}

// NewEditor starts from an existing selection, taken as-is.
func NewEditor(keys ...permission.Key) *Editor {
	return &Editor{selected: permission.NewSet(keys...)}
}

// Select adds k following the section rules.
func (e *Editor) Select(k permission.Key) {
	k = permission.Key(strings.TrimSpace(string(k)))
	if k == "" {
		return
	}
	section := permission.Section(k)

	if permission.IsGlobal(k) {
		for existing := range e.selected {
			if permission.Section(existing) == section {
				delete(e.selected, existing)
			}
		}
		e.selected[k] = struct{}{}
		return
	}

	delete(e.selected, permission.Key(section))
	e.selected[k] = struct{}{}

	if !permission.IsView(k) {
		e.selected[permission.ViewKey(section)] = struct{}{}
	}
}

// Deselect removes k, or returns ErrLocked / ErrViewRequired when the rules forbid it.
// Removing a key that is not checked is a no-op.
func (e *Editor) Deselect(k permission.Key) error {
	k = permission.Key(strings.TrimSpace(string(k)))
	if !e.Checked(k) {
		return nil
	}
	if e.Locked(k) {
		return ErrLocked
	}
	if permission.IsView(k) && e.hasActionSibling(k) {
		return ErrViewRequired
	}
	delete(e.selected, k)
	return nil
}

// Toggle flips k.
func (e *Editor) Toggle(k permission.Key) error {
	if e.Checked(k) {
		return e.Deselect(k)
	}
	e.Select(k)
	return nil
}

// Checked reports whether k is selected or implied by its section's global key.
func (e *Editor) Checked(k permission.Key) bool {
	return e.selected.Has(k) || e.Locked(k)
}

// Locked reports whether k is implied by a selected global key of its section.
func (e *Editor) Locked(k permission.Key) bool {
	if k == "" || permission.IsGlobal(k) {
		return false
	}
	return e.selected.Has(permission.Key(permission.Section(k)))
}

// Entry describes k for rendering.
func (e *Editor) Entry(k permission.Key) permission.EditorEntry {
	return permission.EditorEntry{
		Key:     k,
		Section: permission.Section(k),
		Checked: e.Checked(k),
		Locked:  e.Locked(k),
	}
}

// Entries describes every key of a catalog, in the given order.
func (e *Editor) Entries(catalog []permission.Key) []permission.EditorEntry {
	entries := make([]permission.EditorEntry, 0, len(catalog))
	for _, k := range catalog {
		entries = append(entries, e.Entry(k))
	}
	return entries
}

// Keys returns the explicit selection, sorted.
func (e *Editor) Keys() []permission.Key {
	return e.selected.Keys()
}

func (e *Editor) hasActionSibling(view permission.Key) bool {
	section := permission.Section(view)
	for existing := range e.selected {
		if existing == view || permission.IsView(existing) {
			continue
		}
		if permission.Section(existing) == section {
			return true
		}
	}
	return false
}
