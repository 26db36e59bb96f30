// internal/domain/permission/group.go
package permission

import "time"

// Group bundles permission keys for bulk assignment. Groups never contain groups.
type Group struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	PermissionIDs []Key     `json:"permission_ids"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

// GroupRequest is the payload for creating or updating a group.
type GroupRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	PermissionIDs []Key  `json:"permission_ids"`
}

// EditorEntry describes how one key renders in the group editor.
type EditorEntry struct {
	Key     Key    `json:"key"`
	Section string `json:"section"`
	Checked bool   `json:"checked"`
	Locked  bool   `json:"locked"`
}
