// internal/domain/permission/ref.go
package permission

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is a permission as the user service describes it.
type Record struct {
	ID          json.RawMessage `json:"id,omitempty"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
}

type refKind uint8

const (
	refEmpty refKind = iota
	refName
	refRecord
)

// Ref is either a bare permission name or a permission record.
// The zero value carries no permission.
type Ref struct {
	kind   refKind
	name   string
	record Record
}

// NameRef wraps a bare permission name.
func NameRef(name string) Ref {
	return Ref{kind: refName, name: name}
}

// RecordRef wraps a permission record.
func RecordRef(r Record) Ref {
	return Ref{kind: refRecord, record: r}
}

// Refs wraps bare names.
func Refs(names ...string) []Ref {
	refs := make([]Ref, len(names))
	for i, n := range names {
		refs[i] = NameRef(n)
	}
	return refs
}

// Key resolves the permission key; ok is false when the ref yields no name.
func (r Ref) Key() (Key, bool) {
	var name string
	switch r.kind {
	case refName:
		name = r.name
	case refRecord:
		name = r.record.Name
	default:
		return "", false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	return Key(name), true
}

// Record returns the wrapped record, if any.
func (r Ref) Record() (Record, bool) {
	return r.record, r.kind == refRecord
}

// UnmarshalJSON accepts a JSON string or an object with a "name" field.
// Any other JSON value decodes into an empty ref.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*r = Ref{}
		return nil
	}
	switch data[0] {
	case '"':
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return fmt.Errorf("failed to decode permission name: %w", err)
		}
		*r = NameRef(name)
	case '{':
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to decode permission record: %w", err)
		}
		*r = RecordRef(rec)
	default:
		*r = Ref{}
	}
	return nil
}

// MarshalJSON writes names as strings and records as objects.
func (r Ref) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case refName:
		return json.Marshal(r.name)
	case refRecord:
		return json.Marshal(r.record)
	default:
		return []byte("null"), nil
	}
}

// Normalize collapses refs into a set of keys, dropping refs without a name.
func Normalize(refs []Ref) Set {
	set := make(Set, len(refs))
	for _, ref := range refs {
		if k, ok := ref.Key(); ok {
			set[k] = struct{}{}
		}
	}
	return set
}
