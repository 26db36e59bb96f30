// internal/domain/permission/key.go
package permission

import (
	"sort"
	"strings"
)

const (
	// Separator splits a permission key into namespace segments.
	Separator = ":"

	// ViewAction is the last segment of a view permission.
	ViewAction = "view"

	// OtherSection is reported for keys that carry no usable namespace.
	OtherSection = "other"
)

// Key is a colon-delimited namespaced permission, e.g. "product:update".
type Key string

// Mode controls how a list of required keys is combined.
type Mode string

const (
	ModeAll Mode = "all"
	ModeAny Mode = "any"
)

// ParseMode maps user input to a Mode; anything other than "any" means all.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeAny)) {
		return ModeAny
	}
	return ModeAll
}

func (k Key) String() string { return string(k) }

// Segments returns the namespace segments of the key.
func (k Key) Segments() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), Separator)
}

// IsGlobal reports whether the key has exactly one segment.
func IsGlobal(k Key) bool {
	return k != "" && !strings.Contains(string(k), Separator)
}

// Section returns the first segment of the key, or OtherSection when the key is blank.
func Section(k Key) string {
	trimmed := strings.TrimSpace(string(k))
	if trimmed == "" {
		return OtherSection
	}
	first, _, _ := strings.Cut(trimmed, Separator)
	if first == "" {
		return OtherSection
	}
	return first
}

// IsView reports whether the last segment of the key is "view".
func IsView(k Key) bool {
	segments := k.Segments()
	if len(segments) == 0 {
		return false
	}
	return segments[len(segments)-1] == ViewAction
}

// ViewKey returns the view permission of a section.
func ViewKey(section string) Key {
	return Key(section + Separator + ViewAction)
}

// FallbackChain lists the key followed by each broader prefix, narrowest first.
// "a:b:c" yields ["a:b:c", "a:b", "a"].
func FallbackChain(k Key) []Key {
	segments := k.Segments()
	chain := make([]Key, 0, len(segments))
	for i := len(segments); i > 0; i-- {
		chain = append(chain, Key(strings.Join(segments[:i], Separator)))
	}
	return chain
}

// Set is an unordered collection of granted keys.
type Set map[Key]struct{}

// NewSet builds a set, ignoring blank keys.
func NewSet(keys ...Key) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		if k = Key(strings.TrimSpace(string(k))); k != "" {
			s[k] = struct{}{}
		}
	}
	return s
}

// Has reports exact membership.
func (s Set) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Keys returns the members sorted lexically.
func (s Set) Keys() []Key {
	keys := make([]Key, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Strings returns the sorted members as plain strings.
func (s Set) Strings() []string {
	keys := s.Keys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	c := make(Set, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

// Keys converts plain strings into keys.
func Keys(values ...string) []Key {
	keys := make([]Key, 0, len(values))
	for _, v := range values {
		keys = append(keys, Key(v))
	}
	return keys
}
