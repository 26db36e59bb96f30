// internal/service/permission/evaluator.go
package permission

import (
	"strings"

	"backoffice-console/internal/domain/permission"
)

// HasPermission normalizes the granted refs and checks the required keys.
// An empty required list is always satisfied.
func HasPermission(granted []permission.Ref, mode permission.Mode, required ...permission.Key) bool {
	return Allows(permission.Normalize(granted), mode, required...)
}

// Allows checks required keys against an already normalized set.
// ModeAny needs one satisfied key, every other mode needs all of them.
func Allows(granted permission.Set, mode permission.Mode, required ...permission.Key) bool {
	keys := compact(required)
	if len(keys) == 0 {
		return true
	}

	if mode == permission.ModeAny {
		for _, k := range keys {
			if Satisfied(granted, k) {
				return true
			}
		}
		return false
	}

	for _, k := range keys {
		if !Satisfied(granted, k) {
			return false
		}
	}
	return true
}

// Satisfied walks the fallback chain of k; the first granted prefix wins.
func Satisfied(granted permission.Set, k permission.Key) bool {
	for _, candidate := range permission.FallbackChain(k) {
		if granted.Has(candidate) {
			return true
		}
	}
	return false
}

func compact(keys []permission.Key) []permission.Key {
	out := make([]permission.Key, 0, len(keys))
	for _, k := range keys {
		if k = permission.Key(strings.TrimSpace(string(k))); k != "" {
			out = append(out, k)
		}
	}
	return out
}
