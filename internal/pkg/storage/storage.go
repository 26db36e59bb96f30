// internal/pkg/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a name is absent or expired.
var ErrNotFound = errors.New("storage entry not found")

// Storage is durable client storage for small named values.
// A ttl of zero or less keeps the value until it is removed.
type Storage interface {
	Set(ctx context.Context, name, value string, ttl time.Duration) error
	Get(ctx context.Context, name string) (string, error)
	Remove(ctx context.Context, name string) error
}

// Days converts a cookie-style lifetime in days to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
