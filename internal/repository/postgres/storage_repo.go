// internal/repository/postgres/storage_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice-console/internal/pkg/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

const DefaultStorageTable = "console_storage"

// StorageRepository implements storage.Storage on a Postgres table.
// Expired rows read as absent and are purged on write.
type StorageRepository struct {
	db    *pgxpool.Pool
	table string
}

// NewStorageRepository binds the repository to table (quoted, so any name is safe).
func NewStorageRepository(db *pgxpool.Pool, table string) *StorageRepository {
	if table == "" {
		table = DefaultStorageTable
	}
	return &StorageRepository{db: db, table: pq.QuoteIdentifier(table)}
}

// EnsureSchema creates the table when missing.
func (r *StorageRepository) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name       TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			expires_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, r.table)

	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create storage table: %w", err)
	}
	return nil
}

// Set upserts a value.
func (r *StorageRepository) Set(ctx context.Context, name, value string, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl).UTC()
		expiresAt = &t
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (name, value, expires_at, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name) DO UPDATE
		SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = NOW()
	`, r.table)

	if _, err := r.db.Exec(ctx, query, name, value, expiresAt); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}

	purge := fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= NOW()`, r.table)
	if _, err := r.db.Exec(ctx, purge); err != nil {
		return fmt.Errorf("failed to purge expired entries: %w", err)
	}
	return nil
}

// Get returns storage.ErrNotFound for missing or expired rows.
func (r *StorageRepository) Get(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf(`
		SELECT value FROM %s
		WHERE name = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`, r.table)

	var value string
	err := r.db.QueryRow(ctx, query, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}
	return value, nil
}

// Remove deletes a value; removing a missing name is not an error.
func (r *StorageRepository) Remove(ctx context.Context, name string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, r.table)
	if _, err := r.db.Exec(ctx, query, name); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

var _ storage.Storage = (*StorageRepository)(nil)
