// internal/pkg/session/token_store.go
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"backoffice-console/internal/pkg/storage"

	"go.uber.org/zap"
)

const storageTimeout = 5 * time.Second

// TokenStore holds the access token in memory and the refresh token in durable storage.
// Every method is total: storage failures are logged and read as "absent".
type TokenStore struct {
	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time

	storage    storage.Storage
	refreshTTL time.Duration
	logger     *zap.Logger
}

func NewTokenStore(store storage.Storage, refreshTTL time.Duration, logger *zap.Logger) *TokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenStore{
		storage:    store,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// Set overwrites the access token and expiry. The refresh token is persisted only when present.
func (s *TokenStore) Set(t Tokens) {
	s.SetAccess(t.AccessToken, t.ExpiresAt)
	s.PersistRefresh(t.RefreshToken)
}

// Clear forgets the access token and removes the persisted refresh token.
func (s *TokenStore) Clear() {
	s.ClearAccess()
	s.RemoveRefresh()
}

// SetAccess swaps the in-memory half only. It never touches storage.
func (s *TokenStore) SetAccess(accessToken string, expiresAt time.Time) {
	s.mu.Lock()
	s.accessToken = accessToken
	s.expiresAt = expiresAt
	s.mu.Unlock()
}

func (s *TokenStore) ClearAccess() {
	s.SetAccess("", time.Time{})
}

// PersistRefresh writes the refresh token to storage. Empty tokens are ignored.
func (s *TokenStore) PersistRefresh(refreshToken string) {
	if refreshToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if err := s.storage.Set(ctx, RefreshTokenKey, refreshToken, s.refreshTTL); err != nil {
		s.logger.Warn("failed to persist refresh token", zap.Error(err))
	}
}

func (s *TokenStore) RemoveRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	if err := s.storage.Remove(ctx, RefreshTokenKey); err != nil {
		s.logger.Warn("failed to remove refresh token", zap.Error(err))
	}
}

func (s *TokenStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// ExpiresAt is advisory; refresh is driven by 401 responses, not by this value.
func (s *TokenStore) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// RefreshToken reads durable storage on every call.
func (s *TokenStore) RefreshToken() string {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()

	token, err := s.storage.Get(ctx, RefreshTokenKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to read refresh token", zap.Error(err))
		}
		return ""
	}
	return token
}
