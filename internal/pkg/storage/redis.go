// internal/pkg/storage/redis.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "backoffice:storage:"

// RedisStorage keeps values in Redis, letting several console processes share one session.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStorage(client redis.UniversalClient, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (s *RedisStorage) Set(ctx context.Context, name, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(name), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s in redis: %w", name, err)
	}
	return nil
}

func (s *RedisStorage) Get(ctx context.Context, name string) (string, error) {
	value, err := s.client.Get(ctx, s.key(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s from redis: %w", name, err)
	}
	return value, nil
}

func (s *RedisStorage) Remove(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.key(name)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", name, err)
	}
	return nil
}

func (s *RedisStorage) key(name string) string {
	return s.prefix + name
}
