package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps all checkpoints as fields of a single Redis hash
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// OpenRedisStore connects to redisURL and verifies the connection
func OpenRedisStore(ctx context.Context, redisURL, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStore(client, key), nil
}

// Save sets the hash field for id
func (s *RedisStore) Save(ctx context.Context, id, token string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, id, token).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", id, err)
	}
	return nil
}

// Load reads the hash field for id
func (s *RedisStore) Load(ctx context.Context, id string) (string, error) {
	token, err := s.client.HGet(ctx, s.key, id).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load checkpoint %s: %w", id, err)
	}
	return token, nil
}

// Delete removes the hash field for id
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, s.key, id).Err(); err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", id, err)
	}
	return nil
}

// List returns the whole hash
func (s *RedisStore) List(ctx context.Context) (map[string]string, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return all, nil
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
