package routes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore persists the catalog as a JSON array under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a RedisStore using the given client and key.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load reads the catalog key. A missing key or undecodable value yields an
// empty catalog.
func (s *RedisStore) Load(ctx context.Context) ([]string, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read route catalog: %w", err)
	}

	var routes []string
	if err := json.Unmarshal([]byte(data), &routes); err != nil {
		return nil, nil
	}
	return routes, nil
}

// Save writes the full catalog, replacing the previous value.
func (s *RedisStore) Save(ctx context.Context, routes []string) error {
	data, err := json.Marshal(routes)
	if err != nil {
		return fmt.Errorf("failed to marshal routes: %w", err)
	}
	return s.client.Set(ctx, s.key, data, 0).Err()
}
