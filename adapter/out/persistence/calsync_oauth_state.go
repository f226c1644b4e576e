package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calsync_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

const oauthStateKeyPrefix = "oauth:state:"

// RedisStateStore holds short-lived OAuth CSRF state tokens in Redis.
// Each state is consumed exactly once.
type RedisStateStore struct {
	client *redis.Client
}

var _ out.StateStore = (*RedisStateStore)(nil)

// NewRedisStateStore creates a new RedisStateStore.
func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

// SaveState stores a state token with the given TTL.
func (s *RedisStateStore) SaveState(ctx context.Context, state string, ttl time.Duration) error {
	key := oauthStateKeyPrefix + state
	if err := s.client.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

// ConsumeState atomically reads and deletes a state token. It returns
// false when the state is unknown or already used.
func (s *RedisStateStore) ConsumeState(ctx context.Context, state string) (bool, error) {
	key := oauthStateKeyPrefix + state
	if err := s.client.GetDel(ctx, key).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("consume oauth state: %w", err)
	}
	return true, nil
}
