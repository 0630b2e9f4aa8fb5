package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is where the Redis store keeps the snapshot blob.
const DefaultRedisKey = "walletledger:snapshot:v1"

// RedisStore keeps the latest snapshot under a single Redis key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore builds a Redis-backed snapshot store.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Save overwrites the stored snapshot.
func (s *RedisStore) Save(ctx context.Context, state State) error {
	payload, err := Encode(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("store snapshot in redis: %w", err)
	}
	return nil
}

// Load fetches the stored snapshot.
func (s *RedisStore) Load(ctx context.Context) (State, error) {
	payload, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, ErrNoSnapshot
		}
		return State{}, fmt.Errorf("load snapshot from redis: %w", err)
	}
	return Decode(payload)
}
