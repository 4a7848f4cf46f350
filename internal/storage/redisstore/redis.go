package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pizzabot/internal/session"
	"pizzabot/internal/storage"
)

const keyPrefix = "session:"

// RedisStore keeps sessions as JSON values under "session:<user key>"
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis. A zero ttl keeps sessions forever.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func key(userKey string) string {
	return keyPrefix + userKey
}

// Get loads and decodes the user's session
func (r *RedisStore) Get(ctx context.Context, userKey string) (*session.Session, error) {
	data, err := r.client.Get(ctx, key(userKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", userKey, err)
	}
	return session.Decode(userKey, data)
}

// Put replaces the stored record with a single SET
func (r *RedisStore) Put(ctx context.Context, s *session.Session) error {
	data, err := session.Encode(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key(s.UserKey), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to put session %s: %w", s.UserKey, err)
	}
	return nil
}

// Close closes the Redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
