package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tabsync-dev/tabsync/pkg/storage"
)

// RedisClient defines the interface for Redis operations.
// This interface is compatible with github.com/redis/go-redis/v9.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) RedisStatusCmd
	Get(ctx context.Context, key string) RedisStringCmd
	Del(ctx context.Context, keys ...string) RedisIntCmd
	Close() error
}

// RedisStatusCmd represents a Redis status command result.
type RedisStatusCmd interface {
	Err() error
}

// RedisStringCmd represents a Redis string command result.
type RedisStringCmd interface {
	Bytes() ([]byte, error)
	Err() error
}

// RedisIntCmd represents a Redis int command result.
type RedisIntCmd interface {
	Err() error
}

// ErrRedisNil is returned when a key doesn't exist in Redis.
// This should match redis.Nil from go-redis.
var ErrRedisNil = errors.New("redis: nil")

// RedisStore is a Redis-backed snapshot store.
// It's suitable for multi-server deployments with shared mirror state.
type RedisStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
	closed bool
}

// RedisStoreOption configures RedisStore behavior.
type RedisStoreOption func(*redisStoreConfig)

type redisStoreConfig struct {
	prefix string
	ttl    time.Duration
}

// WithRedisPrefix sets the key prefix for snapshot keys.
// Default: "tabsync:mirror:".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(c *redisStoreConfig) {
		c.prefix = prefix
	}
}

// WithRedisTTL sets the expiration applied to saved snapshots.
// Zero means snapshots never expire.
func WithRedisTTL(ttl time.Duration) RedisStoreOption {
	return func(c *redisStoreConfig) {
		c.ttl = ttl
	}
}

// NewRedisStore creates a new Redis-backed snapshot store.
func NewRedisStore(client RedisClient, opts ...RedisStoreOption) *RedisStore {
	cfg := &redisStoreConfig{
		prefix: "tabsync:mirror:",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.prefix,
		ttl:    cfg.ttl,
	}
}

// key returns the Redis key for an origin and area.
func (r *RedisStore) key(origin string, area storage.Area) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, origin, strings.ToLower(area.String()))
}

// Save stores a snapshot, applying the configured TTL.
func (r *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	if r.closed {
		return ErrStoreClosed{}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("mirror: marshal snapshot: %w", err)
	}

	return r.client.Set(ctx, r.key(snap.Origin, snap.Area), data, r.ttl).Err()
}

// Load retrieves a snapshot. Returns (nil, nil) if none exists.
func (r *RedisStore) Load(ctx context.Context, origin string, area storage.Area) (*Snapshot, error) {
	if r.closed {
		return nil, ErrStoreClosed{}
	}

	data, err := r.client.Get(ctx, r.key(origin, area)).Bytes()
	if err != nil {
		// Check for nil (key doesn't exist)
		if err.Error() == ErrRedisNil.Error() {
			return nil, nil
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("mirror: parse snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes a snapshot from Redis.
func (r *RedisStore) Delete(ctx context.Context, origin string, area storage.Area) error {
	if r.closed {
		return ErrStoreClosed{}
	}

	return r.client.Del(ctx, r.key(origin, area)).Err()
}

// Close marks the store as closed.
// Note: This does not close the underlying Redis client,
// as it may be shared with other components.
func (r *RedisStore) Close() error {
	r.closed = true
	return nil
}

// Prefix returns the current key prefix.
// This is for testing/debugging purposes.
func (r *RedisStore) Prefix() string {
	return r.prefix
}
