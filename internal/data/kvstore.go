package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"SyncGuard/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// Key prefixes shared by the breaker, limiter and monitor.
const (
	KeyPrefixCircuit      = "circuit_breaker"
	KeyPrefixRateLimit    = "rate_limit"
	KeyPrefixOverallStats = "kpi_sync_overall_stats"
	KeyPrefixBatchStats   = "kpi_sync_batch_stats"
	KeyPrefixProgress     = "kpi_sync_progress"
	KeyPrefixResults      = "kpi_sync_results"
	KeyRunning            = "kpi_sync:running"
)

// Retention of the values written by a sync run.
const (
	TTLCircuitState = 1 * time.Hour
	TTLBatchStats   = 7 * 24 * time.Hour
	TTLOverallStats = 30 * 24 * time.Hour
	TTLProgress     = 24 * time.Hour
	TTLResults      = 7 * 24 * time.Hour
	TTLRunningLock  = 1 * time.Hour
)

// ErrKeyNotFound is returned when a key does not exist or has expired.
var ErrKeyNotFound = errors.New("kvstore: key not found")

// KVStore is the shared key-value store every worker coordinates through.
// Values are JSON encoded; counters written by Incr are plain integers, which
// decode as JSON numbers, so Get into an int64 works for both.
// Implementations must be safe for concurrent use.
type KVStore interface {
	// Get decodes the value of key into dest. Returns ErrKeyNotFound if absent.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Incr atomically adds by to the integer at key, creating it at 0 first.
	// The TTL of an existing key is kept.
	Incr(ctx context.Context, key string, by int64) (int64, error)

	// Expire sets a TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)
}

// BuildKey joins a prefix and parts with ':'.
// Examples:
//   - BuildKey(KeyPrefixRateLimit, "instagram_api", "business_7") -> "rate_limit:instagram_api:business_7"
//   - BuildKey(KeyPrefixBatchStats, "2025-01-15", "batch_2") -> "kpi_sync_batch_stats:2025-01-15:batch_2"
func BuildKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeKeyPart replaces every character outside [a-zA-Z0-9_-] with '_' so a
// tenant or service identifier can never inject a ':' and address another scope.
func SanitizeKeyPart(part string) string {
	return unsafeKeyChars.ReplaceAllString(part, "_")
}

// NewKVStore returns the Redis store when a client is available and the
// in-process store otherwise, so a single-node deployment keeps working
// without Redis.
func NewKVStore(rdb *redis.Client, c *conf.Data, logger log.Logger) KVStore {
	if rdb != nil {
		return NewRedisKVStore(rdb)
	}

	size := 0
	if c != nil {
		size = c.LocalCacheSize
	}
	log.NewHelper(logger).Warnw("msg", "redis unavailable, using in-process kv store; coordination is limited to this process",
		"size", size)
	return NewLocalKVStore(size)
}

// redisKVStore is the Redis-based implementation of KVStore.
type redisKVStore struct {
	client *redis.Client
}

// NewRedisKVStore creates a Redis-backed KVStore.
func NewRedisKVStore(rdb *redis.Client) KVStore {
	return &redisKVStore{client: rdb}
}

func (s *redisKVStore) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("kvstore: failed to get key %s: %w", key, err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		return fmt.Errorf("kvstore: failed to unmarshal value for key %s: %w", key, err)
	}
	return nil
}

func (s *redisKVStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvstore: failed to marshal value for key %s: %w", key, err)
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *redisKVStore) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("kvstore: failed to marshal value for key %s: %w", key, err)
	}

	if ttl < 0 {
		ttl = 0
	}
	ok, err := s.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("kvstore: failed to setnx key %s: %w", key, err)
	}
	return ok, nil
}

func (s *redisKVStore) Incr(ctx context.Context, key string, by int64) (int64, error) {
	n, err := s.client.IncrBy(ctx, key, by).Result()
	if err != nil {
		return 0, fmt.Errorf("kvstore: failed to increment key %s: %w", key, err)
	}
	return n, nil
}

func (s *redisKVStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("kvstore: failed to expire key %s: %w", key, err)
	}
	return nil
}

func (s *redisKVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("kvstore: failed to delete keys %v: %w", keys, err)
	}
	return nil
}

func (s *redisKVStore) Exists(ctx context.Context, key string) (bool, error) {
	count, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kvstore: failed to check existence of key %s: %w", key, err)
	}
	return count > 0, nil
}
