package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// RateLimitRepo implements biz.RateLimitRepo interface.
// Following Kratos v2 DDD architecture, interface is defined in biz layer.
type RateLimitRepo struct {
	kv     KVStore
	logger *log.Helper
}

// NewRateLimitRepo creates a new rate limit repository.
func NewRateLimitRepo(kv KVStore, logger log.Logger) *RateLimitRepo {
	return &RateLimitRepo{
		kv:     kv,
		logger: log.NewHelper(logger),
	}
}

// getRateLimitKey generates a key for rate limiting.
// Format: rate_limit:{service}:{scope}
// Example: rate_limit:instagram_api:business_7 or rate_limit:pos_system:global
func getRateLimitKey(service, scope string) string {
	return BuildKey(KeyPrefixRateLimit, SanitizeKeyPart(service), SanitizeKeyPart(scope))
}

// Count returns the calls recorded in the current window. Returns 0 if key doesn't exist.
func (r *RateLimitRepo) Count(ctx context.Context, service, scope string) (int64, error) {
	var n int64
	if err := r.kv.Get(ctx, getRateLimitKey(service, scope), &n); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get rate limit count: %w", err)
	}
	return n, nil
}

// Record counts one call and returns the new count.
// The first caller of a window creates the key at 1 with the window TTL (SETNX);
// everyone else increments. Two racing first callers therefore end at 2.
// An increment that lands on 1 means the key expired between the two steps,
// so its TTL is re-armed.
func (r *RateLimitRepo) Record(ctx context.Context, service, scope string, window time.Duration) (int64, error) {
	key := getRateLimitKey(service, scope)

	created, err := r.kv.SetNX(ctx, key, 1, window)
	if err != nil {
		return 0, fmt.Errorf("failed to init rate limit window: %w", err)
	}
	if created {
		return 1, nil
	}

	count, err := r.kv.Incr(ctx, key, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		if err := r.kv.Expire(ctx, key, window); err != nil {
			r.logger.Warnw("msg", "failed to re-arm rate limit window", "key", key, "error", err)
		}
	}

	return count, nil
}

// Reset clears the current window.
func (r *RateLimitRepo) Reset(ctx context.Context, service, scope string) error {
	if err := r.kv.Delete(ctx, getRateLimitKey(service, scope)); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
