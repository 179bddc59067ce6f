package data

import (
	"context"
	"time"

	"SyncGuard/internal/conf"
	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPoolSize = 20
	redisDialTimeout     = 3 * time.Second
)

// redisOptions maps conf.Redis onto go-redis options. Breaker and limiter
// calls are single-key round trips, so the pool stays small and idle
// connections are recycled between nightly runs.
func redisOptions(c *conf.Redis) *redis.Options {
	network := c.Network
	if network == "" {
		network = "tcp"
	}
	pool := c.PoolSize
	if pool <= 0 {
		pool = defaultRedisPoolSize
	}
	return &redis.Options{
		Network:         network,
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		PoolSize:        pool,
		MinIdleConns:    pool / 4,
		DialTimeout:     redisDialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// NewRedisClient connects to the shared breaker/limiter store.
//
// A missing address or a failed PING is not fatal: the client is nil and
// NewKVStore falls back to the in-process store, which keeps one instance
// working but no longer shares breaker state across instances.
func NewRedisClient(c *conf.Data, logger log.Logger) (*redis.Client, func(), error) {
	events := pkglog.NewLogHelper(logger)
	noop := func() {}

	if c == nil || c.Redis == nil || c.Redis.Addr == "" {
		events.Redis("redis not configured, breaker state stays in-process")
		return nil, noop, nil
	}

	opts := redisOptions(c.Redis)
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		events.Warnw("msg", "redis unreachable, falling back to in-process kv store",
			"type", "redis", "addr", opts.Addr, "error", err)
		_ = rdb.Close()
		return nil, noop, nil
	}

	events.Redis("redis connected", "addr", opts.Addr, "db", opts.DB, "pool_size", opts.PoolSize)

	return rdb, func() {
		if err := rdb.Close(); err != nil {
			events.Errorw("msg", "failed to close redis client", "error", err)
		}
	}, nil
}
