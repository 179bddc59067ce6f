package biz

import (
	"context"
	"time"

	"SyncGuard/internal/conf"
	"SyncGuard/internal/metrics"
	"SyncGuard/internal/model"
	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// RateLimitRepo stores fixed-window counters per (service, scope).
// Implementation is in data layer (data.RateLimitRepo).
type RateLimitRepo interface {
	Count(ctx context.Context, service, scope string) (int64, error)
	// Record counts one call, opening a window of the given length when none exists.
	Record(ctx context.Context, service, scope string, window time.Duration) (int64, error)
	Reset(ctx context.Context, service, scope string) error
}

// Rate limiter defaults
const (
	DefaultRateWindow      = 60 * time.Second
	DefaultRateMaxAttempts = 3
	DefaultRateLimit       = 100

	// usageWarningRatio triggers the early warning log.
	usageWarningRatio = 0.9
	// defaultPollInterval is how often a blocked caller re-checks its window.
	defaultPollInterval = time.Second
)

var defaultServiceLimits = map[string]int{
	"instagram_api": 200,
	"facebook_api":  200,
	"pos_system":    1000,
}

// RateLimitStats is the operator view of one window.
type RateLimitStats struct {
	Service         string  `json:"service"`
	Scope           string  `json:"scope"`
	Limit           int64   `json:"limit"`
	Used            int64   `json:"used"`
	Remaining       int64   `json:"remaining"`
	UsagePercentage float64 `json:"usage_percentage"`
	WindowSeconds   int64   `json:"window_seconds"`
}

// RateLimiterUseCase implements fixed-window rate limiting per (service, tenant).
// Counters live in the shared KV store; enforcement is check-then-record, so a
// window can briefly overshoot its limit under concurrency.
type RateLimiterUseCase struct {
	repo    RateLimitRepo
	metrics *metrics.Metrics
	logger  *log.Helper
	events  *pkglog.LogHelper

	window       time.Duration
	maxAttempts  int
	defaultLimit int
	limits       map[string]int
	pollInterval time.Duration
}

// NewRateLimiterUseCase creates a new rate limiter use case.
func NewRateLimiterUseCase(repo RateLimitRepo, m *metrics.Metrics, c *conf.Sync, logger log.Logger) *RateLimiterUseCase {
	uc := &RateLimiterUseCase{
		repo:         repo,
		metrics:      m,
		logger:       log.NewHelper(logger),
		events:       pkglog.NewLogHelper(logger),
		window:       DefaultRateWindow,
		maxAttempts:  DefaultRateMaxAttempts,
		defaultLimit: DefaultRateLimit,
		limits:       make(map[string]int, len(defaultServiceLimits)),
		pollInterval: defaultPollInterval,
	}
	for k, v := range defaultServiceLimits {
		uc.limits[k] = v
	}

	if c != nil && c.RateLimiter != nil {
		rl := c.RateLimiter
		if rl.Window > 0 {
			uc.window = rl.Window
		}
		if rl.MaxAttempts > 0 {
			uc.maxAttempts = rl.MaxAttempts
		}
		if rl.DefaultLimit > 0 {
			uc.defaultLimit = rl.DefaultLimit
		}
		for k, v := range rl.Limits {
			if v > 0 {
				uc.limits[k] = v
			}
		}
	}

	if uc.pollInterval > uc.window {
		uc.pollInterval = uc.window
	}

	return uc
}

// Limit returns the per-window budget of service.
func (uc *RateLimiterUseCase) Limit(service string) int64 {
	if l, ok := uc.limits[service]; ok {
		return int64(l)
	}
	return int64(uc.defaultLimit)
}

// Window returns the window length.
func (uc *RateLimiterUseCase) Window() time.Duration {
	return uc.window
}

// used reads the current count. Redis degradation: a store failure reads as 0.
func (uc *RateLimiterUseCase) used(ctx context.Context, service, scope string) int64 {
	n, err := uc.repo.Count(ctx, service, scope)
	if err != nil {
		uc.logger.Warnf("rate limit read failed for %s/%s: %v (request allowed)", service, scope, err)
		return 0
	}
	return n
}

// Allow reports whether another call fits in the current window. It does not record.
func (uc *RateLimiterUseCase) Allow(ctx context.Context, service string, tenantID *int64) bool {
	scope := model.ScopeName(tenantID)
	used := uc.used(ctx, service, scope)
	limit := uc.Limit(service)

	if used >= limit {
		uc.metrics.RateLimited(service)
		uc.events.RateLimit("rate limit reached",
			"service", service,
			"scope", scope,
			"current", used,
			"limit", limit)
		return false
	}
	return true
}

// Record counts one call against the window of (service, tenant).
// Redis degradation: on store failure, logs warning and returns nil.
func (uc *RateLimiterUseCase) Record(ctx context.Context, service string, tenantID *int64) error {
	scope := model.ScopeName(tenantID)

	count, err := uc.repo.Record(ctx, service, scope, uc.window)
	if err != nil {
		uc.logger.Warnf("rate limit record failed for %s/%s: %v (request allowed)", service, scope, err)
		return nil
	}

	limit := uc.Limit(service)
	if float64(count) >= float64(limit)*usageWarningRatio {
		uc.events.RateLimit("rate limit nearly exhausted",
			"service", service,
			"scope", scope,
			"current", count,
			"limit", limit,
			"usage_percentage", usagePercentage(count, limit))
	}
	return nil
}

// WaitIfNeeded blocks while the window of (service, tenant) is full, re-checking every
// poll interval, for at most one window. It returns how long it waited. Cancelling ctx
// stops the wait and returns ctx.Err().
func (uc *RateLimiterUseCase) WaitIfNeeded(ctx context.Context, service string, tenantID *int64) (time.Duration, error) {
	scope := model.ScopeName(tenantID)
	limit := uc.Limit(service)
	if uc.used(ctx, service, scope) < limit {
		return 0, nil
	}

	uc.events.RateLimit("rate limit reached, waiting for window",
		"service", service,
		"scope", scope,
		"limit", limit,
		"max_wait_seconds", int64(uc.window.Seconds()))

	start := time.Now()
	timer := time.NewTimer(uc.window)
	defer timer.Stop()
	ticker := time.NewTicker(uc.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			waited := time.Since(start)
			uc.metrics.RateLimitWaited(service, waited.Seconds())
			return waited, ctx.Err()
		case <-timer.C:
			waited := time.Since(start)
			uc.metrics.RateLimitWaited(service, waited.Seconds())
			return waited, nil
		case <-ticker.C:
			if uc.used(ctx, service, scope) < limit {
				waited := time.Since(start)
				uc.metrics.RateLimitWaited(service, waited.Seconds())
				return waited, nil
			}
		}
	}
}

// Execute runs action once a slot is free, retrying up to max attempts and waiting
// between them. Returns a RATE_LIMITED error when every attempt was denied.
func (uc *RateLimiterUseCase) Execute(ctx context.Context, service string, tenantID *int64, action func(context.Context) error) error {
	for attempt := 1; attempt <= uc.maxAttempts; attempt++ {
		if uc.Allow(ctx, service, tenantID) {
			if err := uc.Record(ctx, service, tenantID); err != nil {
				return err
			}
			return action(ctx)
		}

		if attempt == uc.maxAttempts {
			break
		}

		uc.logger.Infow("msg", "rate limited, waiting to retry",
			"service", service,
			"scope", model.ScopeName(tenantID),
			"attempt", attempt,
			"max_attempts", uc.maxAttempts)
		if _, err := uc.WaitIfNeeded(ctx, service, tenantID); err != nil {
			return err
		}
	}

	scope := model.ScopeName(tenantID)
	return newRateLimitedError(service, scope, uc.used(ctx, service, scope), uc.Limit(service))
}

// GetStats reports limit, used, remaining and usage percentage of the current window.
func (uc *RateLimiterUseCase) GetStats(ctx context.Context, service string, tenantID *int64) (*RateLimitStats, error) {
	scope := model.ScopeName(tenantID)
	used, err := uc.repo.Count(ctx, service, scope)
	if err != nil {
		return nil, err
	}

	limit := uc.Limit(service)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return &RateLimitStats{
		Service:         service,
		Scope:           scope,
		Limit:           limit,
		Used:            used,
		Remaining:       remaining,
		UsagePercentage: usagePercentage(used, limit),
		WindowSeconds:   int64(uc.window.Seconds()),
	}, nil
}

// Reset clears the window of (service, tenant).
func (uc *RateLimiterUseCase) Reset(ctx context.Context, service string, tenantID *int64) error {
	return uc.repo.Reset(ctx, service, model.ScopeName(tenantID))
}

func usagePercentage(used, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return round2(float64(used) / float64(limit) * 100)
}
