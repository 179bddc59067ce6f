package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Circuit states as stored under the state key. A missing key means closed.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

const (
	fieldState     = "state"
	fieldFailures  = "failures"
	fieldSuccesses = "successes"
	fieldOpenedAt  = "opened_at"
	fieldProbe     = "probe"
)

// CircuitSnapshot is the stored state of one (service, scope) breaker.
type CircuitSnapshot struct {
	State     string
	Failures  int
	Successes int
	OpenedAt  *time.Time
}

// CircuitBreakerRepo implements biz.CircuitBreakerRepo over the shared KV store.
// Every key lives under circuit_breaker:{service}:{scope}:{field}.
type CircuitBreakerRepo struct {
	kv     KVStore
	logger *log.Helper
}

// NewCircuitBreakerRepo creates a new circuit breaker repository
func NewCircuitBreakerRepo(kv KVStore, logger log.Logger) *CircuitBreakerRepo {
	return &CircuitBreakerRepo{
		kv:     kv,
		logger: log.NewHelper(logger),
	}
}

func circuitKey(service, scope, field string) string {
	return BuildKey(KeyPrefixCircuit, SanitizeKeyPart(service), SanitizeKeyPart(scope), field)
}

func (r *CircuitBreakerRepo) keys(service, scope string, fields ...string) []string {
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, circuitKey(service, scope, f))
	}
	return keys
}

// getInt reads an integer key, treating a missing key as 0.
func (r *CircuitBreakerRepo) getInt(ctx context.Context, key string) (int64, error) {
	var n int64
	if err := r.kv.Get(ctx, key, &n); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Load reads state, counters and opened_at.
func (r *CircuitBreakerRepo) Load(ctx context.Context, service, scope string) (*CircuitSnapshot, error) {
	snap := &CircuitSnapshot{State: CircuitClosed}

	var state string
	if err := r.kv.Get(ctx, circuitKey(service, scope, fieldState), &state); err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			return nil, fmt.Errorf("failed to load circuit state: %w", err)
		}
	} else if state != "" {
		snap.State = state
	}

	failures, err := r.getInt(ctx, circuitKey(service, scope, fieldFailures))
	if err != nil {
		return nil, fmt.Errorf("failed to load failure count: %w", err)
	}
	successes, err := r.getInt(ctx, circuitKey(service, scope, fieldSuccesses))
	if err != nil {
		return nil, fmt.Errorf("failed to load success count: %w", err)
	}
	snap.Failures = int(failures)
	snap.Successes = int(successes)

	openedAt, err := r.getInt(ctx, circuitKey(service, scope, fieldOpenedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to load opened_at: %w", err)
	}
	if openedAt > 0 {
		t := time.Unix(openedAt, 0)
		snap.OpenedAt = &t
	}

	return snap, nil
}

func (r *CircuitBreakerRepo) incr(ctx context.Context, key string) (int, error) {
	n, err := r.kv.Incr(ctx, key, 1)
	if err != nil {
		return 0, err
	}
	if err := r.kv.Expire(ctx, key, TTLCircuitState); err != nil {
		r.logger.Warnw("msg", "failed to set circuit counter ttl", "key", key, "error", err)
	}
	return int(n), nil
}

// IncrFailures adds one failure and returns the new count.
func (r *CircuitBreakerRepo) IncrFailures(ctx context.Context, service, scope string) (int, error) {
	n, err := r.incr(ctx, circuitKey(service, scope, fieldFailures))
	if err != nil {
		return 0, fmt.Errorf("failed to increment failure count: %w", err)
	}
	return n, nil
}

// IncrSuccesses adds one half-open success and returns the new count.
func (r *CircuitBreakerRepo) IncrSuccesses(ctx context.Context, service, scope string) (int, error) {
	n, err := r.incr(ctx, circuitKey(service, scope, fieldSuccesses))
	if err != nil {
		return 0, fmt.Errorf("failed to increment success count: %w", err)
	}
	return n, nil
}

// ResetFailures clears the closed-state failure streak.
func (r *CircuitBreakerRepo) ResetFailures(ctx context.Context, service, scope string) error {
	if err := r.kv.Delete(ctx, circuitKey(service, scope, fieldFailures)); err != nil {
		return fmt.Errorf("failed to reset failure count: %w", err)
	}
	return nil
}

// Open stores the open state stamped with at and clears both counters and the probe marker.
func (r *CircuitBreakerRepo) Open(ctx context.Context, service, scope string, at time.Time) error {
	if err := r.kv.Delete(ctx, r.keys(service, scope, fieldFailures, fieldSuccesses, fieldProbe)...); err != nil {
		return fmt.Errorf("failed to clear circuit counters: %w", err)
	}
	if err := r.kv.Set(ctx, circuitKey(service, scope, fieldOpenedAt), at.Unix(), TTLCircuitState); err != nil {
		return fmt.Errorf("failed to stamp opened_at: %w", err)
	}
	if err := r.kv.Set(ctx, circuitKey(service, scope, fieldState), CircuitOpen, TTLCircuitState); err != nil {
		return fmt.Errorf("failed to open circuit: %w", err)
	}
	return nil
}

// HalfOpen stores the half-open state and clears both counters. The probe marker is kept.
func (r *CircuitBreakerRepo) HalfOpen(ctx context.Context, service, scope string) error {
	if err := r.kv.Delete(ctx, r.keys(service, scope, fieldFailures, fieldSuccesses)...); err != nil {
		return fmt.Errorf("failed to clear circuit counters: %w", err)
	}
	if err := r.kv.Set(ctx, circuitKey(service, scope, fieldState), CircuitHalfOpen, TTLCircuitState); err != nil {
		return fmt.Errorf("failed to half-open circuit: %w", err)
	}
	return nil
}

// Close removes every key of the breaker, which reads back as closed with zero counters.
func (r *CircuitBreakerRepo) Close(ctx context.Context, service, scope string) error {
	keys := r.keys(service, scope, fieldState, fieldFailures, fieldSuccesses, fieldOpenedAt, fieldProbe)
	if err := r.kv.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to close circuit: %w", err)
	}
	return nil
}

// AcquireProbe claims the single half-open trial slot using SETNX.
func (r *CircuitBreakerRepo) AcquireProbe(ctx context.Context, service, scope string, ttl time.Duration) (bool, error) {
	ok, err := r.kv.SetNX(ctx, circuitKey(service, scope, fieldProbe), time.Now().Unix(), ttl)
	if err != nil {
		return false, fmt.Errorf("failed to acquire half-open probe: %w", err)
	}
	return ok, nil
}

// ReleaseProbe frees the trial slot.
func (r *CircuitBreakerRepo) ReleaseProbe(ctx context.Context, service, scope string) error {
	if err := r.kv.Delete(ctx, circuitKey(service, scope, fieldProbe)); err != nil {
		return fmt.Errorf("failed to release half-open probe: %w", err)
	}
	return nil
}
