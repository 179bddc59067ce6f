package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SyncGuard/internal/conf"
	"SyncGuard/internal/data"
	"SyncGuard/internal/metrics"
	"SyncGuard/internal/model"
	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitBreakerRepo defines the interface for breaker state storage.
// Implementation is in data layer (data.CircuitBreakerRepo).
type CircuitBreakerRepo interface {
	Load(ctx context.Context, service, scope string) (*data.CircuitSnapshot, error)
	IncrFailures(ctx context.Context, service, scope string) (int, error)
	IncrSuccesses(ctx context.Context, service, scope string) (int, error)
	ResetFailures(ctx context.Context, service, scope string) error
	Open(ctx context.Context, service, scope string, at time.Time) error
	HalfOpen(ctx context.Context, service, scope string) error
	Close(ctx context.Context, service, scope string) error
	AcquireProbe(ctx context.Context, service, scope string, ttl time.Duration) (bool, error)
	ReleaseProbe(ctx context.Context, service, scope string) error
}

// AuditLogger records breaker transitions for later review.
type AuditLogger interface {
	// LogCircuitEvent queues a transition and must not block the caller.
	LogCircuitEvent(ctx context.Context, event *model.CircuitEvent)
	// ListRecent returns the newest entries, filtered by service when non-empty.
	ListRecent(ctx context.Context, service string, limit int) ([]model.AuditEntry, error)
}

// AlertNotifier delivers operator alerts: breaker trips, recoveries and
// critical sync days.
type AlertNotifier interface {
	NotifyCircuitOpened(ctx context.Context, event *model.CircuitEvent) error
	NotifyCircuitRecovered(ctx context.Context, event *model.CircuitEvent) error
	NotifySyncAlert(ctx context.Context, event *model.SyncAlertEvent) error
}

// Circuit breaker defaults
const (
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 300 * time.Second
	DefaultSuccessThreshold = 3
	DefaultProbeTTL         = 60 * time.Second
)

// CircuitStats is the operator view of one breaker.
type CircuitStats struct {
	Service          string     `json:"service"`
	Scope            string     `json:"scope"`
	Enabled          bool       `json:"enabled"`
	State            string     `json:"state"`
	FailureCount     int        `json:"failure_count"`
	SuccessCount     int        `json:"success_count"`
	FailureThreshold int        `json:"failure_threshold"`
	SuccessThreshold int        `json:"success_threshold"`
	TimeoutSeconds   int64      `json:"timeout_seconds"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	ElapsedSeconds   *int64     `json:"elapsed_seconds,omitempty"`
	RemainingSeconds *int64     `json:"remaining_seconds,omitempty"`
}

// CircuitBreakerUsecase guards calls to an external capability per (service, tenant).
// State lives in the shared KV store so every worker process sees the same breaker.
type CircuitBreakerUsecase struct {
	repo     CircuitBreakerRepo
	audit    AuditLogger
	notifier AlertNotifier
	metrics  *metrics.Metrics
	logger   *log.Helper
	events   *pkglog.LogHelper

	enabled          bool
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	probeTTL         time.Duration

	now func() time.Time
}

// NewCircuitBreakerUsecase creates a new circuit breaker use case.
func NewCircuitBreakerUsecase(
	repo CircuitBreakerRepo,
	audit AuditLogger,
	notifier AlertNotifier,
	m *metrics.Metrics,
	c *conf.Sync,
	logger log.Logger,
) *CircuitBreakerUsecase {
	uc := &CircuitBreakerUsecase{
		repo:             repo,
		audit:            audit,
		notifier:         notifier,
		metrics:          m,
		logger:           log.NewHelper(logger),
		events:           pkglog.NewLogHelper(logger),
		enabled:          true,
		failureThreshold: DefaultFailureThreshold,
		successThreshold: DefaultSuccessThreshold,
		timeout:          DefaultOpenTimeout,
		probeTTL:         DefaultProbeTTL,
		now:              time.Now,
	}

	if c != nil && c.CircuitBreaker != nil {
		cb := c.CircuitBreaker
		uc.enabled = cb.Enabled
		if cb.FailureThreshold > 0 {
			uc.failureThreshold = cb.FailureThreshold
		}
		if cb.SuccessThreshold > 0 {
			uc.successThreshold = cb.SuccessThreshold
		}
		if cb.Timeout > 0 {
			uc.timeout = cb.Timeout
		}
		if cb.ProbeTTL > 0 {
			uc.probeTTL = cb.ProbeTTL
		}
	}

	return uc
}

// Execute runs action under the breaker of (service, tenant). A nil tenant uses the
// global scope. When the breaker is open and the cooldown has not elapsed, action is
// not invoked and a CIRCUIT_OPEN error is returned.
//
// Store failures degrade to a closed breaker: the action runs and the failure is logged.
func (uc *CircuitBreakerUsecase) Execute(ctx context.Context, service string, tenantID *int64, action func(context.Context) error) error {
	if !uc.enabled {
		return action(ctx)
	}

	scope := model.ScopeName(tenantID)

	snap, err := uc.repo.Load(ctx, service, scope)
	if err != nil {
		uc.logger.Warnw("msg", "circuit state unavailable, treating as closed",
			"service", service,
			"scope", scope,
			"error", err)
		snap = &data.CircuitSnapshot{State: data.CircuitClosed}
	}

	switch snap.State {
	case data.CircuitOpen:
		elapsed := uc.elapsedSinceOpen(snap)
		if elapsed < uc.timeout {
			return uc.reject(service, scope, uc.timeout-elapsed)
		}
		if !uc.acquireProbe(ctx, service, scope) {
			return uc.reject(service, scope, 0)
		}
		if err := uc.repo.HalfOpen(ctx, service, scope); err != nil {
			uc.logger.Warnw("msg", "failed to store half-open state",
				"service", service,
				"scope", scope,
				"error", err)
		}
		uc.events.Circuit("circuit half-open, admitting trial call",
			"service", service,
			"scope", scope,
			"elapsed_seconds", int64(elapsed.Seconds()))
		uc.metrics.CircuitTransition(service, data.CircuitOpen, data.CircuitHalfOpen)
		return uc.trial(ctx, service, tenantID, action)

	case data.CircuitHalfOpen:
		if !uc.acquireProbe(ctx, service, scope) {
			return uc.reject(service, scope, 0)
		}
		return uc.trial(ctx, service, tenantID, action)

	default:
		return uc.runClosed(ctx, service, tenantID, snap, action)
	}
}

func (uc *CircuitBreakerUsecase) runClosed(ctx context.Context, service string, tenantID *int64, snap *data.CircuitSnapshot, action func(context.Context) error) error {
	scope := model.ScopeName(tenantID)

	err := action(ctx)
	if err != nil {
		if countsAsFailure(err) {
			uc.recordClosedFailure(ctx, service, tenantID, err)
		}
		return err
	}

	if snap.Failures > 0 {
		if err := uc.repo.ResetFailures(ctx, service, scope); err != nil {
			uc.logger.Warnw("msg", "failed to reset failure count",
				"service", service,
				"scope", scope,
				"error", err)
		}
	}
	return nil
}

func (uc *CircuitBreakerUsecase) recordClosedFailure(ctx context.Context, service string, tenantID *int64, cause error) {
	scope := model.ScopeName(tenantID)

	failures, err := uc.repo.IncrFailures(ctx, service, scope)
	if err != nil {
		uc.logger.Warnw("msg", "failed to record circuit failure",
			"service", service,
			"scope", scope,
			"error", err)
		return
	}

	if failures < uc.failureThreshold {
		uc.logger.Warnw("msg", "circuit recorded failure",
			"service", service,
			"scope", scope,
			"failure_count", failures,
			"failure_threshold", uc.failureThreshold,
			"error", cause)
		return
	}

	uc.open(ctx, service, tenantID, data.CircuitClosed, model.AuditActionCircuitOpened, failures, 0, cause)
}

// trial runs one half-open call. The probe marker is held for its duration.
func (uc *CircuitBreakerUsecase) trial(ctx context.Context, service string, tenantID *int64, action func(context.Context) error) error {
	scope := model.ScopeName(tenantID)
	defer func() {
		if err := uc.repo.ReleaseProbe(context.WithoutCancel(ctx), service, scope); err != nil {
			uc.logger.Warnw("msg", "failed to release half-open probe",
				"service", service,
				"scope", scope,
				"error", err)
		}
	}()

	err := action(ctx)
	if err != nil {
		if countsAsFailure(err) {
			uc.open(ctx, service, tenantID, data.CircuitHalfOpen, model.AuditActionCircuitReopened, 0, 0, err)
		}
		return err
	}

	successes, serr := uc.repo.IncrSuccesses(ctx, service, scope)
	if serr != nil {
		uc.logger.Warnw("msg", "failed to record half-open success",
			"service", service,
			"scope", scope,
			"error", serr)
		return nil
	}

	if successes < uc.successThreshold {
		uc.logger.Infow("msg", "half-open trial succeeded",
			"service", service,
			"scope", scope,
			"success_count", successes,
			"success_threshold", uc.successThreshold)
		return nil
	}

	if cerr := uc.repo.Close(ctx, service, scope); cerr != nil {
		uc.logger.Warnw("msg", "failed to close circuit",
			"service", service,
			"scope", scope,
			"error", cerr)
		return nil
	}

	event := &model.CircuitEvent{
		Service:      service,
		TenantID:     tenantID,
		Action:       model.AuditActionCircuitRecovered,
		FromState:    data.CircuitHalfOpen,
		ToState:      data.CircuitClosed,
		SuccessCount: successes,
		Operator:     "system",
		OccurredAt:   uc.now(),
	}
	uc.record(ctx, event)
	if nerr := uc.notifier.NotifyCircuitRecovered(ctx, event); nerr != nil {
		uc.logger.Warnw("msg", "failed to send recovery notification", "service", service, "error", nerr)
	}
	return nil
}

// open moves the breaker to Open, restamping opened_at and clearing counters.
func (uc *CircuitBreakerUsecase) open(ctx context.Context, service string, tenantID *int64, from, action string, failures, successes int, cause error) {
	scope := model.ScopeName(tenantID)
	at := uc.now()

	if err := uc.repo.Open(ctx, service, scope, at); err != nil {
		uc.logger.Errorw("msg", "failed to open circuit",
			"service", service,
			"scope", scope,
			"error", err)
		return
	}

	event := &model.CircuitEvent{
		Service:      service,
		TenantID:     tenantID,
		Action:       action,
		FromState:    from,
		ToState:      data.CircuitOpen,
		FailureCount: failures,
		SuccessCount: successes,
		OpenedAt:     &at,
		Operator:     "system",
		OccurredAt:   at,
	}
	uc.record(ctx, event, "error", cause)
	if err := uc.notifier.NotifyCircuitOpened(ctx, event); err != nil {
		uc.logger.Warnw("msg", "failed to send circuit notification", "service", service, "error", err)
	}
}

// record logs, counts and audits one transition.
func (uc *CircuitBreakerUsecase) record(ctx context.Context, event *model.CircuitEvent, kvs ...interface{}) {
	fields := []interface{}{
		"service", event.Service,
		"scope", event.Scope(),
		"from", event.FromState,
		"to", event.ToState,
		"failure_count", event.FailureCount,
		"success_count", event.SuccessCount,
		"operator", event.Operator,
	}
	fields = append(fields, kvs...)
	uc.events.Circuit(fmt.Sprintf("circuit %s -> %s", event.FromState, event.ToState), fields...)

	if event.FromState != event.ToState {
		uc.metrics.CircuitTransition(event.Service, event.FromState, event.ToState)
	}
	uc.audit.LogCircuitEvent(ctx, event)
}

func (uc *CircuitBreakerUsecase) reject(service, scope string, retryAfter time.Duration) error {
	uc.metrics.CircuitRejected(service)
	uc.logger.Debugw("msg", "circuit open, call rejected",
		"service", service,
		"scope", scope,
		"retry_after_seconds", int64(retryAfter.Seconds()))
	return newCircuitOpenError(service, scope, retryAfter)
}

// acquireProbe claims the single half-open trial slot. A store failure admits the
// caller, consistent with treating an unreachable store as a closed breaker.
func (uc *CircuitBreakerUsecase) acquireProbe(ctx context.Context, service, scope string) bool {
	ok, err := uc.repo.AcquireProbe(ctx, service, scope, uc.probeTTL)
	if err != nil {
		uc.logger.Warnw("msg", "half-open probe unavailable, admitting call",
			"service", service,
			"scope", scope,
			"error", err)
		return true
	}
	return ok
}

// elapsedSinceOpen treats a missing opened_at as an expired cooldown.
func (uc *CircuitBreakerUsecase) elapsedSinceOpen(snap *data.CircuitSnapshot) time.Duration {
	if snap.OpenedAt == nil {
		return uc.timeout
	}
	return uc.now().Sub(*snap.OpenedAt)
}

// countsAsFailure excludes outcomes that say nothing about the guarded service:
// a cancelled or timed-out run (the scheduler bounds each run), a source the
// tenant has not connected, and our own breaker/limiter rejections.
func countsAsFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case IsSourceUnavailable(err), IsCircuitOpen(err), IsRateLimited(err):
		return false
	default:
		return true
	}
}

// Reset forces the breaker of (service, tenant) closed with zeroed counters.
func (uc *CircuitBreakerUsecase) Reset(ctx context.Context, service string, tenantID *int64, operator string) error {
	scope := model.ScopeName(tenantID)

	from := data.CircuitClosed
	if snap, err := uc.repo.Load(ctx, service, scope); err == nil {
		from = snap.State
	}

	if err := uc.repo.Close(ctx, service, scope); err != nil {
		return fmt.Errorf("failed to reset circuit %s/%s: %w", service, scope, err)
	}

	if operator == "" {
		operator = "system"
	}
	uc.record(ctx, &model.CircuitEvent{
		Service:    service,
		TenantID:   tenantID,
		Action:     model.AuditActionCircuitReset,
		FromState:  from,
		ToState:    data.CircuitClosed,
		Operator:   operator,
		OccurredAt: uc.now(),
	})
	return nil
}

// GetState returns closed, open or half_open.
func (uc *CircuitBreakerUsecase) GetState(ctx context.Context, service string, tenantID *int64) (string, error) {
	snap, err := uc.repo.Load(ctx, service, model.ScopeName(tenantID))
	if err != nil {
		return "", err
	}
	return snap.State, nil
}

// GetStats reports state, counts and thresholds, plus cooldown progress when open.
func (uc *CircuitBreakerUsecase) GetStats(ctx context.Context, service string, tenantID *int64) (*CircuitStats, error) {
	scope := model.ScopeName(tenantID)
	snap, err := uc.repo.Load(ctx, service, scope)
	if err != nil {
		return nil, err
	}

	stats := &CircuitStats{
		Service:          service,
		Scope:            scope,
		Enabled:          uc.enabled,
		State:            snap.State,
		FailureCount:     snap.Failures,
		SuccessCount:     snap.Successes,
		FailureThreshold: uc.failureThreshold,
		SuccessThreshold: uc.successThreshold,
		TimeoutSeconds:   int64(uc.timeout.Seconds()),
		OpenedAt:         snap.OpenedAt,
	}

	if snap.State == data.CircuitOpen && snap.OpenedAt != nil {
		elapsed := int64(uc.now().Sub(*snap.OpenedAt).Seconds())
		remaining := int64(uc.timeout.Seconds()) - elapsed
		if remaining < 0 {
			remaining = 0
		}
		stats.ElapsedSeconds = &elapsed
		stats.RemainingSeconds = &remaining
	}

	return stats, nil
}

// RecentEvents returns the newest audit entries for service (all services when empty).
func (uc *CircuitBreakerUsecase) RecentEvents(ctx context.Context, service string, limit int) ([]model.AuditEntry, error) {
	return uc.audit.ListRecent(ctx, service, limit)
}
