package biz

import (
	"context"
	"fmt"
	"time"

	"SyncGuard/internal/data"
	"SyncGuard/internal/metrics"
	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// KPI achievement statuses
const (
	StatusGreen    = "green"
	StatusYellow   = "yellow"
	StatusRed      = "red"
	StatusNoTarget = "no_target"

	greenThreshold  = 90.0
	yellowThreshold = 70.0
)

// Metric outcomes reported to Prometheus.
const (
	resultSuccess      = "success"
	resultFailed       = "failed"
	resultInsufficient = "insufficient"
	resultRateLimited  = "rate_limited"
)

// SyncResult aggregates one strategy run for one tenant.
type SyncResult struct {
	Service     string   `json:"service"`
	TenantID    int64    `json:"tenant_id"`
	Success     bool     `json:"success"`
	SyncedCount int      `json:"synced_count"`
	FailedCount int      `json:"failed_count"`
	Errors      []string `json:"errors,omitempty"`
}

// allFailedError is returned to the breaker when a run stored nothing and at least one
// metric failed for an unexpected reason.
type allFailedError struct {
	service string
	cause   error
}

func (e *allFailedError) Error() string {
	return fmt.Sprintf("%s: no metric synced: %v", e.service, e.cause)
}

func (e *allFailedError) Unwrap() error { return e.cause }

// SyncOrchestrator runs a strategy's metrics for a tenant under the breaker and limiter.
type SyncOrchestrator struct {
	breaker *CircuitBreakerUsecase
	limiter *RateLimiterUseCase
	actuals KpiActualRepo
	tenants TenantRepo
	metrics *metrics.Metrics
	logger  *log.Helper
	events  *pkglog.LogHelper

	now func() time.Time
}

// NewSyncOrchestrator creates a new sync orchestrator.
func NewSyncOrchestrator(
	breaker *CircuitBreakerUsecase,
	limiter *RateLimiterUseCase,
	actuals KpiActualRepo,
	tenants TenantRepo,
	m *metrics.Metrics,
	logger log.Logger,
) *SyncOrchestrator {
	return &SyncOrchestrator{
		breaker: breaker,
		limiter: limiter,
		actuals: actuals,
		tenants: tenants,
		metrics: m,
		logger:  log.NewHelper(logger),
		events:  pkglog.NewLogHelper(logger),
		now:     time.Now,
	}
}

// SyncAll computes and stores every supported metric of strategy for tenant and date.
//
// An unavailable source returns an unsuccessful result and a SOURCE_UNAVAILABLE error
// without touching breaker or limiter state. An open breaker returns CIRCUIT_OPEN and
// runs no metric. Per-metric failures are collected into the result.
func (o *SyncOrchestrator) SyncAll(ctx context.Context, strategy SyncStrategy, tenantID int64, date time.Time) (*SyncResult, error) {
	service := strategy.ServiceName()
	result := &SyncResult{Service: service, TenantID: tenantID}

	available, err := strategy.IsAvailable(ctx, tenantID)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, fmt.Errorf("failed to check %s availability: %w", service, err)
	}
	if !available {
		uerr := newSourceUnavailableError(service, tenantID)
		result.Errors = append(result.Errors, fmt.Sprintf("%s not connected", service))
		o.logger.Debugw("msg", "source not connected, skipping",
			"service", service,
			"tenant_id", tenantID)
		return result, uerr
	}

	err = o.breaker.Execute(ctx, service, &tenantID, func(ctx context.Context) error {
		return o.runMetrics(ctx, strategy, tenantID, date, result)
	})
	result.Success = result.SyncedCount > 0

	if err != nil {
		if IsCircuitOpen(err) {
			result.Errors = append(result.Errors, err.Error())
		}
		return result, err
	}

	o.events.Sync("tenant sync finished",
		"service", service,
		"tenant_id", tenantID,
		"date", data.DateKey(date),
		"synced_count", result.SyncedCount,
		"failed_count", result.FailedCount)
	return result, nil
}

// runMetrics is the breaker-guarded part of SyncAll. Metrics run sequentially in the
// strategy's declared order.
func (o *SyncOrchestrator) runMetrics(ctx context.Context, strategy SyncStrategy, tenantID int64, date time.Time, result *SyncResult) error {
	service := strategy.ServiceName()
	var unexpected error

	fail := func(code, outcome, msg string) {
		result.FailedCount++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", code, msg))
		o.metrics.MetricResult(service, outcome)
	}

	for _, code := range strategy.SupportedMetrics() {
		if _, err := o.limiter.WaitIfNeeded(ctx, service, &tenantID); err != nil {
			return err
		}
		if !o.limiter.Allow(ctx, service, &tenantID) {
			fail(code, resultRateLimited, "rate limit exceeded")
			continue
		}
		if err := o.limiter.Record(ctx, service, &tenantID); err != nil {
			fail(code, resultFailed, err.Error())
			unexpected = err
			continue
		}

		res, err := strategy.SyncOneMetric(ctx, tenantID, code, date)
		if err != nil {
			o.logger.Errorw("msg", "metric sync failed",
				"service", service,
				"tenant_id", tenantID,
				"metric_code", code,
				"error", err)
			fail(code, resultFailed, err.Error())
			unexpected = err
			continue
		}
		if !res.Success {
			fail(code, resultInsufficient, res.Message)
			continue
		}

		if err := o.store(ctx, service, tenantID, date, res); err != nil {
			o.logger.Errorw("msg", "failed to store kpi actual",
				"service", service,
				"tenant_id", tenantID,
				"metric_code", code,
				"error", err)
			fail(code, resultFailed, err.Error())
			unexpected = err
			continue
		}

		result.SyncedCount++
		o.metrics.MetricResult(service, resultSuccess)
	}

	if result.SyncedCount == 0 && unexpected != nil {
		return &allFailedError{service: service, cause: unexpected}
	}
	return nil
}

// store upserts one synced metric with its target comparison.
func (o *SyncOrchestrator) store(ctx context.Context, service string, tenantID int64, date time.Time, res *MetricResult) error {
	planned, found, err := o.tenants.PlannedValue(ctx, tenantID, res.MetricCode)
	if err != nil {
		return err
	}

	meta := res.Metadata
	if meta != nil {
		meta.RunID = pkglog.GetRequestContext(ctx).RunID
		if err := meta.Validate(); err != nil {
			return fmt.Errorf("invalid sync metadata: %w", err)
		}
	}

	now := o.now()
	row := &data.KpiDailyActual{
		TenantID:         tenantID,
		MetricCode:       res.MetricCode,
		Date:             data.NormalizeDate(date),
		DayOfWeek:        int(date.Weekday()),
		ActualValue:      *res.Value,
		Status:           StatusNoTarget,
		DataSource:       service,
		SyncStatus:       data.SyncStatusSynced,
		LastSyncedAt:     &now,
		AutoCalculated:   true,
		DataQualityScore: res.QualityScore,
		SyncMetadata:     meta.String(),
	}
	if found {
		applyTarget(row, planned)
	}

	return o.actuals.Upsert(ctx, row)
}

// applyTarget fills the planned/achievement/variance columns of row.
func applyTarget(row *data.KpiDailyActual, planned float64) {
	actual := row.ActualValue

	var achievement float64
	switch {
	case planned > 0:
		achievement = round2(actual / planned * 100)
	case actual > 0:
		achievement = 100
	}
	variance := round2(actual - planned)

	row.PlannedValue = &planned
	row.AchievementPercentage = &achievement
	row.Variance = &variance
	if planned != 0 {
		vp := round2(variance / planned * 100)
		row.VariancePercentage = &vp
	}

	row.Status = achievementStatus(achievement)
	row.IsOnTrack = row.Status != StatusRed
}

func achievementStatus(achievement float64) string {
	switch {
	case achievement >= greenThreshold:
		return StatusGreen
	case achievement >= yellowThreshold:
		return StatusYellow
	default:
		return StatusRed
	}
}
