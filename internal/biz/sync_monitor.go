package biz

import (
	"context"
	"fmt"
	"sort"
	"time"

	"SyncGuard/internal/conf"
	"SyncGuard/internal/data"
	"SyncGuard/internal/metrics"
	"SyncGuard/internal/model"
	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// Health verdicts
const (
	HealthUnknown  = "unknown"
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// Monitor threshold defaults
const (
	DefaultSuccessRateWarning    = 80.0
	DefaultSuccessRateCritical   = 60.0
	DefaultAvgDurationWarning    = 300.0
	DefaultAvgDurationCritical   = 600.0
	DefaultFailedTenantsWarning  = 10
	DefaultFailedTenantsCritical = 30

	// MaxTrendDays bounds GetPerformanceTrends.
	MaxTrendDays = 90
)

// HealthThresholds are the bands used to grade a run.
type HealthThresholds struct {
	SuccessRateWarning    float64 `json:"success_rate_warning"`
	SuccessRateCritical   float64 `json:"success_rate_critical"`
	AvgDurationWarning    float64 `json:"avg_duration_warning"`
	AvgDurationCritical   float64 `json:"avg_duration_critical"`
	FailedTenantsWarning  int     `json:"failed_tenants_warning"`
	FailedTenantsCritical int     `json:"failed_tenants_critical"`
}

// HealthMetrics are derived from a day's overall run statistics.
type HealthMetrics struct {
	TotalTenants  int     `json:"total_tenants"`
	TotalSuccess  int     `json:"total_success"`
	FailedTenants int     `json:"failed_tenants"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDuration   float64 `json:"avg_duration"`
	TotalDuration float64 `json:"total_duration"`
}

// HealthStatus is the verdict of one day.
type HealthStatus struct {
	Date            string           `json:"date"`
	Status          string           `json:"status"`
	Metrics         *HealthMetrics   `json:"metrics,omitempty"`
	Thresholds      HealthThresholds `json:"thresholds"`
	Recommendations []string         `json:"recommendations,omitempty"`
	CheckedAt       time.Time        `json:"checked_at"`
}

// FailedTenant is an expected tenant without a synced actual for the day.
type FailedTenant struct {
	TenantID    int64      `json:"tenant_id"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
}

// TrendPoint is one day of GetPerformanceTrends.
type TrendPoint struct {
	Date          string  `json:"date"`
	TotalTenants  int     `json:"total_tenants"`
	FailedTenants int     `json:"failed_tenants"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDuration   float64 `json:"avg_duration"`
}

// IntegrationHealth is the per data source outcome of one day.
type IntegrationHealth struct {
	DataSource      string  `json:"data_source"`
	Synced          int64   `json:"synced"`
	Failed          int64   `json:"failed"`
	SuccessRate     float64 `json:"success_rate"`
	AvgQualityScore float64 `json:"avg_quality_score"`
}

// Dashboard bundles the operator views of one day.
type Dashboard struct {
	Date          string               `json:"date"`
	Health        *HealthStatus        `json:"health"`
	Running       *data.RunningInfo    `json:"running,omitempty"`
	Progress      *data.ProgressTotals `json:"progress,omitempty"`
	Integrations  []IntegrationHealth  `json:"integrations"`
	FailedTenants int                  `json:"failed_tenants"`
	Trends        []TrendPoint         `json:"trends"`
}

// SyncMonitor grades sync runs from their stored statistics and tracks the running lock.
type SyncMonitor struct {
	stats    SyncStatsRepo
	actuals  KpiActualRepo
	tenants  TenantRepo
	notifier AlertNotifier
	metrics  *metrics.Metrics
	logger   *log.Helper
	events   *pkglog.LogHelper

	thresholds HealthThresholds
	now        func() time.Time
}

// NewSyncMonitor creates a new sync monitor.
func NewSyncMonitor(
	stats SyncStatsRepo,
	actuals KpiActualRepo,
	tenants TenantRepo,
	notifier AlertNotifier,
	m *metrics.Metrics,
	c *conf.Sync,
	logger log.Logger,
) *SyncMonitor {
	t := HealthThresholds{
		SuccessRateWarning:    DefaultSuccessRateWarning,
		SuccessRateCritical:   DefaultSuccessRateCritical,
		AvgDurationWarning:    DefaultAvgDurationWarning,
		AvgDurationCritical:   DefaultAvgDurationCritical,
		FailedTenantsWarning:  DefaultFailedTenantsWarning,
		FailedTenantsCritical: DefaultFailedTenantsCritical,
	}
	if c != nil && c.Monitor != nil {
		mc := c.Monitor
		if mc.SuccessRateWarning > 0 {
			t.SuccessRateWarning = mc.SuccessRateWarning
		}
		if mc.SuccessRateCritical > 0 {
			t.SuccessRateCritical = mc.SuccessRateCritical
		}
		if mc.AvgDurationWarning > 0 {
			t.AvgDurationWarning = mc.AvgDurationWarning
		}
		if mc.AvgDurationCritical > 0 {
			t.AvgDurationCritical = mc.AvgDurationCritical
		}
		if mc.FailedTenantsWarning > 0 {
			t.FailedTenantsWarning = mc.FailedTenantsWarning
		}
		if mc.FailedTenantsCritical > 0 {
			t.FailedTenantsCritical = mc.FailedTenantsCritical
		}
	}

	return &SyncMonitor{
		stats:      stats,
		actuals:    actuals,
		tenants:    tenants,
		notifier:   notifier,
		metrics:    m,
		logger:     log.NewHelper(logger),
		events:     pkglog.NewLogHelper(logger),
		thresholds: t,
		now:        time.Now,
	}
}

// Thresholds returns the configured health bands.
func (m *SyncMonitor) Thresholds() HealthThresholds {
	return m.thresholds
}

func healthMetrics(s *data.OverallStats) *HealthMetrics {
	hm := &HealthMetrics{
		TotalTenants:  s.TotalTenants,
		TotalSuccess:  s.TotalSuccess,
		FailedTenants: s.TotalFailed,
		TotalDuration: round2(s.DurationSeconds),
	}
	if s.TotalTenants > 0 {
		hm.SuccessRate = round2(float64(s.TotalSuccess) / float64(s.TotalTenants) * 100)
		hm.AvgDuration = round2(s.DurationSeconds / float64(s.TotalTenants))
	}
	return hm
}

// grade applies the critical bands first, then the warning bands.
func (m *SyncMonitor) grade(hm *HealthMetrics) string {
	t := m.thresholds
	switch {
	case hm.SuccessRate < t.SuccessRateCritical,
		hm.AvgDuration > t.AvgDurationCritical,
		hm.FailedTenants > t.FailedTenantsCritical:
		return HealthCritical
	case hm.SuccessRate < t.SuccessRateWarning,
		hm.AvgDuration > t.AvgDurationWarning,
		hm.FailedTenants > t.FailedTenantsWarning:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

func (m *SyncMonitor) recommendations(hm *HealthMetrics) []string {
	t := m.thresholds
	recs := []string{
		"check application logs for sync errors",
		"check circuit breaker stats of every service",
		"list failed tenants and retry them manually",
	}
	if hm.SuccessRate < t.SuccessRateCritical {
		recs = append(recs, fmt.Sprintf("success rate %.2f%% is below %.0f%%: verify source connections", hm.SuccessRate, t.SuccessRateCritical))
	}
	if hm.AvgDuration > t.AvgDurationCritical {
		recs = append(recs, fmt.Sprintf("average duration %.2fs exceeds %.0fs: check rate limiter usage and database load", hm.AvgDuration, t.AvgDurationCritical))
	}
	if hm.FailedTenants > t.FailedTenantsCritical {
		recs = append(recs, fmt.Sprintf("%d tenants failed: check whether a breaker is open", hm.FailedTenants))
	}
	return recs
}

func healthGauge(status string) int {
	switch status {
	case HealthHealthy:
		return metrics.HealthHealthy
	case HealthWarning:
		return metrics.HealthWarning
	case HealthCritical:
		return metrics.HealthCritical
	default:
		return metrics.HealthUnknown
	}
}

// GetHealthStatus grades the run of date. No statistics for the date yields unknown.
func (m *SyncMonitor) GetHealthStatus(ctx context.Context, date time.Time) (*HealthStatus, error) {
	day := data.DateKey(date)
	hs := &HealthStatus{
		Date:       day,
		Status:     HealthUnknown,
		Thresholds: m.thresholds,
		CheckedAt:  m.now(),
	}

	overall, err := m.stats.GetOverallStats(ctx, day)
	if err != nil {
		return nil, err
	}
	if overall != nil {
		hs.Metrics = healthMetrics(overall)
		hs.Status = m.grade(hs.Metrics)
		if hs.Status == HealthCritical {
			hs.Recommendations = m.recommendations(hs.Metrics)
		}
	}

	m.metrics.SetHealth(healthGauge(hs.Status))
	return hs, nil
}

// GetBatchStats returns every stored batch record of date, in batch order.
func (m *SyncMonitor) GetBatchStats(ctx context.Context, date time.Time) ([]*data.BatchStats, error) {
	day := data.DateKey(date)

	overall, err := m.stats.GetOverallStats(ctx, day)
	if err != nil {
		return nil, err
	}

	var out []*data.BatchStats
	for n := 1; ; n++ {
		if overall != nil && n > overall.TotalBatches {
			break
		}
		b, err := m.stats.GetBatchStats(ctx, day, n)
		if err != nil {
			return nil, err
		}
		if b == nil {
			// runs still in flight have no overall record; stop at the first gap
			if overall == nil {
				break
			}
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// GetFailedTenants returns the tenants with an active configuration but no synced
// actual for date, with their latest attempt from one batched query.
func (m *SyncMonitor) GetFailedTenants(ctx context.Context, date time.Time) ([]FailedTenant, error) {
	expected, err := m.tenants.ListActiveTenantIDs(ctx)
	if err != nil {
		return nil, err
	}
	synced, err := m.actuals.ListSyncedTenantIDs(ctx, date)
	if err != nil {
		return nil, err
	}

	done := make(map[int64]struct{}, len(synced))
	for _, id := range synced {
		done[id] = struct{}{}
	}

	var missing []int64
	for _, id := range expected {
		if _, ok := done[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return []FailedTenant{}, nil
	}

	attempts, err := m.actuals.LastAttempts(ctx, missing)
	if err != nil {
		return nil, err
	}

	out := make([]FailedTenant, 0, len(missing))
	for _, id := range missing {
		ft := FailedTenant{TenantID: id}
		if at, ok := attempts[id]; ok {
			at := at
			ft.LastAttempt = &at
		}
		out = append(out, ft)
	}
	return out, nil
}

// GetPerformanceTrends returns the last days (today included), oldest first, skipping
// days without statistics.
func (m *SyncMonitor) GetPerformanceTrends(ctx context.Context, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = 7
	}
	if days > MaxTrendDays {
		days = MaxTrendDays
	}

	today := data.NormalizeDate(m.now())
	out := make([]TrendPoint, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := data.DateKey(today.AddDate(0, 0, -i))
		overall, err := m.stats.GetOverallStats(ctx, day)
		if err != nil {
			return nil, err
		}
		if overall == nil {
			continue
		}
		hm := healthMetrics(overall)
		out = append(out, TrendPoint{
			Date:          day,
			TotalTenants:  hm.TotalTenants,
			FailedTenants: hm.FailedTenants,
			SuccessRate:   hm.SuccessRate,
			AvgDuration:   hm.AvgDuration,
		})
	}
	return out, nil
}

// GetIntegrationStats reports per data source outcomes of date.
func (m *SyncMonitor) GetIntegrationStats(ctx context.Context, date time.Time) ([]IntegrationHealth, error) {
	rows, err := m.actuals.IntegrationStats(ctx, date)
	if err != nil {
		return nil, err
	}

	out := make([]IntegrationHealth, 0, len(rows))
	for _, r := range rows {
		ih := IntegrationHealth{
			DataSource:      r.DataSource,
			Synced:          r.Synced,
			Failed:          r.Failed,
			AvgQualityScore: round2(r.AvgQualityScore),
		}
		if total := r.Synced + r.Failed; total > 0 {
			ih.SuccessRate = round2(float64(r.Synced) / float64(total) * 100)
		}
		out = append(out, ih)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataSource < out[j].DataSource })
	return out, nil
}

// GetDashboard bundles health, running state, progress, integrations and a weekly trend.
func (m *SyncMonitor) GetDashboard(ctx context.Context, date time.Time) (*Dashboard, error) {
	health, err := m.GetHealthStatus(ctx, date)
	if err != nil {
		return nil, err
	}
	running, err := m.stats.GetRunning(ctx)
	if err != nil {
		return nil, err
	}
	integrations, err := m.GetIntegrationStats(ctx, date)
	if err != nil {
		return nil, err
	}
	failed, err := m.GetFailedTenants(ctx, date)
	if err != nil {
		return nil, err
	}
	trends, err := m.GetPerformanceTrends(ctx, 7)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		Date:          data.DateKey(date),
		Health:        health,
		Running:       running,
		Integrations:  integrations,
		FailedTenants: len(failed),
		Trends:        trends,
	}
	if running != nil {
		if d.Progress, err = m.stats.GetProgress(ctx, data.DateKey(date)); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// IsRunning reports the running lock and its payload.
func (m *SyncMonitor) IsRunning(ctx context.Context) (bool, *data.RunningInfo, error) {
	info, err := m.stats.GetRunning(ctx)
	if err != nil {
		return false, nil, err
	}
	return info != nil, info, nil
}

// MarkRunning sets the running lock. An existing lock is overwritten and logged: the
// lock is advisory and does not prevent overlapping runs.
func (m *SyncMonitor) MarkRunning(ctx context.Context, info *data.RunningInfo) error {
	if prev, err := m.stats.GetRunning(ctx); err == nil && prev != nil {
		m.events.Monitor("another sync run is marked running, runs overlap",
			"run_id", info.RunID,
			"previous_run_id", prev.RunID,
			"previous_started_at", prev.StartedAt)
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = m.now()
	}
	m.metrics.RunStarted()
	return m.stats.SetRunning(ctx, info)
}

// UpdateProgress rewrites the running lock payload with the completed batch count.
func (m *SyncMonitor) UpdateProgress(ctx context.Context, info *data.RunningInfo, completedBatches int) error {
	info.CurrentBatch = completedBatches
	if info.TotalBatches > 0 {
		info.ProgressPercentage = round2(float64(completedBatches) / float64(info.TotalBatches) * 100)
	}
	return m.stats.SetRunning(ctx, info)
}

// MarkCompleted clears the running lock.
func (m *SyncMonitor) MarkCompleted(ctx context.Context, duration time.Duration) error {
	m.metrics.RunFinished(duration.Seconds())
	return m.stats.ClearRunning(ctx)
}

// CheckAndAlert grades date and logs the verdict; a critical verdict also goes to the
// alert notifier.
func (m *SyncMonitor) CheckAndAlert(ctx context.Context, date time.Time) (*HealthStatus, error) {
	hs, err := m.GetHealthStatus(ctx, date)
	if err != nil {
		return nil, err
	}

	switch hs.Status {
	case HealthCritical:
		m.events.Alert("sync health critical",
			"date", hs.Date,
			"success_rate", hs.Metrics.SuccessRate,
			"avg_duration", hs.Metrics.AvgDuration,
			"failed_tenants", hs.Metrics.FailedTenants,
			"recommendations", hs.Recommendations)
		event := &model.SyncAlertEvent{
			Date:            hs.Date,
			Status:          hs.Status,
			SuccessRate:     hs.Metrics.SuccessRate,
			AvgDuration:     hs.Metrics.AvgDuration,
			FailedTenants:   hs.Metrics.FailedTenants,
			Recommendations: hs.Recommendations,
		}
		if err := m.notifier.NotifySyncAlert(ctx, event); err != nil {
			m.logger.Warnw("msg", "failed to send sync alert", "date", hs.Date, "error", err)
		}
	case HealthWarning:
		m.logger.Warnw("msg", "sync health warning",
			"date", hs.Date,
			"success_rate", hs.Metrics.SuccessRate,
			"avg_duration", hs.Metrics.AvgDuration,
			"failed_tenants", hs.Metrics.FailedTenants)
	case HealthHealthy:
		m.events.Monitor("sync health ok",
			"date", hs.Date,
			"success_rate", hs.Metrics.SuccessRate)
	default:
		m.logger.Warnw("msg", "no sync statistics for date", "date", hs.Date)
	}
	return hs, nil
}
