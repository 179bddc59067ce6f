package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "SyncGuard/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertMaxRetries = 3

// upsertColumns are overwritten when (business_id, kpi_code, date) already
// exists. is_verified belongs to the operator and survives a re-sync.
var upsertColumns = []string{
	"actual_value", "planned_value", "achievement_percentage", "variance",
	"variance_percentage", "status", "is_on_track", "day_of_week",
	"data_source", "sync_status", "last_synced_at", "auto_calculated",
	"data_quality_score", "sync_metadata", "updated_at",
}

// IntegrationStat is the per data source outcome of one day.
type IntegrationStat struct {
	DataSource      string  `gorm:"column:data_source" json:"data_source"`
	Synced          int64   `gorm:"column:synced" json:"synced"`
	Failed          int64   `gorm:"column:failed" json:"failed"`
	AvgQualityScore float64 `gorm:"column:avg_quality_score" json:"avg_quality_score"`
}

// KpiActualRepo persists KPI daily actuals.
type KpiActualRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewKpiActualRepo creates a new KPI actual repository.
func NewKpiActualRepo(db *gorm.DB, logger log.Logger) *KpiActualRepo {
	return &KpiActualRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// Upsert writes one actual keyed on (tenant, metric, date). A second write for the
// same triple overwrites the value columns, so the operation is idempotent.
// Deadlocks and dropped connections are retried with linear backoff.
func (r *KpiActualRepo) Upsert(ctx context.Context, row *KpiDailyActual) error {
	if row == nil {
		return fmt.Errorf("kpi actual is nil")
	}
	row.Date = NormalizeDate(row.Date)

	var err error
	for i := 0; i < upsertMaxRetries; i++ {
		err = r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "business_id"}, {Name: "kpi_code"}, {Name: "date"}},
				DoUpdates: clause.AssignmentColumns(upsertColumns),
			}).
			Create(row).Error
		if err == nil {
			return nil
		}
		if !pkgerrors.IsRetryable(err) {
			break
		}

		backoff := time.Duration(i+1) * 50 * time.Millisecond
		r.logger.Warnw("msg", "kpi upsert failed, retrying",
			"tenant_id", row.TenantID,
			"kpi_code", row.MetricCode,
			"retry", i+1,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("failed to upsert kpi %s for tenant %d: %w", row.MetricCode, row.TenantID, pkgerrors.ClassifyDBError(err))
}

// Get returns the actual for (tenant, metric, date), or nil when absent.
func (r *KpiActualRepo) Get(ctx context.Context, tenantID int64, metricCode string, date time.Time) (*KpiDailyActual, error) {
	var row KpiDailyActual
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND kpi_code = ? AND date = ?", tenantID, metricCode, NormalizeDate(date)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get kpi actual: %w", err)
	}
	return &row, nil
}

// GetPrevious returns the actual of the day before date, or nil when absent.
func (r *KpiActualRepo) GetPrevious(ctx context.Context, tenantID int64, metricCode string, date time.Time) (*KpiDailyActual, error) {
	return r.Get(ctx, tenantID, metricCode, NormalizeDate(date).AddDate(0, 0, -1))
}

// ListSyncedTenantIDs returns the tenants holding at least one synced actual for date.
func (r *KpiActualRepo) ListSyncedTenantIDs(ctx context.Context, date time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&KpiDailyActual{}).
		Distinct("business_id").
		Where("date = ? AND sync_status = ?", NormalizeDate(date), SyncStatusSynced).
		Pluck("business_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list synced tenants: %w", err)
	}
	return ids, nil
}

// LastAttempts returns the most recent last_synced_at per tenant, grouped in
// the database so the result has at most one row per tenant.
// Tenants that never synced are absent from the map.
func (r *KpiActualRepo) LastAttempts(ctx context.Context, tenantIDs []int64) (map[int64]time.Time, error) {
	result := make(map[int64]time.Time, len(tenantIDs))
	if len(tenantIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.WithContext(ctx).
		Model(&KpiDailyActual{}).
		Select("business_id, MAX(last_synced_at) AS last_synced_at").
		Where("business_id IN ? AND last_synced_at IS NOT NULL", tenantIDs).
		Group("business_id").
		Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to load last sync attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tenantID int64
			last     aggregateTime
		)
		if err := rows.Scan(&tenantID, &last); err != nil {
			return nil, fmt.Errorf("failed to scan last sync attempt: %w", err)
		}
		if !last.IsZero() {
			result[tenantID] = last.Time
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load last sync attempts: %w", err)
	}
	return result, nil
}

// aggregateTime scans MAX() over a DATETIME column. MySQL with parseTime
// returns time.Time; SQLite loses the column type on aggregates and
// returns text.
type aggregateTime struct {
	time.Time
}

var aggregateTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

// Scan implements sql.Scanner.
func (t *aggregateTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *aggregateTime) parse(s string) error {
	for _, layout := range aggregateTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

// IntegrationStats groups the day's actuals by data source.
func (r *KpiActualRepo) IntegrationStats(ctx context.Context, date time.Time) ([]IntegrationStat, error) {
	var stats []IntegrationStat
	err := r.db.WithContext(ctx).
		Model(&KpiDailyActual{}).
		Select(`data_source,
			SUM(CASE WHEN sync_status = ? THEN 1 ELSE 0 END) AS synced,
			SUM(CASE WHEN sync_status = ? THEN 1 ELSE 0 END) AS failed,
			COALESCE(AVG(data_quality_score), 0) AS avg_quality_score`, SyncStatusSynced, SyncStatusFailed).
		Where("date = ?", NormalizeDate(date)).
		Group("data_source").
		Order("data_source").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate integration stats: %w", err)
	}
	return stats, nil
}
