package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"gorm.io/gorm"
)

const (
	configStatusActive = "active"
	targetPeriodDaily  = "daily"

	plannedCacheSize = 4096
	plannedCacheTTL  = 10 * time.Minute
)

// plannedValue caches a lookup result; Found=false caches "no target".
type plannedValue struct {
	Value float64
	Found bool
}

// TenantRepo reads tenant configuration owned by the platform.
type TenantRepo struct {
	db      *gorm.DB
	planned *expirable.LRU[string, plannedValue]
	logger  *log.Helper
}

// NewTenantRepo creates a new tenant repository.
func NewTenantRepo(db *gorm.DB, logger log.Logger) *TenantRepo {
	return &TenantRepo{
		db:      db,
		planned: expirable.NewLRU[string, plannedValue](plannedCacheSize, nil, plannedCacheTTL),
		logger:  log.NewHelper(logger),
	}
}

// ListActiveTenantIDs returns tenants with an active KPI configuration, ascending.
func (r *TenantRepo) ListActiveTenantIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&BusinessKpiConfiguration{}).
		Distinct("business_id").
		Where("status = ?", configStatusActive).
		Order("business_id").
		Pluck("business_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}
	return ids, nil
}

// GetTenant returns the tenant row, or nil when it does not exist.
func (r *TenantRepo) GetTenant(ctx context.Context, tenantID int64) (*Business, error) {
	var b Business
	err := r.db.WithContext(ctx).Where("id = ?", tenantID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant %d: %w", tenantID, err)
	}
	return &b, nil
}

// PlannedValue returns the active daily target for a metric. ok is false when the
// tenant has none. Results, including misses, are cached for a few minutes.
func (r *TenantRepo) PlannedValue(ctx context.Context, tenantID int64, metricCode string) (float64, bool, error) {
	key := strconv.FormatInt(tenantID, 10) + ":" + metricCode
	if cached, hit := r.planned.Get(key); hit {
		return cached.Value, cached.Found, nil
	}

	var target KpiTarget
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND kpi_key = ? AND period_type = ? AND status = ?",
			tenantID, metricCode, targetPeriodDaily, configStatusActive).
		Order("id DESC").
		First(&target).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.planned.Add(key, plannedValue{})
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get kpi target: %w", err)
	}

	r.planned.Add(key, plannedValue{Value: target.TargetValue, Found: true})
	return target.TargetValue, true, nil
}
