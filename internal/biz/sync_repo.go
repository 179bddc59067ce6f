package biz

import (
	"context"
	"time"

	"SyncGuard/internal/data"
)

// KpiActualRepo defines the persistence of KPI daily actuals.
// Implementation is in data layer (data.KpiActualRepo).
type KpiActualRepo interface {
	Upsert(ctx context.Context, row *data.KpiDailyActual) error
	GetPrevious(ctx context.Context, tenantID int64, metricCode string, date time.Time) (*data.KpiDailyActual, error)
	ListSyncedTenantIDs(ctx context.Context, date time.Time) ([]int64, error)
	LastAttempts(ctx context.Context, tenantIDs []int64) (map[int64]time.Time, error)
	IntegrationStats(ctx context.Context, date time.Time) ([]data.IntegrationStat, error)
}

// ActualHistory reads earlier actuals; growth metrics compare against the previous day.
type ActualHistory interface {
	GetPrevious(ctx context.Context, tenantID int64, metricCode string, date time.Time) (*data.KpiDailyActual, error)
}

// TenantRepo reads tenants and their KPI targets.
// Implementation is in data layer (data.TenantRepo).
type TenantRepo interface {
	ListActiveTenantIDs(ctx context.Context) ([]int64, error)
	GetTenant(ctx context.Context, tenantID int64) (*data.Business, error)
	PlannedValue(ctx context.Context, tenantID int64, metricCode string) (float64, bool, error)
}

// InstagramMirror reads mirrored Instagram records.
type InstagramMirror interface {
	ActiveInstagramAccount(ctx context.Context, tenantID int64) (*data.InstagramBusinessAccount, error)
	InstagramPosts(ctx context.Context, accountID int64, date time.Time) ([]data.InstagramPost, error)
	InstagramStories(ctx context.Context, accountID int64, date time.Time) ([]data.InstagramStory, error)
}

// FacebookMirror reads mirrored Facebook records.
type FacebookMirror interface {
	ActiveFacebookPage(ctx context.Context, tenantID int64) (*data.FacebookPage, error)
	FacebookPosts(ctx context.Context, pageID int64, date time.Time) ([]data.FacebookPost, error)
	FacebookAdInsights(ctx context.Context, pageID int64, date time.Time) ([]data.FacebookAdInsight, error)
}

// PosMirror reads mirrored point-of-sale records.
type PosMirror interface {
	ActiveIntegration(ctx context.Context, tenantID int64, integrationType string) (*data.Integration, error)
	PosTransactions(ctx context.Context, tenantID int64, date time.Time) ([]data.PosTransaction, error)
	PosItems(ctx context.Context, transactionIDs []int64) ([]data.PosTransactionItem, error)
	ActiveTableCount(ctx context.Context, tenantID int64) (int64, error)
	LaborCost(ctx context.Context, tenantID int64, date time.Time) (float64, error)
}

// SyncStatsRepo stores run statistics in the shared KV store.
// Implementation is in data layer (data.SyncStatsRepo).
type SyncStatsRepo interface {
	SaveBatchStats(ctx context.Context, date string, stats *data.BatchStats) error
	GetBatchStats(ctx context.Context, date string, n int) (*data.BatchStats, error)
	AddProgress(ctx context.Context, date string, success, failed int, duration time.Duration) (int64, error)
	GetProgress(ctx context.Context, date string) (*data.ProgressTotals, error)
	ClearProgress(ctx context.Context, date string) error
	SaveOverallStats(ctx context.Context, date string, stats *data.OverallStats) error
	GetOverallStats(ctx context.Context, date string) (*data.OverallStats, error)
	SetRunning(ctx context.Context, info *data.RunningInfo) error
	GetRunning(ctx context.Context) (*data.RunningInfo, error)
	ClearRunning(ctx context.Context) error
	SaveTenantResult(ctx context.Context, result *data.TenantResult) error
	GetTenantResult(ctx context.Context, tenantID int64, date string) (*data.TenantResult, error)
}
