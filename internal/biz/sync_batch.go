package biz

import (
	"context"
	"sync"
	"time"

	"SyncGuard/internal/conf"
	"SyncGuard/internal/data"
	"SyncGuard/internal/metrics"
	pkglog "SyncGuard/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Batch driver defaults
const (
	DefaultBatchSize          = 20
	DefaultMaxParallelBatches = 1
)

// SyncBatchUsecase drives a daily run over every active tenant in batches.
type SyncBatchUsecase struct {
	registry     *StrategyRegistry
	orchestrator *SyncOrchestrator
	tenants      TenantRepo
	stats        SyncStatsRepo
	monitor      *SyncMonitor
	metrics      *metrics.Metrics
	logger       *log.Helper
	events       *pkglog.LogHelper

	batchSize   int
	maxParallel int
	now         func() time.Time
}

// NewSyncBatchUsecase creates a new batch driver.
func NewSyncBatchUsecase(
	registry *StrategyRegistry,
	orchestrator *SyncOrchestrator,
	tenants TenantRepo,
	stats SyncStatsRepo,
	monitor *SyncMonitor,
	m *metrics.Metrics,
	c *conf.Sync,
	logger log.Logger,
) *SyncBatchUsecase {
	uc := &SyncBatchUsecase{
		registry:     registry,
		orchestrator: orchestrator,
		tenants:      tenants,
		stats:        stats,
		monitor:      monitor,
		metrics:      m,
		logger:       log.NewHelper(logger),
		events:       pkglog.NewLogHelper(logger),
		batchSize:    DefaultBatchSize,
		maxParallel:  DefaultMaxParallelBatches,
		now:          time.Now,
	}
	if c != nil {
		if c.BatchSize > 0 {
			uc.batchSize = c.BatchSize
		}
		if c.MaxParallelBatches > 0 {
			uc.maxParallel = c.MaxParallelBatches
		}
	}
	return uc
}

// splitBatches chunks ids into batches of at most size.
func splitBatches(ids []int64, size int) [][]int64 {
	var batches [][]int64
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

// runState is shared by the batches of one run.
type runState struct {
	mu   sync.Mutex
	info *data.RunningInfo
	date time.Time
	day  string
}

// RunDaily syncs every active tenant for date and returns the compiled run statistics.
// A failing tenant never stops its batch.
func (uc *SyncBatchUsecase) RunDaily(ctx context.Context, date time.Time) (*data.OverallStats, error) {
	runID := uuid.NewString()
	ctx = pkglog.WithRunID(ctx, runID)
	started := uc.now()
	day := data.DateKey(date)

	ids, err := uc.tenants.ListActiveTenantIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		uc.events.Sync("no active tenants, nothing to sync", "run_id", runID, "date", day)
		return &data.OverallStats{}, nil
	}

	batches := splitBatches(ids, uc.batchSize)
	uc.events.Sync("daily sync started",
		"run_id", runID,
		"date", day,
		"total_tenants", len(ids),
		"total_batches", len(batches),
		"batch_size", uc.batchSize,
		"max_parallel_batches", uc.maxParallel)

	if err := uc.stats.ClearProgress(ctx, day); err != nil {
		uc.logger.Warnw("msg", "failed to clear previous progress", "date", day, "error", err)
	}

	state := &runState{
		date: date,
		day:  day,
		info: &data.RunningInfo{
			RunID:        runID,
			StartedAt:    started,
			TotalBatches: len(batches),
			TotalTenants: len(ids),
		},
	}
	if err := uc.monitor.MarkRunning(ctx, state.info); err != nil {
		uc.logger.Warnw("msg", "failed to mark run as running", "run_id", runID, "error", err)
	}
	defer func() {
		if err := uc.monitor.MarkCompleted(context.WithoutCancel(ctx), uc.now().Sub(started)); err != nil {
			uc.logger.Warnw("msg", "failed to clear running lock", "run_id", runID, "error", err)
		}
	}()

	var g errgroup.Group
	g.SetLimit(uc.maxParallel)
	for i, batch := range batches {
		n, batch := i+1, batch
		g.Go(func() error {
			uc.runBatch(ctx, state, n, batch)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		uc.logger.Warnw("msg", "daily sync interrupted", "run_id", runID, "error", err)
		return nil, err
	}

	if _, err := uc.monitor.CheckAndAlert(ctx, date); err != nil {
		uc.logger.Warnw("msg", "health check after run failed", "run_id", runID, "error", err)
	}

	overall, err := uc.stats.GetOverallStats(ctx, day)
	if err != nil {
		return nil, err
	}
	uc.events.Sync("daily sync finished",
		"run_id", runID,
		"date", day,
		"duration_seconds", round2(uc.now().Sub(started).Seconds()))
	return overall, nil
}

func (uc *SyncBatchUsecase) runBatch(ctx context.Context, state *runState, n int, tenantIDs []int64) {
	started := uc.now()
	success, failed := 0, 0

	for _, id := range tenantIDs {
		if ctx.Err() != nil {
			return
		}
		if res, _ := uc.RunTenant(ctx, id, state.date); res != nil && res.Success {
			success++
		} else {
			failed++
		}
	}

	finished := uc.now()
	duration := finished.Sub(started)
	if err := uc.stats.SaveBatchStats(ctx, state.day, &data.BatchStats{
		BatchNumber:     n,
		TenantCount:     len(tenantIDs),
		SuccessCount:    success,
		ErrorCount:      failed,
		StartedAt:       started,
		CompletedAt:     finished,
		DurationSeconds: round2(duration.Seconds()),
	}); err != nil {
		uc.logger.Warnw("msg", "failed to save batch stats", "batch", n, "error", err)
	}

	completed, err := uc.stats.AddProgress(ctx, state.day, success, failed, duration)
	if err != nil {
		uc.logger.Errorw("msg", "failed to record batch progress", "batch", n, "error", err)
		return
	}

	state.mu.Lock()
	total := state.info.TotalBatches
	if err := uc.monitor.UpdateProgress(ctx, state.info, int(completed)); err != nil {
		uc.logger.Warnw("msg", "failed to update running lock", "batch", n, "error", err)
	}
	state.mu.Unlock()

	uc.events.SyncProgress(ctx, int(completed), total, success, failed, "batch_number", n)

	if int(completed) >= total {
		uc.compileOverall(ctx, state.day, total)
	}
}

// compileOverall turns the progress counters into the run summary read by the monitor.
func (uc *SyncBatchUsecase) compileOverall(ctx context.Context, day string, totalBatches int) {
	progress, err := uc.stats.GetProgress(ctx, day)
	if err != nil {
		uc.logger.Errorw("msg", "failed to read run progress", "date", day, "error", err)
		return
	}

	overall := &data.OverallStats{
		TotalTenants:     int(progress.TotalSuccess + progress.TotalFailed),
		TotalSuccess:     int(progress.TotalSuccess),
		TotalFailed:      int(progress.TotalFailed),
		DurationSeconds:  round2(progress.DurationSeconds),
		TotalBatches:     totalBatches,
		ProcessedBatches: int(progress.CompletedBatches),
		CompletedAt:      uc.now(),
	}
	if err := uc.stats.SaveOverallStats(ctx, day, overall); err != nil {
		uc.logger.Errorw("msg", "failed to save overall stats", "date", day, "error", err)
		return
	}
	if err := uc.stats.ClearProgress(ctx, day); err != nil {
		uc.logger.Warnw("msg", "failed to clear progress", "date", day, "error", err)
	}
}

// RunTenant syncs every registered source of one tenant. Unconnected sources are
// skipped. The returned error is the last tenant-level failure, also reflected in
// the result's Success flag.
func (uc *SyncBatchUsecase) RunTenant(ctx context.Context, tenantID int64, date time.Time) (*data.TenantResult, error) {
	result := &data.TenantResult{
		TenantID: tenantID,
		Date:     data.DateKey(date),
	}

	var tenantErr error
	for _, strategy := range uc.registry.All() {
		res, err := uc.orchestrator.SyncAll(ctx, strategy, tenantID, date)
		if err != nil && IsSourceUnavailable(err) {
			continue
		}
		if err != nil {
			tenantErr = err
			uc.logger.Warnw("msg", "tenant sync failed",
				"tenant_id", tenantID,
				"service", strategy.ServiceName(),
				"error", err)
		}
		if res != nil {
			result.Services = append(result.Services, data.ServiceOutcome{
				Service:     res.Service,
				Success:     res.Success,
				SyncedCount: res.SyncedCount,
				FailedCount: res.FailedCount,
				Errors:      res.Errors,
			})
		}
	}

	result.Success = tenantErr == nil
	result.CompletedAt = uc.now()
	if result.Success {
		uc.metrics.TenantRun(resultSuccess)
	} else {
		uc.metrics.TenantRun(resultFailed)
	}

	if err := uc.stats.SaveTenantResult(ctx, result); err != nil {
		uc.logger.Warnw("msg", "failed to save tenant result", "tenant_id", tenantID, "error", err)
	}
	return result, tenantErr
}
