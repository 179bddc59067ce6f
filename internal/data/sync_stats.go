package data

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// DateLayout is the calendar date format used in keys and APIs.
const DateLayout = "2006-01-02"

// BatchStats is written once per processed batch.
type BatchStats struct {
	BatchNumber     int       `json:"batch_number"`
	TenantCount     int       `json:"tenant_count"`
	SuccessCount    int       `json:"success_count"`
	ErrorCount      int       `json:"error_count"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// OverallStats aggregates a whole run; the monitor reads only this record.
type OverallStats struct {
	TotalTenants     int       `json:"total_tenants"`
	TotalSuccess     int       `json:"total_success"`
	TotalFailed      int       `json:"total_failed"`
	DurationSeconds  float64   `json:"duration_seconds"`
	TotalBatches     int       `json:"total_batches"`
	ProcessedBatches int       `json:"processed_batches"`
	CompletedAt      time.Time `json:"completed_at"`
}

// RunningInfo is the payload of the advisory running lock.
type RunningInfo struct {
	RunID              string    `json:"run_id"`
	StartedAt          time.Time `json:"started_at"`
	CurrentBatch       int       `json:"current_batch"`
	TotalBatches       int       `json:"total_batches"`
	TotalTenants       int       `json:"total_tenants"`
	ProgressPercentage float64   `json:"progress_percentage"`
}

// ServiceOutcome is one strategy's result inside a tenant run.
type ServiceOutcome struct {
	Service     string   `json:"service"`
	Success     bool     `json:"success"`
	SyncedCount int      `json:"synced_count"`
	FailedCount int      `json:"failed_count"`
	Errors      []string `json:"errors,omitempty"`
}

// TenantResult is the per-tenant record of one run.
type TenantResult struct {
	TenantID    int64            `json:"tenant_id"`
	Date        string           `json:"date"`
	Success     bool             `json:"success"`
	Services    []ServiceOutcome `json:"services"`
	CompletedAt time.Time        `json:"completed_at"`
}

// ProgressTotals are the atomically accumulated counters of a run in flight.
type ProgressTotals struct {
	CompletedBatches int64
	TotalSuccess     int64
	TotalFailed      int64
	DurationSeconds  float64
}

const (
	progressCompleted = "completed_batches"
	progressSuccess   = "total_success"
	progressFailed    = "total_failed"
	progressDuration  = "duration_seconds"
)

// SyncStatsRepo stores run statistics in the shared KV store.
type SyncStatsRepo struct {
	kv     KVStore
	logger *log.Helper
}

// NewSyncStatsRepo creates a new sync statistics repository.
func NewSyncStatsRepo(kv KVStore, logger log.Logger) *SyncStatsRepo {
	return &SyncStatsRepo{
		kv:     kv,
		logger: log.NewHelper(logger),
	}
}

// DateKey formats t as a calendar date.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

func batchKey(date string, n int) string {
	return BuildKey(KeyPrefixBatchStats, date, "batch_"+strconv.Itoa(n))
}

func progressKey(date, field string) string {
	return BuildKey(KeyPrefixProgress, date, field)
}

func resultKey(tenantID int64, date string) string {
	return BuildKey(KeyPrefixResults, "business_"+strconv.FormatInt(tenantID, 10), date)
}

// getOptional decodes key into dest and reports whether it existed.
func (r *SyncStatsRepo) getOptional(ctx context.Context, key string, dest interface{}) (bool, error) {
	if err := r.kv.Get(ctx, key, dest); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SaveBatchStats writes one batch record.
func (r *SyncStatsRepo) SaveBatchStats(ctx context.Context, date string, stats *BatchStats) error {
	if err := r.kv.Set(ctx, batchKey(date, stats.BatchNumber), stats, TTLBatchStats); err != nil {
		return fmt.Errorf("failed to save batch stats: %w", err)
	}
	return nil
}

// GetBatchStats returns batch n of date, or nil.
func (r *SyncStatsRepo) GetBatchStats(ctx context.Context, date string, n int) (*BatchStats, error) {
	var stats BatchStats
	ok, err := r.getOptional(ctx, batchKey(date, n), &stats)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch stats: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &stats, nil
}

// AddProgress folds one finished batch into the run counters and returns how many
// batches have completed so far. Duration is accumulated in milliseconds so every
// step is an integer increment.
func (r *SyncStatsRepo) AddProgress(ctx context.Context, date string, success, failed int, duration time.Duration) (int64, error) {
	incr := func(field string, by int64) (int64, error) {
		key := progressKey(date, field)
		n, err := r.kv.Incr(ctx, key, by)
		if err != nil {
			return 0, err
		}
		if err := r.kv.Expire(ctx, key, TTLProgress); err != nil {
			r.logger.Warnw("msg", "failed to set progress ttl", "key", key, "error", err)
		}
		return n, nil
	}

	if _, err := incr(progressSuccess, int64(success)); err != nil {
		return 0, fmt.Errorf("failed to add success progress: %w", err)
	}
	if _, err := incr(progressFailed, int64(failed)); err != nil {
		return 0, fmt.Errorf("failed to add failure progress: %w", err)
	}
	if _, err := incr(progressDuration, duration.Milliseconds()); err != nil {
		return 0, fmt.Errorf("failed to add duration progress: %w", err)
	}
	// last, so a reader that sees the final count also sees every other counter
	completed, err := incr(progressCompleted, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to add batch progress: %w", err)
	}
	return completed, nil
}

// GetProgress reads the run counters of date.
func (r *SyncStatsRepo) GetProgress(ctx context.Context, date string) (*ProgressTotals, error) {
	read := func(field string) (int64, error) {
		var n int64
		if _, err := r.getOptional(ctx, progressKey(date, field), &n); err != nil {
			return 0, err
		}
		return n, nil
	}

	totals := &ProgressTotals{}
	var err error
	if totals.CompletedBatches, err = read(progressCompleted); err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	if totals.TotalSuccess, err = read(progressSuccess); err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	if totals.TotalFailed, err = read(progressFailed); err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	ms, err := read(progressDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}
	totals.DurationSeconds = float64(ms) / 1000
	return totals, nil
}

// ClearProgress removes the run counters of date so a rerun starts from zero.
func (r *SyncStatsRepo) ClearProgress(ctx context.Context, date string) error {
	keys := []string{
		progressKey(date, progressCompleted),
		progressKey(date, progressSuccess),
		progressKey(date, progressFailed),
		progressKey(date, progressDuration),
	}
	if err := r.kv.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("failed to clear progress: %w", err)
	}
	return nil
}

// SaveOverallStats writes the run summary of date.
func (r *SyncStatsRepo) SaveOverallStats(ctx context.Context, date string, stats *OverallStats) error {
	if err := r.kv.Set(ctx, BuildKey(KeyPrefixOverallStats, date), stats, TTLOverallStats); err != nil {
		return fmt.Errorf("failed to save overall stats: %w", err)
	}
	return nil
}

// GetOverallStats returns the run summary of date, or nil when no run completed.
func (r *SyncStatsRepo) GetOverallStats(ctx context.Context, date string) (*OverallStats, error) {
	var stats OverallStats
	ok, err := r.getOptional(ctx, BuildKey(KeyPrefixOverallStats, date), &stats)
	if err != nil {
		return nil, fmt.Errorf("failed to get overall stats: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &stats, nil
}

// SetRunning writes the running lock. It is advisory and expires on its own.
func (r *SyncStatsRepo) SetRunning(ctx context.Context, info *RunningInfo) error {
	if err := r.kv.Set(ctx, KeyRunning, info, TTLRunningLock); err != nil {
		return fmt.Errorf("failed to set running lock: %w", err)
	}
	return nil
}

// GetRunning returns the running lock payload, or nil when no run is marked.
func (r *SyncStatsRepo) GetRunning(ctx context.Context) (*RunningInfo, error) {
	var info RunningInfo
	ok, err := r.getOptional(ctx, KeyRunning, &info)
	if err != nil {
		return nil, fmt.Errorf("failed to get running lock: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// ClearRunning removes the running lock.
func (r *SyncStatsRepo) ClearRunning(ctx context.Context) error {
	if err := r.kv.Delete(ctx, KeyRunning); err != nil {
		return fmt.Errorf("failed to clear running lock: %w", err)
	}
	return nil
}

// SaveTenantResult writes one tenant's outcome of date.
func (r *SyncStatsRepo) SaveTenantResult(ctx context.Context, result *TenantResult) error {
	if err := r.kv.Set(ctx, resultKey(result.TenantID, result.Date), result, TTLResults); err != nil {
		return fmt.Errorf("failed to save tenant result: %w", err)
	}
	return nil
}

// GetTenantResult returns one tenant's outcome of date, or nil.
func (r *SyncStatsRepo) GetTenantResult(ctx context.Context, tenantID int64, date string) (*TenantResult, error) {
	var result TenantResult
	ok, err := r.getOptional(ctx, resultKey(tenantID, date), &result)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant result: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &result, nil
}
