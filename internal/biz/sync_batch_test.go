package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"SyncGuard/internal/conf"
	"SyncGuard/internal/data"
	"SyncGuard/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// tenantFailStrategy fails every metric of one tenant.
type tenantFailStrategy struct {
	fakeStrategy
	failTenant int64
}

func (s *tenantFailStrategy) SyncOneMetric(ctx context.Context, tenantID int64, code string, date time.Time) (*MetricResult, error) {
	if tenantID == s.failTenant {
		return nil, errors.New("mirror unreachable")
	}
	return s.fakeStrategy.SyncOneMetric(ctx, tenantID, code, date)
}

type batchFixture struct {
	uc      *SyncBatchUsecase
	stats   *data.SyncStatsRepo
	tenants *MockTenantRepo
	actuals *MockKpiActualRepo
	metrics *metrics.Metrics
}

func newBatchFixture(t *testing.T, strategies ...SyncStrategy) *batchFixture {
	kv, _ := setupTestKV(t)
	audit, notifier := newPermissiveAudit()
	c := &conf.Sync{
		CircuitBreaker: &conf.CircuitBreaker{Enabled: true, FailureThreshold: 5, Timeout: time.Minute, SuccessThreshold: 1},
		RateLimiter:    &conf.RateLimiter{Window: time.Minute},
		BatchSize:      2,
	}
	m := metrics.NewMetrics(metrics.NewRegistry())
	stats := data.NewSyncStatsRepo(kv, testLogger())
	actuals := new(MockKpiActualRepo)
	tenants := new(MockTenantRepo)

	breaker := NewCircuitBreakerUsecase(data.NewCircuitBreakerRepo(kv, testLogger()), audit, notifier, m, c, testLogger())
	limiter := NewRateLimiterUseCase(data.NewRateLimitRepo(kv, testLogger()), m, c, testLogger())
	orch := NewSyncOrchestrator(breaker, limiter, actuals, tenants, m, testLogger())
	monitor := NewSyncMonitor(stats, actuals, tenants, notifier, m, c, testLogger())

	uc := NewSyncBatchUsecase(NewStrategyRegistry(strategies...), orch, tenants, stats, monitor, m, c, testLogger())
	return &batchFixture{uc: uc, stats: stats, tenants: tenants, actuals: actuals, metrics: m}
}

func TestSplitBatches(t *testing.T) {
	assert.Nil(t, splitBatches(nil, 20))
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, splitBatches([]int64{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int64{{1, 2}}, splitBatches([]int64{1, 2}, 20))
}

func TestRunDaily_CompilesOverallStats(t *testing.T) {
	strategy := &tenantFailStrategy{
		fakeStrategy: fakeStrategy{service: fakeService, available: true, codes: []string{"a"}, values: map[string]float64{"a": 1}},
		failTenant:   2,
	}
	f := newBatchFixture(t, strategy)
	ctx := context.Background()

	f.tenants.On("ListActiveTenantIDs", mock.Anything).Return([]int64{1, 2, 3}, nil)
	f.tenants.On("PlannedValue", mock.Anything, mock.Anything, mock.Anything).Return(0.0, false, nil)
	f.actuals.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	overall, err := f.uc.RunDaily(ctx, syncDate)
	require.NoError(t, err)
	require.NotNil(t, overall)
	assert.Equal(t, 3, overall.TotalTenants)
	assert.Equal(t, 2, overall.TotalSuccess)
	assert.Equal(t, 1, overall.TotalFailed)
	assert.Equal(t, 2, overall.TotalBatches)
	assert.Equal(t, 2, overall.ProcessedBatches)

	day := data.DateKey(syncDate)
	b1, err := f.stats.GetBatchStats(ctx, day, 1)
	require.NoError(t, err)
	require.NotNil(t, b1)
	assert.Equal(t, 2, b1.TenantCount)
	assert.Equal(t, 1, b1.SuccessCount)
	assert.Equal(t, 1, b1.ErrorCount)

	b2, err := f.stats.GetBatchStats(ctx, day, 2)
	require.NoError(t, err)
	require.NotNil(t, b2)
	assert.Equal(t, 1, b2.TenantCount)

	running, err := f.stats.GetRunning(ctx)
	require.NoError(t, err)
	assert.Nil(t, running)

	failed, err := f.stats.GetTenantResult(ctx, 2, day)
	require.NoError(t, err)
	require.NotNil(t, failed)
	assert.False(t, failed.Success)
	require.Len(t, failed.Services, 1)
	assert.Equal(t, 1, failed.Services[0].FailedCount)

	ok, err := f.stats.GetTenantResult(ctx, 3, day)
	require.NoError(t, err)
	require.NotNil(t, ok)
	assert.True(t, ok.Success)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.TenantRuns.WithLabelValues(resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TenantRuns.WithLabelValues(resultFailed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.RunInProgress))
}

func TestRunDaily_NoTenants(t *testing.T) {
	f := newBatchFixture(t)
	f.tenants.On("ListActiveTenantIDs", mock.Anything).Return([]int64{}, nil)

	overall, err := f.uc.RunDaily(context.Background(), syncDate)
	require.NoError(t, err)
	assert.Zero(t, overall.TotalTenants)

	stored, err := f.stats.GetOverallStats(context.Background(), data.DateKey(syncDate))
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRunDaily_ListTenantsError(t *testing.T) {
	f := newBatchFixture(t)
	f.tenants.On("ListActiveTenantIDs", mock.Anything).Return(nil, errors.New("db down"))

	_, err := f.uc.RunDaily(context.Background(), syncDate)
	assert.EqualError(t, err, "db down")
}

func TestRunDaily_Cancelled(t *testing.T) {
	f := newBatchFixture(t, &fakeStrategy{service: fakeService, available: true})
	f.tenants.On("ListActiveTenantIDs", mock.Anything).Return([]int64{1, 2, 3}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.uc.RunDaily(ctx, syncDate)
	assert.ErrorIs(t, err, context.Canceled)

	running, err := f.stats.GetRunning(context.Background())
	require.NoError(t, err)
	assert.Nil(t, running)
}

func TestRunTenant_SkipsUnavailableSources(t *testing.T) {
	offline := &fakeStrategy{service: "offline_api", available: false, codes: []string{"x"}}
	online := &fakeStrategy{service: fakeService, available: true, codes: []string{"a"}, values: map[string]float64{"a": 3}}
	f := newBatchFixture(t, offline, online)
	f.tenants.On("PlannedValue", mock.Anything, mock.Anything, mock.Anything).Return(0.0, false, nil)
	f.actuals.On("Upsert", mock.Anything, mock.Anything).Return(nil)

	res, err := f.uc.RunTenant(context.Background(), 8, syncDate)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Services, 1)
	assert.Equal(t, fakeService, res.Services[0].Service)
	assert.Equal(t, 1, res.Services[0].SyncedCount)
	assert.Empty(t, offline.calls)
}

func TestRunTenant_NothingConnectedStillSucceeds(t *testing.T) {
	f := newBatchFixture(t, &fakeStrategy{service: fakeService, available: false})

	res, err := f.uc.RunTenant(context.Background(), 8, syncDate)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Services)
}
