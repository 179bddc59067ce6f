package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"SyncGuard/internal/biz"
	"SyncGuard/internal/conf"
	"SyncGuard/internal/data"
	"SyncGuard/internal/metrics"
	"SyncGuard/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const ctlService = "stub_api"

type ctlStrategy struct{}

func (ctlStrategy) ServiceName() string        { return ctlService }
func (ctlStrategy) SupportedMetrics() []string { return []string{"visits"} }

func (ctlStrategy) IsAvailable(context.Context, int64) (bool, error) { return true, nil }

func (ctlStrategy) SyncOneMetric(_ context.Context, _ int64, code string, _ time.Time) (*biz.MetricResult, error) {
	v := 3.0
	return &biz.MetricResult{MetricCode: code, Success: true, Value: &v, QualityScore: biz.QualityMeasured}, nil
}

type ctlFixture struct {
	svc     *service.SyncService
	stats   *data.SyncStatsRepo
	breaker *biz.CircuitBreakerUsecase
	audit   *data.AuditLoggerImpl
}

func newCtlFixture(t *testing.T) *ctlFixture {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	kv := data.NewRedisKVStore(rdb)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:ctl_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(data.OwnedModels()...))
	require.NoError(t, db.AutoMigrate(data.PlatformModels()...))

	l := log.DefaultLogger
	c := &conf.Sync{
		CircuitBreaker: &conf.CircuitBreaker{Enabled: true, FailureThreshold: 1, Timeout: time.Minute, SuccessThreshold: 1},
		RateLimiter:    &conf.RateLimiter{Window: time.Minute},
		Timezone:       "UTC",
	}
	audit, closeAudit := data.NewAuditLogger(db, l)
	t.Cleanup(closeAudit)
	notifier := data.NewLogNotifier(l)
	m := metrics.NewMetrics(metrics.NewRegistry())
	stats := data.NewSyncStatsRepo(kv, l)
	actuals := data.NewKpiActualRepo(db, l)
	tenants := data.NewTenantRepo(db, l)

	breaker := biz.NewCircuitBreakerUsecase(data.NewCircuitBreakerRepo(kv, l), audit, notifier, m, c, l)
	limiter := biz.NewRateLimiterUseCase(data.NewRateLimitRepo(kv, l), m, c, l)
	registry := biz.NewStrategyRegistry(ctlStrategy{})
	orch := biz.NewSyncOrchestrator(breaker, limiter, actuals, tenants, m, l)
	monitor := biz.NewSyncMonitor(stats, actuals, tenants, notifier, m, c, l)
	batch := biz.NewSyncBatchUsecase(registry, orch, tenants, stats, monitor, m, c, l)

	svc := service.NewSyncService(breaker, limiter, monitor, batch, registry, m, c, l)
	return &ctlFixture{svc: svc, stats: stats, breaker: breaker, audit: audit}
}

func (f *ctlFixture) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	c := &cli{newService: func(string, bool) (*service.SyncService, func(), error) {
		return f.svc, func() {}, nil
	}}
	root := newRootCommand(c)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append(args, "--operator", "tester"))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestSyncctl_Services(t *testing.T) {
	f := newCtlFixture(t)

	out, err := f.execute(t, "services")
	require.NoError(t, err)
	assert.Contains(t, out, ctlService)
}

func TestSyncctl_RejectsUnknownOutput(t *testing.T) {
	f := newCtlFixture(t)

	_, err := f.execute(t, "services", "-o", "yaml")
	assert.ErrorContains(t, err, "unsupported output")
}

func TestSyncctl_StatsJSON(t *testing.T) {
	f := newCtlFixture(t)

	out, err := f.execute(t, "stats", ctlService, "--tenant", "7", "-o", "json")
	require.NoError(t, err)

	var stats service.ServiceStats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, "business_7", stats.Scope)
	assert.Equal(t, data.CircuitClosed, stats.Circuit.State)
	assert.Equal(t, int64(0), stats.RateLimit.Used)
}

func TestSyncctl_StatsRejectsBadTenant(t *testing.T) {
	f := newCtlFixture(t)

	_, err := f.execute(t, "stats", ctlService, "--tenant", "0")
	assert.ErrorContains(t, err, "--tenant must be a positive integer")

	_, err = f.execute(t, "stats", "myspace")
	assert.Error(t, err)
}

func TestSyncctl_ResetArgs(t *testing.T) {
	f := newCtlFixture(t)

	_, err := f.execute(t, "reset")
	assert.ErrorContains(t, err, "a service name or --all is required")

	_, err = f.execute(t, "reset", ctlService, "--all")
	assert.ErrorContains(t, err, "not both")
}

func TestSyncctl_ResetClosesBreaker(t *testing.T) {
	f := newCtlFixture(t)
	ctx := context.Background()
	require.Error(t, f.breaker.Execute(ctx, ctlService, nil, func(context.Context) error {
		return fmt.Errorf("upstream timeout")
	}))

	out, err := f.execute(t, "reset", ctlService)
	require.NoError(t, err)
	assert.Contains(t, out, "Circuit breaker reset: stub_api (global)")

	state, err := f.breaker.GetState(ctx, ctlService, nil)
	require.NoError(t, err)
	assert.Equal(t, data.CircuitClosed, state)

	f.audit.Close()
	out, err = f.execute(t, "audit", ctlService, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"operator": "tester"`)
}

func TestSyncctl_ProbeSkipsClosedBreaker(t *testing.T) {
	f := newCtlFixture(t)

	out, err := f.execute(t, "probe", ctlService)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to probe")
}

func TestSyncctl_HealthUnknown(t *testing.T) {
	f := newCtlFixture(t)

	out, err := f.execute(t, "health", "--date", "2025-01-15")
	require.NoError(t, err)
	assert.Contains(t, out, "UNKNOWN")
	assert.Contains(t, out, "No run statistics stored for 2025-01-15")
}

func TestSyncctl_HealthCriticalExitsNonZero(t *testing.T) {
	f := newCtlFixture(t)
	require.NoError(t, f.stats.SaveOverallStats(context.Background(), "2025-01-15", &data.OverallStats{
		TotalTenants: 10, TotalSuccess: 2, TotalFailed: 8, DurationSeconds: 20,
	}))

	out, err := f.execute(t, "health", "--date", "2025-01-15")
	assert.ErrorIs(t, err, errHealthCritical)
	assert.Contains(t, out, "CRITICAL")
	assert.Contains(t, out, "Recommended actions:")
	assert.Contains(t, out, "list failed tenants and retry them manually")
}

func TestSyncctl_HealthInvalidDate(t *testing.T) {
	f := newCtlFixture(t)

	_, err := f.execute(t, "health", "--date", "15/01/2025")
	assert.Error(t, err)
}

func TestSyncctl_ReadCommands(t *testing.T) {
	f := newCtlFixture(t)

	for _, args := range [][]string{
		{"failed", "--date", "2025-01-15"},
		{"trends", "--days", "3"},
		{"batches", "--date", "2025-01-15"},
		{"dashboard", "--date", "2025-01-15"},
		{"running"},
	} {
		_, err := f.execute(t, args...)
		assert.NoError(t, err, strings.Join(args, " "))
	}

	out, err := f.execute(t, "running")
	require.NoError(t, err)
	assert.Contains(t, out, "No sync is running.")

	_, err = f.execute(t, "trends", "--days", "91")
	assert.Error(t, err)
}

func TestSyncctl_SyncWithoutTenants(t *testing.T) {
	f := newCtlFixture(t)

	out, err := f.execute(t, "sync", "--date", "2025-01-15")
	require.NoError(t, err)
	assert.Contains(t, out, "No active tenants to sync for 2025-01-15.")
}
