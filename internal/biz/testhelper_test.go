package biz

import (
	"context"
	"testing"
	"time"

	"SyncGuard/internal/data"
	"SyncGuard/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
)

func testLogger() log.Logger {
	return log.DefaultLogger
}

// setupTestKV returns a Redis-backed KV store over miniredis.
func setupTestKV(t *testing.T) (data.KVStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return data.NewRedisKVStore(rdb), mr
}

// MockAuditLogger is a mock implementation of AuditLogger.
type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) LogCircuitEvent(ctx context.Context, event *model.CircuitEvent) {
	m.Called(ctx, event)
}

func (m *MockAuditLogger) ListRecent(ctx context.Context, service string, limit int) ([]model.AuditEntry, error) {
	args := m.Called(ctx, service, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditEntry), args.Error(1)
}

// MockAlertNotifier is a mock implementation of AlertNotifier.
type MockAlertNotifier struct {
	mock.Mock
}

func (m *MockAlertNotifier) NotifyCircuitOpened(ctx context.Context, event *model.CircuitEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockAlertNotifier) NotifyCircuitRecovered(ctx context.Context, event *model.CircuitEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockAlertNotifier) NotifySyncAlert(ctx context.Context, event *model.SyncAlertEvent) error {
	return m.Called(ctx, event).Error(0)
}

// newPermissiveAudit accepts every call.
func newPermissiveAudit() (*MockAuditLogger, *MockAlertNotifier) {
	audit := new(MockAuditLogger)
	audit.On("LogCircuitEvent", mock.Anything, mock.Anything).Maybe()
	audit.On("ListRecent", mock.Anything, mock.Anything, mock.Anything).Return([]model.AuditEntry{}, nil).Maybe()

	notifier := new(MockAlertNotifier)
	notifier.On("NotifyCircuitOpened", mock.Anything, mock.Anything).Return(nil).Maybe()
	notifier.On("NotifyCircuitRecovered", mock.Anything, mock.Anything).Return(nil).Maybe()
	notifier.On("NotifySyncAlert", mock.Anything, mock.Anything).Return(nil).Maybe()
	return audit, notifier
}

func auditAction(action string) interface{} {
	return mock.MatchedBy(func(e *model.CircuitEvent) bool { return e.Action == action })
}

// MockKpiActualRepo is a mock implementation of KpiActualRepo and ActualHistory.
type MockKpiActualRepo struct {
	mock.Mock
}

func (m *MockKpiActualRepo) Upsert(ctx context.Context, row *data.KpiDailyActual) error {
	return m.Called(ctx, row).Error(0)
}

func (m *MockKpiActualRepo) GetPrevious(ctx context.Context, tenantID int64, metricCode string, date time.Time) (*data.KpiDailyActual, error) {
	args := m.Called(ctx, tenantID, metricCode, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.KpiDailyActual), args.Error(1)
}

func (m *MockKpiActualRepo) ListSyncedTenantIDs(ctx context.Context, date time.Time) ([]int64, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockKpiActualRepo) LastAttempts(ctx context.Context, tenantIDs []int64) (map[int64]time.Time, error) {
	args := m.Called(ctx, tenantIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]time.Time), args.Error(1)
}

func (m *MockKpiActualRepo) IntegrationStats(ctx context.Context, date time.Time) ([]data.IntegrationStat, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]data.IntegrationStat), args.Error(1)
}

// MockTenantRepo is a mock implementation of TenantRepo.
type MockTenantRepo struct {
	mock.Mock
}

func (m *MockTenantRepo) ListActiveTenantIDs(ctx context.Context) ([]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockTenantRepo) GetTenant(ctx context.Context, tenantID int64) (*data.Business, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Business), args.Error(1)
}

func (m *MockTenantRepo) PlannedValue(ctx context.Context, tenantID int64, metricCode string) (float64, bool, error) {
	args := m.Called(ctx, tenantID, metricCode)
	return args.Get(0).(float64), args.Bool(1), args.Error(2)
}

// fakeStrategy computes metrics from a fixed table. A code missing from values is
// reported as insufficient; a code in errs fails.
type fakeStrategy struct {
	service   string
	available bool
	codes     []string
	values    map[string]float64
	errs      map[string]error
	calls     []string
}

func (f *fakeStrategy) ServiceName() string        { return f.service }
func (f *fakeStrategy) SupportedMetrics() []string { return f.codes }

func (f *fakeStrategy) IsAvailable(context.Context, int64) (bool, error) {
	return f.available, nil
}

func (f *fakeStrategy) SyncOneMetric(_ context.Context, _ int64, code string, _ time.Time) (*MetricResult, error) {
	f.calls = append(f.calls, code)
	if err := f.errs[code]; err != nil {
		return nil, err
	}
	v, ok := f.values[code]
	if !ok {
		return &MetricResult{MetricCode: code, Message: "insufficient data to calculate metric"}, nil
	}
	return &MetricResult{MetricCode: code, Success: true, Value: &v, QualityScore: QualityMeasured}, nil
}

func ptr[T any](v T) *T { return &v }
