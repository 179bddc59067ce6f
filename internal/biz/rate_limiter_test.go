package biz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SyncGuard/internal/conf"
	"SyncGuard/internal/data"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRateLimitRepo is a mock implementation of RateLimitRepo for testing.
type MockRateLimitRepo struct {
	mock.Mock
}

func (m *MockRateLimitRepo) Count(ctx context.Context, service, scope string) (int64, error) {
	args := m.Called(ctx, service, scope)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRateLimitRepo) Record(ctx context.Context, service, scope string, window time.Duration) (int64, error) {
	args := m.Called(ctx, service, scope, window)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRateLimitRepo) Reset(ctx context.Context, service, scope string) error {
	return m.Called(ctx, service, scope).Error(0)
}

// Helper function to create a test RateLimiterUseCase over miniredis
func newTestRateLimiter(t *testing.T, rl *conf.RateLimiter) (*RateLimiterUseCase, *miniredis.Miniredis) {
	kv, mr := setupTestKV(t)
	uc := NewRateLimiterUseCase(data.NewRateLimitRepo(kv, testLogger()), nil, &conf.Sync{RateLimiter: rl}, testLogger())
	uc.pollInterval = 5 * time.Millisecond
	return uc, mr
}

func TestRateLimiter_DefaultLimits(t *testing.T) {
	uc := NewRateLimiterUseCase(new(MockRateLimitRepo), nil, nil, testLogger())

	assert.Equal(t, int64(200), uc.Limit("instagram_api"))
	assert.Equal(t, int64(200), uc.Limit("facebook_api"))
	assert.Equal(t, int64(1000), uc.Limit("pos_system"))
	assert.Equal(t, int64(DefaultRateLimit), uc.Limit("crm"))
	assert.Equal(t, DefaultRateWindow, uc.Window())
}

func TestRateLimiter_ConfiguredLimitsOverride(t *testing.T) {
	uc := NewRateLimiterUseCase(new(MockRateLimitRepo), nil, &conf.Sync{RateLimiter: &conf.RateLimiter{
		Window:       30 * time.Second,
		DefaultLimit: 50,
		Limits:       map[string]int{"instagram_api": 5, "crm": 0},
	}}, testLogger())

	assert.Equal(t, int64(5), uc.Limit("instagram_api"))
	assert.Equal(t, int64(1000), uc.Limit("pos_system"))
	assert.Equal(t, int64(50), uc.Limit("crm"))
	assert.Equal(t, 30*time.Second, uc.Window())
}

func TestRateLimiter_DeniesAtLimitUntilWindowExpires(t *testing.T) {
	uc, mr := newTestRateLimiter(t, &conf.RateLimiter{Window: time.Minute, Limits: map[string]int{testService: 3}})
	ctx := context.Background()
	tenant := ptr(int64(4))

	for i := 0; i < 3; i++ {
		require.True(t, uc.Allow(ctx, testService, tenant))
		require.NoError(t, uc.Record(ctx, testService, tenant))
	}
	assert.False(t, uc.Allow(ctx, testService, tenant))
	// Allow does not record
	assert.False(t, uc.Allow(ctx, testService, tenant))

	// other scopes keep their own windows
	assert.True(t, uc.Allow(ctx, testService, ptr(int64(5))))
	assert.True(t, uc.Allow(ctx, testService, nil))

	mr.FastForward(time.Minute + time.Second)
	assert.True(t, uc.Allow(ctx, testService, tenant))
}

func TestRateLimiter_ConcurrentRecordsAreCounted(t *testing.T) {
	uc, _ := newTestRateLimiter(t, &conf.RateLimiter{Window: time.Minute})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = uc.Record(ctx, testService, nil)
		}()
	}
	wg.Wait()

	stats, err := uc.GetStats(ctx, testService, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(40), stats.Used)
}

func TestRateLimiter_GetStats(t *testing.T) {
	uc, _ := newTestRateLimiter(t, &conf.RateLimiter{Window: time.Minute, Limits: map[string]int{testService: 10}})
	ctx := context.Background()
	tenant := ptr(int64(3))

	for i := 0; i < 3; i++ {
		require.NoError(t, uc.Record(ctx, testService, tenant))
	}

	stats, err := uc.GetStats(ctx, testService, tenant)
	require.NoError(t, err)
	assert.Equal(t, "business_3", stats.Scope)
	assert.Equal(t, int64(10), stats.Limit)
	assert.Equal(t, int64(3), stats.Used)
	assert.Equal(t, int64(7), stats.Remaining)
	assert.Equal(t, 30.0, stats.UsagePercentage)
	assert.Equal(t, int64(60), stats.WindowSeconds)

	require.NoError(t, uc.Reset(ctx, testService, tenant))
	stats, err = uc.GetStats(ctx, testService, tenant)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Used)
}

func TestRateLimiter_WaitIfNeeded_NoWaitUnderLimit(t *testing.T) {
	uc, _ := newTestRateLimiter(t, &conf.RateLimiter{Window: time.Minute})

	waited, err := uc.WaitIfNeeded(context.Background(), testService, nil)
	require.NoError(t, err)
	assert.Zero(t, waited)
}

func TestRateLimiter_WaitIfNeeded_ReturnsWhenWindowReopens(t *testing.T) {
	uc, _ := newTestRateLimiter(t, &conf.RateLimiter{Window: 5 * time.Second, Limits: map[string]int{testService: 1}})
	ctx := context.Background()
	require.NoError(t, uc.Record(ctx, testService, nil))

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = uc.Reset(context.Background(), testService, nil)
	}()

	waited, err := uc.WaitIfNeeded(ctx, testService, nil)
	require.NoError(t, err)
	assert.Greater(t, waited, time.Duration(0))
	assert.Less(t, waited, 5*time.Second)
}

func TestRateLimiter_WaitIfNeeded_BoundedByWindow(t *testing.T) {
	uc, _ := newTestRateLimiter(t, &conf.RateLimiter{Window: 40 * time.Millisecond, Limits: map[string]int{testService: 1}})
	ctx := context.Background()
	require.NoError(t, uc.Record(ctx, testService, nil))

	waited, err := uc.WaitIfNeeded(ctx, testService, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, waited, 40*time.Millisecond)
}

func TestRateLimiter_WaitIfNeeded_Cancelled(t *testing.T) {
	uc, _ := newTestRateLimiter(t, &conf.RateLimiter{Window: time.Minute, Limits: map[string]int{testService: 1}})
	require.NoError(t, uc.Record(context.Background(), testService, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	waited, err := uc.WaitIfNeeded(ctx, testService, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, waited, time.Minute)
}

func TestRateLimiter_Execute_RecordsAndRuns(t *testing.T) {
	uc, _ := newTestRateLimiter(t, &conf.RateLimiter{Window: time.Minute})
	ctx := context.Background()

	calls := 0
	require.NoError(t, uc.Execute(ctx, testService, nil, func(context.Context) error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)

	stats, err := uc.GetStats(ctx, testService, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Used)
}

func TestRateLimiter_Execute_ExhaustsAttempts(t *testing.T) {
	uc, _ := newTestRateLimiter(t, &conf.RateLimiter{
		Window:      20 * time.Millisecond,
		MaxAttempts: 2,
		Limits:      map[string]int{testService: 1},
	})
	ctx := context.Background()
	require.NoError(t, uc.Record(ctx, testService, nil))

	invoked := false
	err := uc.Execute(ctx, testService, nil, func(context.Context) error {
		invoked = true
		return nil
	})
	assert.True(t, IsRateLimited(err))
	assert.False(t, invoked)
}

func TestRateLimiter_StoreFailureAllows(t *testing.T) {
	repo := new(MockRateLimitRepo)
	uc := NewRateLimiterUseCase(repo, nil, nil, testLogger())
	ctx := context.Background()
	storeErr := errors.New("connection refused")

	repo.On("Count", ctx, testService, "global").Return(int64(0), storeErr)
	repo.On("Record", ctx, testService, "global", DefaultRateWindow).Return(int64(0), storeErr)

	assert.True(t, uc.Allow(ctx, testService, nil))
	assert.NoError(t, uc.Record(ctx, testService, nil))

	_, err := uc.GetStats(ctx, testService, nil)
	assert.ErrorIs(t, err, storeErr)
	repo.AssertExpectations(t)
}
