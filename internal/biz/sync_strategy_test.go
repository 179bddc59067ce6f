package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"SyncGuard/internal/data"
	"SyncGuard/pkg/metadata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMirror is a mock implementation of the Instagram, Facebook and POS mirrors.
type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) ActiveInstagramAccount(ctx context.Context, tenantID int64) (*data.InstagramBusinessAccount, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.InstagramBusinessAccount), args.Error(1)
}

func (m *MockMirror) InstagramPosts(ctx context.Context, accountID int64, date time.Time) ([]data.InstagramPost, error) {
	args := m.Called(ctx, accountID, date)
	return args.Get(0).([]data.InstagramPost), args.Error(1)
}

func (m *MockMirror) InstagramStories(ctx context.Context, accountID int64, date time.Time) ([]data.InstagramStory, error) {
	args := m.Called(ctx, accountID, date)
	return args.Get(0).([]data.InstagramStory), args.Error(1)
}

func (m *MockMirror) ActiveFacebookPage(ctx context.Context, tenantID int64) (*data.FacebookPage, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.FacebookPage), args.Error(1)
}

func (m *MockMirror) FacebookPosts(ctx context.Context, pageID int64, date time.Time) ([]data.FacebookPost, error) {
	args := m.Called(ctx, pageID, date)
	return args.Get(0).([]data.FacebookPost), args.Error(1)
}

func (m *MockMirror) FacebookAdInsights(ctx context.Context, pageID int64, date time.Time) ([]data.FacebookAdInsight, error) {
	args := m.Called(ctx, pageID, date)
	return args.Get(0).([]data.FacebookAdInsight), args.Error(1)
}

func (m *MockMirror) ActiveIntegration(ctx context.Context, tenantID int64, integrationType string) (*data.Integration, error) {
	args := m.Called(ctx, tenantID, integrationType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Integration), args.Error(1)
}

func (m *MockMirror) PosTransactions(ctx context.Context, tenantID int64, date time.Time) ([]data.PosTransaction, error) {
	args := m.Called(ctx, tenantID, date)
	return args.Get(0).([]data.PosTransaction), args.Error(1)
}

func (m *MockMirror) PosItems(ctx context.Context, transactionIDs []int64) ([]data.PosTransactionItem, error) {
	args := m.Called(ctx, transactionIDs)
	return args.Get(0).([]data.PosTransactionItem), args.Error(1)
}

func (m *MockMirror) ActiveTableCount(ctx context.Context, tenantID int64) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMirror) LaborCost(ctx context.Context, tenantID int64, date time.Time) (float64, error) {
	args := m.Called(ctx, tenantID, date)
	return args.Get(0).(float64), args.Error(1)
}

var syncDate = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func syncValue(t *testing.T, s SyncStrategy, code string) *MetricResult {
	t.Helper()
	res, err := s.SyncOneMetric(context.Background(), 1, code, syncDate)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func assertValue(t *testing.T, want float64, res *MetricResult) {
	t.Helper()
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Value)
	assert.InDelta(t, want, *res.Value, 0.001)
}

func assertInsufficient(t *testing.T, res *MetricResult) {
	t.Helper()
	assert.False(t, res.Success)
	assert.Nil(t, res.Value)
}

func TestStrategyRegistry(t *testing.T) {
	ig := &fakeStrategy{service: ServiceInstagram}
	pos := &fakeStrategy{service: ServicePOS}
	r := NewStrategyRegistry(ig, pos)

	got, ok := r.Get(ServicePOS)
	require.True(t, ok)
	assert.Same(t, pos, got)
	_, ok = r.Get(ServiceFacebook)
	assert.False(t, ok)

	assert.Equal(t, []string{ServiceInstagram, ServicePOS}, r.Services())
	assert.Error(t, r.Register(&fakeStrategy{service: ServicePOS}))
	assert.Len(t, r.All(), 2)

	assert.Panics(t, func() { NewStrategyRegistry(ig, ig) })
}

func newInstagramFixture(account *data.InstagramBusinessAccount, posts []data.InstagramPost, stories []data.InstagramStory) (*InstagramStrategy, *MockMirror, *MockKpiActualRepo) {
	mirror := new(MockMirror)
	history := new(MockKpiActualRepo)
	mirror.On("ActiveInstagramAccount", mock.Anything, int64(1)).Return(account, nil)
	if account != nil {
		mirror.On("InstagramPosts", mock.Anything, account.ID, syncDate).Return(posts, nil)
		mirror.On("InstagramStories", mock.Anything, account.ID, syncDate).Return(stories, nil)
	}
	return NewInstagramStrategy(mirror, history, testLogger()), mirror, history
}

func TestInstagramStrategy_SupportedMetricsOrder(t *testing.T) {
	s, _, _ := newInstagramFixture(nil, nil, nil)
	assert.Equal(t, []string{
		MetricEngagementRate, MetricFollowerGrowth, MetricReachRate, MetricInstagramCTR,
		MetricContentEngagement, MetricSocialResponseTime, MetricUserGeneratedContent,
		MetricBrandMentionFrequency,
	}, s.SupportedMetrics())
	assert.Equal(t, ServiceInstagram, s.ServiceName())
}

func TestInstagramStrategy_IsAvailable(t *testing.T) {
	s, _, _ := newInstagramFixture(nil, nil, nil)
	ok, err := s.IsAvailable(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)

	res := syncValue(t, s, MetricEngagementRate)
	assertInsufficient(t, res)
	assert.Contains(t, res.Message, "not connected")
}

func TestInstagramStrategy_Formulas(t *testing.T) {
	account := &data.InstagramBusinessAccount{ID: 11, Username: "cafe", FollowersCount: 1000}
	posts := []data.InstagramPost{
		{LikesCount: 50, CommentsCount: 10, SavesCount: 5, SharesCount: 2, Reach: 400},
		{LikesCount: 30, CommentsCount: 5, SavesCount: 0, SharesCount: 1, Reach: 300},
	}
	stories := []data.InstagramStory{
		{RepliesCount: 2, TapsForward: 10, TapsBack: 3, Reach: 300, LinkClicks: ptr(int64(15))},
		{RepliesCount: 0, TapsForward: 0, TapsBack: 0, Reach: 100},
	}
	s, _, _ := newInstagramFixture(account, posts, stories)

	// (65 + 35 + 15) / 1100 * 100
	assertValue(t, 10.45, syncValue(t, s, MetricEngagementRate))
	// 1100 / 1000 * 100
	assertValue(t, 110, syncValue(t, s, MetricReachRate))
	// 15 / 300 * 100
	assertValue(t, 5, syncValue(t, s, MetricInstagramCTR))
	// (50+20+15+8 + 30+10+0+4) / 2
	assertValue(t, 68.5, syncValue(t, s, MetricContentEngagement))

	res := syncValue(t, s, MetricEngagementRate)
	require.NotNil(t, res.Metadata)
	assert.Equal(t, int64(11), res.Metadata.SourceAccountID)
	assert.Equal(t, "cafe", res.Metadata.SourceAccountName)
	assert.Equal(t, 4, res.Metadata.RecordCount)
	assert.Equal(t, QualityMeasured, res.QualityScore)

	assertInsufficient(t, syncValue(t, s, MetricSocialResponseTime))
	assertInsufficient(t, syncValue(t, s, MetricBrandMentionFrequency))

	unknown := syncValue(t, s, "not_a_metric")
	assertInsufficient(t, unknown)
	assert.Equal(t, "metric not supported", unknown.Message)
}

func TestInstagramStrategy_ZeroReachFallsBackToFollowers(t *testing.T) {
	account := &data.InstagramBusinessAccount{ID: 11, FollowersCount: 200}
	posts := []data.InstagramPost{{LikesCount: 8, CommentsCount: 2}}
	s, _, _ := newInstagramFixture(account, posts, nil)

	res := syncValue(t, s, MetricEngagementRate)
	assertValue(t, 5, res)
	assert.Equal(t, QualityEstimated, res.QualityScore)

	// reach_rate has no fallback
	assertInsufficient(t, syncValue(t, s, MetricReachRate))
}

func TestInstagramStrategy_NoContentIsInsufficient(t *testing.T) {
	account := &data.InstagramBusinessAccount{ID: 11, FollowersCount: 200}
	s, _, _ := newInstagramFixture(account, []data.InstagramPost{}, []data.InstagramStory{})

	for _, code := range []string{MetricEngagementRate, MetricReachRate, MetricInstagramCTR, MetricContentEngagement} {
		assertInsufficient(t, syncValue(t, s, code))
	}
}

func TestInstagramStrategy_FollowerGrowth(t *testing.T) {
	account := &data.InstagramBusinessAccount{ID: 11, FollowersCount: 1100}
	s, _, history := newInstagramFixture(account, nil, nil)

	prevMeta := (&metadata.SyncMetadata{SourceAccountID: 11, FollowersCount: ptr(int64(1000))}).String()
	history.On("GetPrevious", mock.Anything, int64(1), MetricEngagementRate, syncDate).
		Return(&data.KpiDailyActual{DataSource: ServiceFacebook, SyncMetadata: `{"followers_count":5}`}, nil)
	history.On("GetPrevious", mock.Anything, int64(1), MetricFollowerGrowth, syncDate).
		Return(nil, nil)
	history.On("GetPrevious", mock.Anything, int64(1), MetricReachRate, syncDate).
		Return(&data.KpiDailyActual{DataSource: ServiceInstagram, SyncMetadata: prevMeta}, nil)

	assertValue(t, 10, syncValue(t, s, MetricFollowerGrowth))
}

func TestInstagramStrategy_FollowerGrowthWithoutHistory(t *testing.T) {
	account := &data.InstagramBusinessAccount{ID: 11, FollowersCount: 1100}
	s, _, history := newInstagramFixture(account, nil, nil)
	history.On("GetPrevious", mock.Anything, int64(1), mock.Anything, syncDate).Return(nil, nil)

	assertInsufficient(t, syncValue(t, s, MetricFollowerGrowth))
}

func TestInstagramStrategy_MirrorErrorIsReturned(t *testing.T) {
	mirror := new(MockMirror)
	mirror.On("ActiveInstagramAccount", mock.Anything, int64(1)).Return(&data.InstagramBusinessAccount{ID: 11}, nil)
	mirror.On("InstagramPosts", mock.Anything, int64(11), syncDate).Return([]data.InstagramPost(nil), errors.New("db down"))
	s := NewInstagramStrategy(mirror, new(MockKpiActualRepo), testLogger())

	_, err := s.SyncOneMetric(context.Background(), 1, MetricReachRate, syncDate)
	assert.ErrorContains(t, err, "failed to compute reach_rate")
}

func newFacebookFixture(posts []data.FacebookPost, ads []data.FacebookAdInsight) (*FacebookStrategy, *MockKpiActualRepo) {
	mirror := new(MockMirror)
	history := new(MockKpiActualRepo)
	page := &data.FacebookPage{ID: 21, Name: "Cafe Page", FollowersCount: 2000}
	mirror.On("ActiveFacebookPage", mock.Anything, int64(1)).Return(page, nil)
	mirror.On("FacebookPosts", mock.Anything, int64(21), syncDate).Return(posts, nil)
	mirror.On("FacebookAdInsights", mock.Anything, int64(21), syncDate).Return(ads, nil)
	return NewFacebookStrategy(mirror, history, testLogger()), history
}

func TestFacebookStrategy_Formulas(t *testing.T) {
	posts := []data.FacebookPost{
		{PostType: "photo", Likes: 40, Comments: 10, Shares: 5, Reach: 500},
		{PostType: "video", Likes: 20, Comments: 5, Shares: 0, Reach: 500, VideoViews: 200, VideoCompletions: 50},
	}
	ads := []data.FacebookAdInsight{
		{FacebookAd: data.FacebookAd{Impressions: 1000, Reach: 500, Clicks: 40, Spend: 20, Leads: 4, Conversions: 2, Revenue: 60}, Objective: "LEAD_GENERATION"},
		{FacebookAd: data.FacebookAd{Impressions: 3000, Reach: 1500, Clicks: 60, Spend: 30, Conversions: 3, Revenue: 90}, Objective: "TRAFFIC"},
	}
	s, _ := newFacebookFixture(posts, ads)

	// 80 / 1000 * 100
	assertValue(t, 8, syncValue(t, s, MetricEngagementRate))
	// 1000 / 2000 * 100
	assertValue(t, 50, syncValue(t, s, MetricReachRate))
	// 100 / 4000 * 100
	assertValue(t, 2.5, syncValue(t, s, MetricFacebookCTR))
	// 50 / 100
	assertValue(t, 0.5, syncValue(t, s, MetricCostPerClick))
	// lead generation only: 20 / 4
	assertValue(t, 5, syncValue(t, s, MetricCostPerLead))
	// 150 / 50
	assertValue(t, 3, syncValue(t, s, MetricROAS))
	// 5 / 100 * 100
	assertValue(t, 5, syncValue(t, s, MetricConversionRate))
	// (40+20+15 + 20+10+0) / 2
	assertValue(t, 52.5, syncValue(t, s, MetricContentEngagement))
	// 4000 / 2000
	assertValue(t, 2, syncValue(t, s, MetricAdFrequency))
	// 50 / 200 * 100
	res := syncValue(t, s, MetricVideoCompletionRate)
	assertValue(t, 25, res)
	assert.Equal(t, 1, res.Metadata.RecordCount)
	assert.Equal(t, "Cafe Page", res.Metadata.SourceAccountName)

	assertInsufficient(t, syncValue(t, s, MetricSocialResponseTime))
}

func TestFacebookStrategy_NoAdsIsInsufficient(t *testing.T) {
	s, _ := newFacebookFixture([]data.FacebookPost{}, []data.FacebookAdInsight{})

	for _, code := range []string{
		MetricEngagementRate, MetricReachRate, MetricFacebookCTR, MetricCostPerClick,
		MetricCostPerLead, MetricROAS, MetricConversionRate, MetricAdFrequency,
		MetricVideoCompletionRate,
	} {
		assertInsufficient(t, syncValue(t, s, code))
	}
}

func TestFacebookStrategy_ZeroDenominators(t *testing.T) {
	ads := []data.FacebookAdInsight{
		{FacebookAd: data.FacebookAd{Impressions: 0, Clicks: 0, Spend: 0}, Objective: "LEAD_GENERATION"},
	}
	s, _ := newFacebookFixture([]data.FacebookPost{{PostType: "photo", Likes: 1}}, ads)

	assertInsufficient(t, syncValue(t, s, MetricFacebookCTR))
	assertInsufficient(t, syncValue(t, s, MetricCostPerClick))
	assertInsufficient(t, syncValue(t, s, MetricCostPerLead))
	assertInsufficient(t, syncValue(t, s, MetricROAS))
	assertInsufficient(t, syncValue(t, s, MetricReachRate))
	// no video posts
	assertInsufficient(t, syncValue(t, s, MetricVideoCompletionRate))
}

func TestFacebookStrategy_PageGrowthRate(t *testing.T) {
	s, history := newFacebookFixture(nil, nil)
	prev := (&metadata.SyncMetadata{FollowersCount: ptr(int64(2500))}).String()
	history.On("GetPrevious", mock.Anything, int64(1), MetricEngagementRate, syncDate).
		Return(&data.KpiDailyActual{DataSource: ServiceFacebook, SyncMetadata: prev}, nil)

	// (2000 - 2500) / 2500 * 100
	assertValue(t, -20, syncValue(t, s, MetricPageGrowthRate))
}

func newPosFixture(txs []data.PosTransaction, items []data.PosTransactionItem) (*PosStrategy, *MockMirror) {
	mirror := new(MockMirror)
	mirror.On("ActiveIntegration", mock.Anything, int64(1), data.IntegrationTypePOS).
		Return(&data.Integration{ID: 31, Provider: "iiko"}, nil)
	mirror.On("PosTransactions", mock.Anything, int64(1), syncDate).Return(txs, nil)
	mirror.On("PosItems", mock.Anything, mock.Anything).Return(items, nil)
	mirror.On("ActiveTableCount", mock.Anything, int64(1)).Return(int64(10), nil)
	mirror.On("LaborCost", mock.Anything, int64(1), syncDate).Return(90.0, nil)
	return NewPosStrategy(mirror, testLogger()), mirror
}

func at(hour, minute int) time.Time {
	return syncDate.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func TestPosStrategy_Formulas(t *testing.T) {
	txs := []data.PosTransaction{
		{ID: 1, Status: data.PosStatusCompleted, TotalAmount: 100, CustomerCount: 2, CustomerID: ptr(int64(7)), TableNumber: ptr("A1"), PreparationTime: ptr(10.0), TransactionDate: at(12, 30)},
		{ID: 2, Status: data.PosStatusCompleted, TotalAmount: 200, CustomerCount: 3, CustomerID: ptr(int64(7)), TableNumber: ptr("A2"), PreparationTime: ptr(20.0), TransactionDate: at(14, 0)},
		{ID: 3, Status: data.PosStatusCompleted, TotalAmount: 150, CustomerCount: 1, CustomerID: ptr(int64(8)), TableNumber: ptr("A1"), TransactionDate: at(16, 0)},
		{ID: 4, Status: data.PosStatusRefunded, TotalAmount: 80, TransactionDate: at(19, 0)},
		{ID: 5, Status: "pending", TotalAmount: 999, TransactionDate: at(20, 0)},
	}
	items := []data.PosTransactionItem{
		{TransactionID: 1, Quantity: 2, Cost: 40},
		{TransactionID: 2, Quantity: 1, Cost: 60},
		{TransactionID: 3, Quantity: 3, Cost: 50},
	}
	s, mirror := newPosFixture(txs, items)

	assertValue(t, 450, syncValue(t, s, MetricDailyRevenue))
	assertValue(t, 150, syncValue(t, s, MetricAverageCheck))
	// tables A1, A2 of 10 active
	assertValue(t, 20, syncValue(t, s, MetricTableTurnoverRate))
	assertValue(t, 15, syncValue(t, s, MetricOrderFulfillmentTime))
	assertValue(t, 6, syncValue(t, s, MetricCustomerCount))
	// customer 7 visited twice, 8 once
	assertValue(t, 50, syncValue(t, s, MetricRepeatCustomerRate))
	// 1 / (3 + 1) * 100
	assertValue(t, 25, syncValue(t, s, MetricProductReturnRate))
	assertValue(t, 75, syncValue(t, s, MetricRevenuePerCustomer))
	// 12:30 and 14:00 fall inside the lunch window; the refund at 19:00 is not completed
	assertValue(t, 300, syncValue(t, s, MetricPeakHoursRevenue))
	assertValue(t, 2, syncValue(t, s, MetricMenuItemSales))
	// 90 / 450 * 100
	assertValue(t, 20, syncValue(t, s, MetricLaborCostPercentage))
	// (450 - 150) / 450 * 100
	assertValue(t, 66.67, syncValue(t, s, MetricGrossProfitMargin))

	assertInsufficient(t, syncValue(t, s, MetricInventoryTurnover))
	assertInsufficient(t, syncValue(t, s, MetricWastePercentage))

	res := syncValue(t, s, MetricDailyRevenue)
	assert.Equal(t, int64(31), res.Metadata.SourceAccountID)
	assert.Equal(t, "iiko", res.Metadata.SourceAccountName)
	assert.Equal(t, 3, res.Metadata.RecordCount)

	mirror.AssertCalled(t, "PosItems", mock.Anything, []int64{1, 2, 3})
}

func TestPosStrategy_NoTransactionsIsInsufficient(t *testing.T) {
	s, _ := newPosFixture([]data.PosTransaction{}, []data.PosTransactionItem{})

	for _, code := range s.SupportedMetrics() {
		if code == MetricTableTurnoverRate {
			continue
		}
		assertInsufficient(t, syncValue(t, s, code))
	}
}

func TestPosStrategy_TableTurnoverWithoutServedTables(t *testing.T) {
	// takeaway orders carry no table number
	txs := []data.PosTransaction{
		{ID: 1, Status: data.PosStatusCompleted, TotalAmount: 40, TransactionDate: at(13, 0)},
		{ID: 2, Status: data.PosStatusCompleted, TotalAmount: 60, TransactionDate: at(18, 0)},
	}
	s, _ := newPosFixture(txs, nil)
	assertValue(t, 0, syncValue(t, s, MetricTableTurnoverRate))

	empty, _ := newPosFixture([]data.PosTransaction{}, nil)
	assertValue(t, 0, syncValue(t, empty, MetricTableTurnoverRate))
}

func TestPosStrategy_TableTurnoverWithoutActiveTables(t *testing.T) {
	mirror := new(MockMirror)
	mirror.On("ActiveIntegration", mock.Anything, int64(1), data.IntegrationTypePOS).
		Return(&data.Integration{ID: 31, Provider: "iiko"}, nil)
	mirror.On("ActiveTableCount", mock.Anything, int64(1)).Return(int64(0), nil)
	s := NewPosStrategy(mirror, testLogger())

	assertInsufficient(t, syncValue(t, s, MetricTableTurnoverRate))
	mirror.AssertNotCalled(t, "PosTransactions", mock.Anything, mock.Anything, mock.Anything)
}

func TestPosStrategy_UnknownProvider(t *testing.T) {
	mirror := new(MockMirror)
	mirror.On("ActiveIntegration", mock.Anything, int64(1), data.IntegrationTypePOS).
		Return(&data.Integration{ID: 31}, nil)
	mirror.On("PosTransactions", mock.Anything, int64(1), syncDate).
		Return([]data.PosTransaction{{ID: 1, Status: data.PosStatusCompleted, TotalAmount: 10}}, nil)
	s := NewPosStrategy(mirror, testLogger())

	res := syncValue(t, s, MetricDailyRevenue)
	assert.Equal(t, "unknown", res.Metadata.SourceAccountName)
}

func TestInPeakHours(t *testing.T) {
	assert.True(t, inPeakHours(at(12, 0)))
	assert.True(t, inPeakHours(at(14, 0)))
	assert.False(t, inPeakHours(at(14, 1)))
	assert.True(t, inPeakHours(at(21, 0)))
	assert.False(t, inPeakHours(at(18, 59)))
}
