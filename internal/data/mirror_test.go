package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mirrorDay = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func TestMirrorRepo_InstagramDayScope(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMirrorRepo(db, testLogger())
	ctx := context.Background()

	require.NoError(t, db.Create(&InstagramBusinessAccount{ID: 10, TenantID: 1, Username: "cafe", FollowersCount: 900, IsActive: true}).Error)
	require.NoError(t, db.Create([]InstagramPost{
		{AccountID: 10, LikesCount: 5, PublishedAt: mirrorDay},
		{AccountID: 10, LikesCount: 6, PublishedAt: mirrorDay.Add(23*time.Hour + 59*time.Minute)},
		{AccountID: 10, LikesCount: 7, PublishedAt: mirrorDay.AddDate(0, 0, 1)},
		{AccountID: 11, LikesCount: 8, PublishedAt: mirrorDay.Add(time.Hour)},
	}).Error)
	require.NoError(t, db.Create(&InstagramStory{AccountID: 10, Reach: 50, CreatedAt: mirrorDay.Add(2 * time.Hour)}).Error)

	acc, err := repo.ActiveInstagramAccount(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, int64(10), acc.ID)

	posts, err := repo.InstagramPosts(ctx, acc.ID, mirrorDay.Add(10*time.Hour))
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(5), posts[0].LikesCount)
	assert.Equal(t, int64(6), posts[1].LikesCount)

	stories, err := repo.InstagramStories(ctx, acc.ID, mirrorDay)
	require.NoError(t, err)
	assert.Len(t, stories, 1)

	none, err := repo.ActiveInstagramAccount(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMirrorRepo_FacebookAdInsights(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMirrorRepo(db, testLogger())
	ctx := context.Background()

	require.NoError(t, db.Create(&FacebookPage{ID: 20, TenantID: 1, Name: "Cafe", IsActive: true}).Error)
	require.NoError(t, db.Create([]FacebookCampaign{
		{ID: 1, PageID: 20, Objective: "LEAD_GENERATION"},
		{ID: 2, PageID: 20, Objective: "CONVERSIONS"},
		{ID: 3, PageID: 21, Objective: "CONVERSIONS"},
	}).Error)
	require.NoError(t, db.Create([]FacebookAd{
		{CampaignID: 1, Date: mirrorDay, Clicks: 10, Spend: 5},
		{CampaignID: 2, Date: mirrorDay, Clicks: 20, Spend: 7},
		{CampaignID: 2, Date: mirrorDay.AddDate(0, 0, -1), Clicks: 99},
		{CampaignID: 3, Date: mirrorDay, Clicks: 99},
	}).Error)

	rows, err := repo.FacebookAdInsights(ctx, 20, mirrorDay)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "LEAD_GENERATION", rows[0].Objective)
	assert.Equal(t, int64(10), rows[0].Clicks)
	assert.Equal(t, "CONVERSIONS", rows[1].Objective)
	assert.Equal(t, 7.0, rows[1].Spend)
}

func TestMirrorRepo_POS(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMirrorRepo(db, testLogger())
	ctx := context.Background()

	require.NoError(t, db.Create(&Integration{TenantID: 1, IntegrationType: IntegrationTypePOS, Provider: "iiko", IsActive: true}).Error)
	require.NoError(t, db.Create([]PosTransaction{
		{ID: 1, TenantID: 1, TransactionDate: mirrorDay.Add(12 * time.Hour), Status: PosStatusCompleted, TotalAmount: 100},
		{ID: 2, TenantID: 1, TransactionDate: mirrorDay.Add(20 * time.Hour), Status: PosStatusRefunded, TotalAmount: 30},
		{ID: 3, TenantID: 1, TransactionDate: mirrorDay.AddDate(0, 0, 1), Status: PosStatusCompleted, TotalAmount: 70},
	}).Error)
	require.NoError(t, db.Create([]PosTransactionItem{
		{TransactionID: 1, Quantity: 2, Cost: 30},
		{TransactionID: 3, Quantity: 1, Cost: 10},
	}).Error)
	require.NoError(t, db.Create([]RestaurantTable{
		{TenantID: 1, IsActive: true}, {TenantID: 1, IsActive: true}, {TenantID: 1, IsActive: false},
	}).Error)
	require.NoError(t, db.Create([]StaffShift{
		{TenantID: 1, ShiftDate: mirrorDay, TotalCost: 40},
		{TenantID: 1, ShiftDate: mirrorDay, TotalCost: 35.5},
		{TenantID: 1, ShiftDate: mirrorDay.AddDate(0, 0, 1), TotalCost: 99},
	}).Error)

	in, err := repo.ActiveIntegration(ctx, 1, IntegrationTypePOS)
	require.NoError(t, err)
	require.NotNil(t, in)
	assert.Equal(t, "iiko", in.Provider)

	txs, err := repo.PosTransactions(ctx, 1, mirrorDay)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	items, err := repo.PosItems(ctx, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 30.0, items[0].Cost)

	noItems, err := repo.PosItems(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, noItems)

	tables, err := repo.ActiveTableCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tables)

	labor, err := repo.LaborCost(ctx, 1, mirrorDay)
	require.NoError(t, err)
	assert.Equal(t, 75.5, labor)
}
