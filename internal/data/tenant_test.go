package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantRepo_ListActiveTenantIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTenantRepo(db, testLogger())

	require.NoError(t, db.Create([]BusinessKpiConfiguration{
		{TenantID: 3, IndustryCode: "restaurant", Status: "active"},
		{TenantID: 1, IndustryCode: "retail", Status: "active"},
		{TenantID: 1, IndustryCode: "retail", Status: "active"},
		{TenantID: 2, IndustryCode: "retail", Status: "inactive"},
	}).Error)

	ids, err := repo.ListActiveTenantIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestTenantRepo_GetTenant(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTenantRepo(db, testLogger())
	require.NoError(t, db.Create(&Business{ID: 5, Name: "Cafe Navruz"}).Error)

	b, err := repo.GetTenant(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "Cafe Navruz", b.Name)

	missing, err := repo.GetTenant(context.Background(), 6)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestTenantRepo_PlannedValueCached(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTenantRepo(db, testLogger())
	ctx := context.Background()

	require.NoError(t, db.Create(&KpiTarget{TenantID: 1, KpiKey: "daily_revenue", PeriodType: "daily", TargetValue: 5000, Status: "active"}).Error)
	require.NoError(t, db.Create(&KpiTarget{TenantID: 1, KpiKey: "average_check", PeriodType: "monthly", TargetValue: 40, Status: "active"}).Error)

	v, ok, err := repo.PlannedValue(ctx, 1, "daily_revenue")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5000.0, v)

	_, ok, err = repo.PlannedValue(ctx, 1, "average_check")
	require.NoError(t, err)
	assert.False(t, ok, "monthly targets are not daily plans")

	// served from cache after the row changes
	require.NoError(t, db.Model(&KpiTarget{}).Where("kpi_key = ?", "daily_revenue").Update("target_value", 1).Error)
	v, ok, err = repo.PlannedValue(ctx, 1, "daily_revenue")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 5000.0, v)
}
