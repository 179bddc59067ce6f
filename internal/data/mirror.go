package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// IntegrationTypePOS is the integrations.integration_type of point-of-sale systems.
const IntegrationTypePOS = "pos"

// FacebookAdInsight is an ad row joined with its campaign objective.
type FacebookAdInsight struct {
	FacebookAd
	Objective string `gorm:"column:objective"`
}

// MirrorRepo reads the locally mirrored third-party records a strategy aggregates.
// Every day-scoped query covers [date 00:00, date+1 00:00) UTC.
type MirrorRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewMirrorRepo creates a new mirror repository.
func NewMirrorRepo(db *gorm.DB, logger log.Logger) *MirrorRepo {
	return &MirrorRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

func firstOrNil[T any](tx *gorm.DB, dest *T) (*T, error) {
	err := tx.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return dest, nil
}

// ActiveInstagramAccount returns the tenant's active Instagram account, or nil.
func (r *MirrorRepo) ActiveInstagramAccount(ctx context.Context, tenantID int64) (*InstagramBusinessAccount, error) {
	acc, err := firstOrNil(r.db.WithContext(ctx).
		Where("business_id = ? AND is_active = ?", tenantID, true).
		Order("id"), &InstagramBusinessAccount{})
	if err != nil {
		return nil, fmt.Errorf("failed to get instagram account: %w", err)
	}
	return acc, nil
}

// InstagramPosts returns the account's posts published on date.
func (r *MirrorRepo) InstagramPosts(ctx context.Context, accountID int64, date time.Time) ([]InstagramPost, error) {
	start, end := DayRange(date)
	var posts []InstagramPost
	err := r.db.WithContext(ctx).
		Where("instagram_business_account_id = ? AND published_at >= ? AND published_at < ?", accountID, start, end).
		Order("id").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list instagram posts: %w", err)
	}
	return posts, nil
}

// InstagramStories returns the account's stories created on date.
func (r *MirrorRepo) InstagramStories(ctx context.Context, accountID int64, date time.Time) ([]InstagramStory, error) {
	start, end := DayRange(date)
	var stories []InstagramStory
	err := r.db.WithContext(ctx).
		Where("instagram_business_account_id = ? AND created_at >= ? AND created_at < ?", accountID, start, end).
		Order("id").
		Find(&stories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list instagram stories: %w", err)
	}
	return stories, nil
}

// ActiveFacebookPage returns the tenant's active Facebook page, or nil.
func (r *MirrorRepo) ActiveFacebookPage(ctx context.Context, tenantID int64) (*FacebookPage, error) {
	page, err := firstOrNil(r.db.WithContext(ctx).
		Where("business_id = ? AND is_active = ?", tenantID, true).
		Order("id"), &FacebookPage{})
	if err != nil {
		return nil, fmt.Errorf("failed to get facebook page: %w", err)
	}
	return page, nil
}

// FacebookPosts returns the page's posts published on date.
func (r *MirrorRepo) FacebookPosts(ctx context.Context, pageID int64, date time.Time) ([]FacebookPost, error) {
	start, end := DayRange(date)
	var posts []FacebookPost
	err := r.db.WithContext(ctx).
		Where("facebook_page_id = ? AND published_at >= ? AND published_at < ?", pageID, start, end).
		Order("id").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list facebook posts: %w", err)
	}
	return posts, nil
}

// FacebookAdInsights returns the day's ad rows of every campaign under the page.
func (r *MirrorRepo) FacebookAdInsights(ctx context.Context, pageID int64, date time.Time) ([]FacebookAdInsight, error) {
	var rows []FacebookAdInsight
	err := r.db.WithContext(ctx).
		Table("facebook_ads").
		Select("facebook_ads.*, facebook_campaigns.objective").
		Joins("JOIN facebook_campaigns ON facebook_campaigns.id = facebook_ads.campaign_id").
		Where("facebook_campaigns.facebook_page_id = ? AND facebook_ads.date = ?", pageID, NormalizeDate(date)).
		Order("facebook_ads.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list facebook ads: %w", err)
	}
	return rows, nil
}

// ActiveIntegration returns the tenant's active integration of the given type, or nil.
func (r *MirrorRepo) ActiveIntegration(ctx context.Context, tenantID int64, integrationType string) (*Integration, error) {
	in, err := firstOrNil(r.db.WithContext(ctx).
		Where("business_id = ? AND integration_type = ? AND is_active = ?", tenantID, integrationType, true).
		Order("id"), &Integration{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s integration: %w", integrationType, err)
	}
	return in, nil
}

// PosTransactions returns every transaction of the tenant on date, any status.
func (r *MirrorRepo) PosTransactions(ctx context.Context, tenantID int64, date time.Time) ([]PosTransaction, error) {
	start, end := DayRange(date)
	var txs []PosTransaction
	err := r.db.WithContext(ctx).
		Where("business_id = ? AND transaction_date >= ? AND transaction_date < ?", tenantID, start, end).
		Order("id").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pos transactions: %w", err)
	}
	return txs, nil
}

// PosItems returns the line items of the given transactions.
func (r *MirrorRepo) PosItems(ctx context.Context, transactionIDs []int64) ([]PosTransactionItem, error) {
	if len(transactionIDs) == 0 {
		return nil, nil
	}
	var items []PosTransactionItem
	err := r.db.WithContext(ctx).
		Where("transaction_id IN ?", transactionIDs).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pos items: %w", err)
	}
	return items, nil
}

// ActiveTableCount counts the tenant's active restaurant tables.
func (r *MirrorRepo) ActiveTableCount(ctx context.Context, tenantID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&RestaurantTable{}).
		Where("business_id = ? AND is_active = ?", tenantID, true).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count restaurant tables: %w", err)
	}
	return n, nil
}

// LaborCost sums the cost of the tenant's shifts on date.
func (r *MirrorRepo) LaborCost(ctx context.Context, tenantID int64, date time.Time) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&StaffShift{}).
		Select("COALESCE(SUM(total_cost), 0)").
		Where("business_id = ? AND shift_date = ?", tenantID, NormalizeDate(date)).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum labor cost: %w", err)
	}
	return total, nil
}
