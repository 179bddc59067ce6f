package data

import (
	"time"
)

// SyncStatus values stored on kpi_daily_actuals.sync_status.
const (
	SyncStatusSynced = "synced"
	SyncStatusFailed = "failed"
)

// KpiDailyActual is the GORM model for kpi_daily_actuals.
// (business_id, kpi_code, date) is unique, so re-syncing a day overwrites in place.
type KpiDailyActual struct {
	ID                    int64      `gorm:"primaryKey;column:id"`
	TenantID              int64      `gorm:"column:business_id;not null;uniqueIndex:uk_kpi_daily_actual,priority:1"`
	MetricCode            string     `gorm:"column:kpi_code;type:varchar(100);not null;uniqueIndex:uk_kpi_daily_actual,priority:2"`
	Date                  time.Time  `gorm:"column:date;type:date;not null;uniqueIndex:uk_kpi_daily_actual,priority:3;index:idx_kpi_daily_date"`
	DayOfWeek             int        `gorm:"column:day_of_week"`
	ActualValue           float64    `gorm:"column:actual_value;type:decimal(15,2)"`
	PlannedValue          *float64   `gorm:"column:planned_value;type:decimal(15,2)"`
	AchievementPercentage *float64   `gorm:"column:achievement_percentage;type:decimal(8,2)"`
	Variance              *float64   `gorm:"column:variance;type:decimal(15,2)"`
	VariancePercentage    *float64   `gorm:"column:variance_percentage;type:decimal(8,2)"`
	Status                string     `gorm:"column:status;type:varchar(20)"`
	IsOnTrack             bool       `gorm:"column:is_on_track"`
	DataSource            string     `gorm:"column:data_source;type:varchar(50);index"`
	SyncStatus            string     `gorm:"column:sync_status;type:varchar(20)"`
	LastSyncedAt          *time.Time `gorm:"column:last_synced_at"`
	AutoCalculated        bool       `gorm:"column:auto_calculated"`
	IsVerified            bool       `gorm:"column:is_verified"`
	DataQualityScore      int        `gorm:"column:data_quality_score"`
	SyncMetadata          string     `gorm:"column:sync_metadata;type:json"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (KpiDailyActual) TableName() string { return "kpi_daily_actuals" }

// Business is the tenant row.
type Business struct {
	ID   int64  `gorm:"primaryKey;column:id"`
	Name string `gorm:"column:name"`
}

// TableName specifies the table name for GORM
func (Business) TableName() string { return "businesses" }

// BusinessKpiConfiguration marks a tenant as taking part in KPI tracking.
type BusinessKpiConfiguration struct {
	ID           int64  `gorm:"primaryKey;column:id"`
	TenantID     int64  `gorm:"column:business_id;index"`
	IndustryCode string `gorm:"column:industry_code"`
	Status       string `gorm:"column:status"`
}

// TableName specifies the table name for GORM
func (BusinessKpiConfiguration) TableName() string { return "business_kpi_configurations" }

// KpiTarget holds a tenant's planned value for a metric.
type KpiTarget struct {
	ID          int64   `gorm:"primaryKey;column:id"`
	TenantID    int64   `gorm:"column:business_id;index"`
	KpiKey      string  `gorm:"column:kpi_key"`
	PeriodType  string  `gorm:"column:period_type"`
	TargetValue float64 `gorm:"column:target_value"`
	Status      string  `gorm:"column:status"`
}

// TableName specifies the table name for GORM
func (KpiTarget) TableName() string { return "kpi_targets" }

// InstagramBusinessAccount is a connected Instagram profile.
type InstagramBusinessAccount struct {
	ID             int64  `gorm:"primaryKey;column:id"`
	TenantID       int64  `gorm:"column:business_id;index"`
	Username       string `gorm:"column:username"`
	FollowersCount int64  `gorm:"column:followers_count"`
	IsActive       bool   `gorm:"column:is_active"`
}

// TableName specifies the table name for GORM
func (InstagramBusinessAccount) TableName() string { return "instagram_business_accounts" }

// InstagramPost is a mirrored feed post.
type InstagramPost struct {
	ID            int64     `gorm:"primaryKey;column:id"`
	AccountID     int64     `gorm:"column:instagram_business_account_id;index"`
	LikesCount    int64     `gorm:"column:likes_count"`
	CommentsCount int64     `gorm:"column:comments_count"`
	SavesCount    int64     `gorm:"column:saves_count"`
	SharesCount   int64     `gorm:"column:shares_count"`
	Reach         int64     `gorm:"column:reach"`
	PublishedAt   time.Time `gorm:"column:published_at"`
}

// TableName specifies the table name for GORM
func (InstagramPost) TableName() string { return "instagram_posts" }

// InstagramStory is a mirrored story. LinkClicks is nil when the story had no link.
type InstagramStory struct {
	ID           int64     `gorm:"primaryKey;column:id"`
	AccountID    int64     `gorm:"column:instagram_business_account_id;index"`
	RepliesCount int64     `gorm:"column:replies_count"`
	TapsForward  int64     `gorm:"column:taps_forward"`
	TapsBack     int64     `gorm:"column:taps_back"`
	Reach        int64     `gorm:"column:reach"`
	LinkClicks   *int64    `gorm:"column:link_clicks"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName specifies the table name for GORM
func (InstagramStory) TableName() string { return "instagram_stories" }

// FacebookPage is a connected Facebook page.
type FacebookPage struct {
	ID             int64  `gorm:"primaryKey;column:id"`
	TenantID       int64  `gorm:"column:business_id;index"`
	Name           string `gorm:"column:name"`
	FollowersCount int64  `gorm:"column:followers_count"`
	IsActive       bool   `gorm:"column:is_active"`
}

// TableName specifies the table name for GORM
func (FacebookPage) TableName() string { return "facebook_pages" }

// FacebookPost is a mirrored page post.
type FacebookPost struct {
	ID               int64     `gorm:"primaryKey;column:id"`
	PageID           int64     `gorm:"column:facebook_page_id;index"`
	PostType         string    `gorm:"column:post_type"`
	Likes            int64     `gorm:"column:likes"`
	Comments         int64     `gorm:"column:comments"`
	Shares           int64     `gorm:"column:shares"`
	Reach            int64     `gorm:"column:reach"`
	VideoViews       int64     `gorm:"column:video_views"`
	VideoCompletions int64     `gorm:"column:video_completions"`
	PublishedAt      time.Time `gorm:"column:published_at"`
}

// TableName specifies the table name for GORM
func (FacebookPost) TableName() string { return "facebook_posts" }

// FacebookCampaign groups ads under a page.
type FacebookCampaign struct {
	ID        int64  `gorm:"primaryKey;column:id"`
	PageID    int64  `gorm:"column:facebook_page_id;index"`
	Objective string `gorm:"column:objective"`
}

// TableName specifies the table name for GORM
func (FacebookCampaign) TableName() string { return "facebook_campaigns" }

// FacebookAd is one ad's daily insight row.
type FacebookAd struct {
	ID          int64     `gorm:"primaryKey;column:id"`
	CampaignID  int64     `gorm:"column:campaign_id;index"`
	Date        time.Time `gorm:"column:date;type:date"`
	Impressions int64     `gorm:"column:impressions"`
	Reach       int64     `gorm:"column:reach"`
	Clicks      int64     `gorm:"column:clicks"`
	Spend       float64   `gorm:"column:spend"`
	Leads       int64     `gorm:"column:leads"`
	Conversions int64     `gorm:"column:conversions"`
	Revenue     float64   `gorm:"column:revenue"`
}

// TableName specifies the table name for GORM
func (FacebookAd) TableName() string { return "facebook_ads" }

// Integration is a generic third-party connection (POS, CRM, ...).
type Integration struct {
	ID              int64  `gorm:"primaryKey;column:id"`
	TenantID        int64  `gorm:"column:business_id;index"`
	IntegrationType string `gorm:"column:integration_type"`
	Provider        string `gorm:"column:provider"`
	IsActive        bool   `gorm:"column:is_active"`
}

// TableName specifies the table name for GORM
func (Integration) TableName() string { return "integrations" }

// POS transaction statuses.
const (
	PosStatusCompleted = "completed"
	PosStatusRefunded  = "refunded"
)

// PosTransaction is a mirrored point-of-sale check.
type PosTransaction struct {
	ID              int64     `gorm:"primaryKey;column:id"`
	TenantID        int64     `gorm:"column:business_id;index"`
	TransactionDate time.Time `gorm:"column:transaction_date;index"`
	Status          string    `gorm:"column:status"`
	TotalAmount     float64   `gorm:"column:total_amount"`
	CustomerCount   int64     `gorm:"column:customer_count"`
	CustomerID      *int64    `gorm:"column:customer_id"`
	TableNumber     *string   `gorm:"column:table_number"`
	PreparationTime *float64  `gorm:"column:preparation_time"`
}

// TableName specifies the table name for GORM
func (PosTransaction) TableName() string { return "pos_transactions" }

// PosTransactionItem is one line of a POS check.
type PosTransactionItem struct {
	ID            int64   `gorm:"primaryKey;column:id"`
	TransactionID int64   `gorm:"column:transaction_id;index"`
	Quantity      float64 `gorm:"column:quantity"`
	Cost          float64 `gorm:"column:cost"`
}

// TableName specifies the table name for GORM
func (PosTransactionItem) TableName() string { return "pos_transaction_items" }

// RestaurantTable is a seatable table of a restaurant tenant.
type RestaurantTable struct {
	ID       int64 `gorm:"primaryKey;column:id"`
	TenantID int64 `gorm:"column:business_id;index"`
	IsActive bool  `gorm:"column:is_active"`
}

// TableName specifies the table name for GORM
func (RestaurantTable) TableName() string { return "restaurant_tables" }

// StaffShift is a worked shift with its labor cost.
type StaffShift struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	TenantID  int64     `gorm:"column:business_id;index"`
	ShiftDate time.Time `gorm:"column:shift_date;type:date"`
	TotalCost float64   `gorm:"column:total_cost"`
}

// TableName specifies the table name for GORM
func (StaffShift) TableName() string { return "staff_shifts" }

// DayRange returns [start, end) of the UTC calendar day containing t.
func DayRange(t time.Time) (time.Time, time.Time) {
	start := NormalizeDate(t)
	return start, start.AddDate(0, 0, 1)
}

// NormalizeDate truncates t to midnight UTC of its calendar date.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
