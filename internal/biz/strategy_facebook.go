package biz

import (
	"context"
	"time"

	"SyncGuard/internal/data"
	"SyncGuard/pkg/metadata"

	"github.com/go-kratos/kratos/v2/log"
)

// Facebook metric codes, in sync order. engagement_rate, reach_rate,
// content_engagement and social_response_time are shared with Instagram.
const (
	MetricFacebookCTR         = "facebook_ctr"
	MetricCostPerClick        = "cost_per_click"
	MetricCostPerLead         = "cost_per_lead"
	MetricROAS                = "roas"
	MetricConversionRate      = "conversion_rate"
	MetricPageGrowthRate      = "page_growth_rate"
	MetricAdFrequency         = "ad_frequency"
	MetricVideoCompletionRate = "video_completion_rate"
)

const (
	objectiveLeadGeneration = "LEAD_GENERATION"
	postTypeVideo           = "video"
)

type facebookSource struct {
	tenantID int64
	page     *data.FacebookPage
	meta     *metadata.SyncMetadata
}

// FacebookStrategy computes KPIs from mirrored Facebook page posts and ad insights.
type FacebookStrategy struct {
	mirror   FacebookMirror
	history  ActualHistory
	formulas *formulaTable[*facebookSource]
	logger   *log.Helper
}

// NewFacebookStrategy creates the facebook_api strategy.
func NewFacebookStrategy(mirror FacebookMirror, history ActualHistory, logger log.Logger) *FacebookStrategy {
	s := &FacebookStrategy{
		mirror:  mirror,
		history: history,
		logger:  log.NewHelper(logger),
	}
	s.formulas = newFormulaTable[*facebookSource]().
		add(MetricEngagementRate, s.engagementRate).
		add(MetricReachRate, s.reachRate).
		add(MetricFacebookCTR, s.adsPercent(func(a data.FacebookAdInsight) (float64, float64) {
			return float64(a.Clicks), float64(a.Impressions)
		})).
		add(MetricCostPerClick, s.adsRatio(func(a data.FacebookAdInsight) (float64, float64) {
			return a.Spend, float64(a.Clicks)
		})).
		add(MetricCostPerLead, s.costPerLead).
		add(MetricROAS, s.adsRatio(func(a data.FacebookAdInsight) (float64, float64) {
			return a.Revenue, a.Spend
		})).
		add(MetricConversionRate, s.adsPercent(func(a data.FacebookAdInsight) (float64, float64) {
			return float64(a.Conversions), float64(a.Clicks)
		})).
		add(MetricSocialResponseTime, noData[*facebookSource]).
		add(MetricPageGrowthRate, s.pageGrowthRate).
		add(MetricContentEngagement, s.contentEngagement).
		add(MetricAdFrequency, s.adsRatio(func(a data.FacebookAdInsight) (float64, float64) {
			return float64(a.Impressions), float64(a.Reach)
		})).
		add(MetricVideoCompletionRate, s.videoCompletionRate)
	return s
}

// ServiceName implements SyncStrategy.
func (s *FacebookStrategy) ServiceName() string { return ServiceFacebook }

// SupportedMetrics implements SyncStrategy.
func (s *FacebookStrategy) SupportedMetrics() []string { return s.formulas.supported() }

// IsAvailable reports whether the tenant has an active Facebook page.
func (s *FacebookStrategy) IsAvailable(ctx context.Context, tenantID int64) (bool, error) {
	page, err := s.mirror.ActiveFacebookPage(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return page != nil, nil
}

// SyncOneMetric implements SyncStrategy.
func (s *FacebookStrategy) SyncOneMetric(ctx context.Context, tenantID int64, metricCode string, date time.Time) (*MetricResult, error) {
	page, err := s.mirror.ActiveFacebookPage(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return &MetricResult{MetricCode: metricCode, Message: "facebook page not connected"}, nil
	}

	followers := page.FollowersCount
	src := &facebookSource{
		tenantID: tenantID,
		page:     page,
		meta: &metadata.SyncMetadata{
			SourceAccountID:   page.ID,
			SourceAccountName: page.Name,
			FollowersCount:    &followers,
		},
	}
	return s.formulas.evaluate(ctx, metricCode, src, date, src.meta)
}

func (s *FacebookStrategy) posts(ctx context.Context, src *facebookSource, date time.Time) ([]data.FacebookPost, error) {
	posts, err := s.mirror.FacebookPosts(ctx, src.page.ID, date)
	if err != nil {
		return nil, err
	}
	src.meta.RecordCount = len(posts)
	return posts, nil
}

func (s *FacebookStrategy) ads(ctx context.Context, src *facebookSource, date time.Time) ([]data.FacebookAdInsight, error) {
	ads, err := s.mirror.FacebookAdInsights(ctx, src.page.ID, date)
	if err != nil {
		return nil, err
	}
	src.meta.RecordCount = len(ads)
	return ads, nil
}

// sumAds folds (numerator, denominator) over the ads.
func sumAds(ads []data.FacebookAdInsight, pick func(data.FacebookAdInsight) (float64, float64)) (float64, float64) {
	var num, den float64
	for _, a := range ads {
		n, d := pick(a)
		num += n
		den += d
	}
	return num, den
}

// adsRatio builds a formula of sum(num) / sum(den) over the day's ads.
func (s *FacebookStrategy) adsRatio(pick func(data.FacebookAdInsight) (float64, float64)) metricFunc[*facebookSource] {
	return func(ctx context.Context, src *facebookSource, date time.Time) (*float64, int, error) {
		ads, err := s.ads(ctx, src, date)
		if err != nil || len(ads) == 0 {
			return nil, 0, err
		}
		return ratio(sumAds(ads, pick))
	}
}

// adsPercent builds a formula of sum(num) / sum(den) * 100 over the day's ads.
func (s *FacebookStrategy) adsPercent(pick func(data.FacebookAdInsight) (float64, float64)) metricFunc[*facebookSource] {
	return func(ctx context.Context, src *facebookSource, date time.Time) (*float64, int, error) {
		ads, err := s.ads(ctx, src, date)
		if err != nil || len(ads) == 0 {
			return nil, 0, err
		}
		return percent(sumAds(ads, pick))
	}
}

// engagementRate = (likes + comments + shares) / reach * 100, falling back to followers.
func (s *FacebookStrategy) engagementRate(ctx context.Context, src *facebookSource, date time.Time) (*float64, int, error) {
	posts, err := s.posts(ctx, src, date)
	if err != nil || len(posts) == 0 {
		return nil, 0, err
	}

	var engagements, reach int64
	for _, p := range posts {
		engagements += p.Likes + p.Comments + p.Shares
		reach += p.Reach
	}

	if reach == 0 {
		if src.page.FollowersCount == 0 {
			return nil, 0, nil
		}
		v, _, _ := percent(float64(engagements), float64(src.page.FollowersCount))
		return v, QualityEstimated, nil
	}
	return percent(float64(engagements), float64(reach))
}

// reachRate = reach / followers * 100
func (s *FacebookStrategy) reachRate(ctx context.Context, src *facebookSource, date time.Time) (*float64, int, error) {
	posts, err := s.posts(ctx, src, date)
	if err != nil || len(posts) == 0 {
		return nil, 0, err
	}

	var reach int64
	for _, p := range posts {
		reach += p.Reach
	}
	if reach == 0 {
		return nil, 0, nil
	}
	return percent(float64(reach), float64(src.page.FollowersCount))
}

// costPerLead = spend / leads over lead generation campaigns only.
func (s *FacebookStrategy) costPerLead(ctx context.Context, src *facebookSource, date time.Time) (*float64, int, error) {
	ads, err := s.ads(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}

	var spend float64
	var leads int64
	n := 0
	for _, a := range ads {
		if a.Objective != objectiveLeadGeneration {
			continue
		}
		n++
		spend += a.Spend
		leads += a.Leads
	}
	src.meta.RecordCount = n
	if n == 0 {
		return nil, 0, nil
	}
	return ratio(spend, float64(leads))
}

func (s *FacebookStrategy) pageGrowthRate(ctx context.Context, src *facebookSource, date time.Time) (*float64, int, error) {
	return growthFromHistory(ctx, s.history, ServiceFacebook, src.tenantID, s.formulas.codes, date, src.page.FollowersCount)
}

// contentEngagement is the average weighted score per post: likes + 2*comments + 3*shares.
func (s *FacebookStrategy) contentEngagement(ctx context.Context, src *facebookSource, date time.Time) (*float64, int, error) {
	posts, err := s.posts(ctx, src, date)
	if err != nil || len(posts) == 0 {
		return nil, 0, err
	}

	var score int64
	for _, p := range posts {
		score += p.Likes + 2*p.Comments + 3*p.Shares
	}
	return ratio(float64(score), float64(len(posts)))
}

// videoCompletionRate = completions / views * 100 over video posts.
func (s *FacebookStrategy) videoCompletionRate(ctx context.Context, src *facebookSource, date time.Time) (*float64, int, error) {
	posts, err := s.mirror.FacebookPosts(ctx, src.page.ID, date)
	if err != nil {
		return nil, 0, err
	}

	var views, completions int64
	n := 0
	for _, p := range posts {
		if p.PostType != postTypeVideo {
			continue
		}
		n++
		views += p.VideoViews
		completions += p.VideoCompletions
	}
	src.meta.RecordCount = n
	if n == 0 {
		return nil, 0, nil
	}
	return percent(float64(completions), float64(views))
}
