package biz

import (
	"context"
	"fmt"
	"time"

	"SyncGuard/internal/data"
	"SyncGuard/pkg/metadata"

	"github.com/go-kratos/kratos/v2/log"
)

// Instagram metric codes, in sync order.
const (
	MetricEngagementRate        = "engagement_rate"
	MetricFollowerGrowth        = "follower_growth"
	MetricReachRate             = "reach_rate"
	MetricInstagramCTR          = "instagram_ctr"
	MetricContentEngagement     = "content_engagement"
	MetricSocialResponseTime    = "social_response_time"
	MetricUserGeneratedContent  = "user_generated_content"
	MetricBrandMentionFrequency = "brand_mention_frequency"
)

type instagramSource struct {
	tenantID int64
	account  *data.InstagramBusinessAccount
	meta     *metadata.SyncMetadata
}

// InstagramStrategy computes KPIs from mirrored Instagram posts and stories.
type InstagramStrategy struct {
	mirror   InstagramMirror
	history  ActualHistory
	formulas *formulaTable[*instagramSource]
	logger   *log.Helper
}

// NewInstagramStrategy creates the instagram_api strategy.
func NewInstagramStrategy(mirror InstagramMirror, history ActualHistory, logger log.Logger) *InstagramStrategy {
	s := &InstagramStrategy{
		mirror:  mirror,
		history: history,
		logger:  log.NewHelper(logger),
	}
	s.formulas = newFormulaTable[*instagramSource]().
		add(MetricEngagementRate, s.engagementRate).
		add(MetricFollowerGrowth, s.followerGrowth).
		add(MetricReachRate, s.reachRate).
		add(MetricInstagramCTR, s.clickThroughRate).
		add(MetricContentEngagement, s.contentEngagement).
		// no mirrored inputs for these yet
		add(MetricSocialResponseTime, noData[*instagramSource]).
		add(MetricUserGeneratedContent, noData[*instagramSource]).
		add(MetricBrandMentionFrequency, noData[*instagramSource])
	return s
}

// ServiceName implements SyncStrategy.
func (s *InstagramStrategy) ServiceName() string { return ServiceInstagram }

// SupportedMetrics implements SyncStrategy.
func (s *InstagramStrategy) SupportedMetrics() []string { return s.formulas.supported() }

// IsAvailable reports whether the tenant has an active Instagram account.
func (s *InstagramStrategy) IsAvailable(ctx context.Context, tenantID int64) (bool, error) {
	acc, err := s.mirror.ActiveInstagramAccount(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return acc != nil, nil
}

// SyncOneMetric implements SyncStrategy.
func (s *InstagramStrategy) SyncOneMetric(ctx context.Context, tenantID int64, metricCode string, date time.Time) (*MetricResult, error) {
	acc, err := s.mirror.ActiveInstagramAccount(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return &MetricResult{MetricCode: metricCode, Message: "instagram account not connected"}, nil
	}

	followers := acc.FollowersCount
	src := &instagramSource{
		tenantID: tenantID,
		account:  acc,
		meta: &metadata.SyncMetadata{
			SourceAccountID:   acc.ID,
			SourceAccountName: acc.Username,
			FollowersCount:    &followers,
		},
	}
	return s.formulas.evaluate(ctx, metricCode, src, date, src.meta)
}

func (s *InstagramStrategy) content(ctx context.Context, src *instagramSource, date time.Time) ([]data.InstagramPost, []data.InstagramStory, error) {
	posts, err := s.mirror.InstagramPosts(ctx, src.account.ID, date)
	if err != nil {
		return nil, nil, err
	}
	stories, err := s.mirror.InstagramStories(ctx, src.account.ID, date)
	if err != nil {
		return nil, nil, err
	}
	src.meta.RecordCount = len(posts) + len(stories)
	return posts, stories, nil
}

// engagementRate = interactions / reach * 100, falling back to followers when the
// day's content reports no reach.
func (s *InstagramStrategy) engagementRate(ctx context.Context, src *instagramSource, date time.Time) (*float64, int, error) {
	posts, stories, err := s.content(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}
	if len(posts) == 0 && len(stories) == 0 {
		return nil, 0, nil
	}

	var engagements, reach int64
	for _, p := range posts {
		engagements += p.LikesCount + p.CommentsCount + p.SavesCount
		reach += p.Reach
	}
	for _, st := range stories {
		engagements += st.RepliesCount + st.TapsForward + st.TapsBack
		reach += st.Reach
	}

	if reach == 0 {
		if src.account.FollowersCount == 0 {
			return nil, 0, nil
		}
		v, _, _ := percent(float64(engagements), float64(src.account.FollowersCount))
		return v, QualityEstimated, nil
	}
	return percent(float64(engagements), float64(reach))
}

// followerGrowth compares today's follower count with the count stored in the
// previous day's sync metadata.
func (s *InstagramStrategy) followerGrowth(ctx context.Context, src *instagramSource, date time.Time) (*float64, int, error) {
	return growthFromHistory(ctx, s.history, ServiceInstagram, src.tenantID, s.formulas.codes, date, src.account.FollowersCount)
}

// reachRate = reach / followers * 100
func (s *InstagramStrategy) reachRate(ctx context.Context, src *instagramSource, date time.Time) (*float64, int, error) {
	posts, stories, err := s.content(ctx, src, date)
	if err != nil {
		return nil, 0, err
	}
	if len(posts) == 0 && len(stories) == 0 {
		return nil, 0, nil
	}

	var reach int64
	for _, p := range posts {
		reach += p.Reach
	}
	for _, st := range stories {
		reach += st.Reach
	}
	if reach == 0 {
		return nil, 0, nil
	}
	return percent(float64(reach), float64(src.account.FollowersCount))
}

// clickThroughRate = story link clicks / reach of stories carrying a link * 100
func (s *InstagramStrategy) clickThroughRate(ctx context.Context, src *instagramSource, date time.Time) (*float64, int, error) {
	stories, err := s.mirror.InstagramStories(ctx, src.account.ID, date)
	if err != nil {
		return nil, 0, err
	}

	var clicks, reach int64
	linked := 0
	for _, st := range stories {
		if st.LinkClicks == nil {
			continue
		}
		linked++
		clicks += *st.LinkClicks
		reach += st.Reach
	}
	src.meta.RecordCount = linked
	if linked == 0 {
		return nil, 0, nil
	}
	return percent(float64(clicks), float64(reach))
}

// contentEngagement is the average weighted score per post:
// likes + 2*comments + 3*saves + 4*shares.
func (s *InstagramStrategy) contentEngagement(ctx context.Context, src *instagramSource, date time.Time) (*float64, int, error) {
	posts, err := s.mirror.InstagramPosts(ctx, src.account.ID, date)
	if err != nil {
		return nil, 0, err
	}
	src.meta.RecordCount = len(posts)
	if len(posts) == 0 {
		return nil, 0, nil
	}

	var score int64
	for _, p := range posts {
		score += p.LikesCount + 2*p.CommentsCount + 3*p.SavesCount + 4*p.SharesCount
	}
	return ratio(float64(score), float64(len(posts)))
}

// growthFromHistory returns (current - previous) / previous * 100, where previous is
// the followers snapshot kept in the metadata of any actual the same service stored
// for the previous day. codes are tried in order.
func growthFromHistory(ctx context.Context, history ActualHistory, service string, tenantID int64, codes []string, date time.Time, current int64) (*float64, int, error) {
	for _, code := range codes {
		prev, err := history.GetPrevious(ctx, tenantID, code, date)
		if err != nil {
			return nil, 0, err
		}
		if prev == nil || prev.DataSource != service {
			continue
		}

		meta, err := metadata.Parse(prev.SyncMetadata)
		if err != nil {
			return nil, 0, fmt.Errorf("previous %s metadata: %w", code, err)
		}
		if meta.FollowersCount == nil || *meta.FollowersCount == 0 {
			continue
		}

		previous := float64(*meta.FollowersCount)
		return percent(float64(current)-previous, previous)
	}
	return nil, 0, nil
}
