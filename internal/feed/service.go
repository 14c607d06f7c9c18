package feed

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/kinship-app/backend/internal/cache"
	"github.com/kinship-app/backend/internal/logger"
	"github.com/kinship-app/backend/internal/metrics"
	"github.com/kinship-app/backend/internal/models"
	"gorm.io/gorm"
)

const (
	// MinLimit and MaxLimit bound the page size a caller may request.
	MinLimit = 10
	MaxLimit = 30

	// followFetchFactor over-fetches the followed window so dedupe and
	// visibility filtering still leave a full page.
	followFetchFactor = 2
	backfillBuffer    = 5

	// Evergreen recycling only kicks in on deep pages, when fresh content
	// is running out.
	recycleThreshold  = 3
	evergreenPoolSize = 50
	evergreenCacheKey = "feed:evergreen"
	evergreenCacheTTL = 10 * time.Minute
)

// Page is one composed feed page. There is no total count: the feed
// reports has_more instead of exact pagination totals.
type Page struct {
	Posts   []models.Post `json:"posts"`
	Page    int           `json:"page"`
	Limit   int           `json:"limit"`
	HasMore bool          `json:"has_more"`
}

// lockedRand serializes jitter draws; pages compose concurrently and
// math/rand.Rand is not safe for concurrent use.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

// Service composes personalized feed pages from followed-author posts,
// trending public backfill, and evergreen filler for deep pages.
type Service struct {
	db    *gorm.DB
	cache *cache.RedisClient // nil degrades to DB-only evergreen lookups
	rng   *lockedRand
}

// NewService creates a feed service. cacheClient may be nil.
func NewService(db *gorm.DB, cacheClient *cache.RedisClient) *Service {
	return &Service{
		db:    db,
		cache: cacheClient,
		rng:   &lockedRand{rng: rand.New(rand.NewSource(time.Now().UnixNano()))},
	}
}

// WithRand replaces the jitter source, for deterministic tests.
func (s *Service) WithRand(rng *rand.Rand) *Service {
	s.rng = &lockedRand{rng: rng}
	return s
}

// ComposePage builds one feed page for the given viewer (nil = anonymous).
// Only live, active posts ever appear, each at most once per page.
func (s *Service) ComposePage(ctx context.Context, viewer *models.User, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < MinLimit {
		limit = MinLimit
	} else if limit > MaxLimit {
		limit = MaxLimit
	}

	followedIDs, err := s.followTargets(viewer)
	if err != nil {
		return nil, err
	}
	followedSet := make(map[string]bool, len(followedIDs))
	for _, id := range followedIDs {
		followedSet[id] = true
	}

	offset := (page - 1) * limit

	var posts []models.Post
	if len(followedIDs) > 0 {
		if err := s.liveBase().
			Where("user_id IN ?", followedIDs).
			Where("visibility IN ?", []string{string(models.VisibilityPublic), string(models.VisibilityFollowers)}).
			Order("created_at DESC").
			Offset(offset).
			Limit(followFetchFactor * limit).
			Find(&posts).Error; err != nil {
			return nil, err
		}
	}

	// Trending backfill when the followed window comes up short
	if len(posts) < limit {
		shortfall := limit - len(posts)
		excluded := append([]string{}, followedIDs...)
		if viewer != nil {
			excluded = append(excluded, viewer.ID)
		}

		trendingQuery := s.liveBase().
			Where("visibility = ?", models.VisibilityPublic).
			Order("like_count DESC, comment_count DESC, created_at DESC").
			Offset(offset).
			Limit(shortfall + backfillBuffer)
		if len(excluded) > 0 {
			trendingQuery = trendingQuery.Where("user_id NOT IN ?", excluded)
		}

		var trending []models.Post
		if err := trendingQuery.Find(&trending).Error; err != nil {
			return nil, err
		}
		posts = append(posts, trending...)
	}

	posts = dedupe(posts)
	posts = rankPosts(posts, followedSet, time.Now().UTC(), s.rng)

	if len(posts) > limit {
		posts = posts[:limit]
	}

	// Deep pages recycle high-engagement evergreen posts to sustain scroll
	if len(posts) < limit && page > recycleThreshold {
		posts = s.appendEvergreen(ctx, posts, limit)
	}

	metrics.Get().FeedPagesComposed.Inc()

	return &Page{
		Posts:   posts,
		Page:    page,
		Limit:   limit,
		HasMore: len(posts) == limit,
	}, nil
}

// liveBase is the guard every feed query starts from: live and active only.
func (s *Service) liveBase() *gorm.DB {
	return s.db.Model(&models.Post{}).
		Preload("User").
		Where("status = ? AND is_active = ?", models.PostLive, true)
}

// followTargets resolves the viewer's accepted follow edges.
func (s *Service) followTargets(viewer *models.User) ([]string, error) {
	if viewer == nil {
		return nil, nil
	}
	var ids []string
	err := s.db.Model(&models.Follow{}).
		Where("follower_id = ? AND status = ?", viewer.ID, models.FollowAccepted).
		Pluck("following_id", &ids).Error
	return ids, err
}

// appendEvergreen fills the remainder of a deep page with high-engagement
// posts not already on the page.
func (s *Service) appendEvergreen(ctx context.Context, posts []models.Post, limit int) []models.Post {
	seen := make(map[string]bool, len(posts))
	for _, p := range posts {
		seen[p.ID] = true
	}

	ids := s.evergreenIDs(ctx)
	var candidates []string
	for _, id := range ids {
		if !seen[id] {
			candidates = append(candidates, id)
		}
		if len(candidates) >= limit-len(posts) {
			break
		}
	}
	if len(candidates) == 0 {
		return posts
	}

	var filler []models.Post
	if err := s.liveBase().Where("id IN ?", candidates).Find(&filler).Error; err != nil {
		logger.WarnWithFields("evergreen fill query failed", err)
		return posts
	}
	for _, p := range filler {
		if len(posts) >= limit {
			break
		}
		if !seen[p.ID] {
			seen[p.ID] = true
			posts = append(posts, p)
		}
	}
	return posts
}

// evergreenIDs returns the cached evergreen pool, rebuilding it from the
// database on miss. Cache absence degrades to a direct query.
func (s *Service) evergreenIDs(ctx context.Context) []string {
	if s.cache != nil {
		if cached, err := s.cache.GetList(ctx, evergreenCacheKey); err == nil && len(cached) > 0 {
			return cached
		}
	}

	var ids []string
	err := s.db.Model(&models.Post{}).
		Where("status = ? AND is_active = ? AND visibility = ?", models.PostLive, true, models.VisibilityPublic).
		Order("like_count DESC, comment_count DESC").
		Limit(evergreenPoolSize).
		Pluck("id", &ids).Error
	if err != nil {
		logger.WarnWithFields("evergreen pool query failed", err)
		return nil
	}

	if s.cache != nil && len(ids) > 0 {
		if err := s.cache.SetList(ctx, evergreenCacheKey, ids, evergreenCacheTTL); err != nil {
			logger.WarnWithFields("failed to cache evergreen pool", err)
		}
	}
	return ids
}

// visibleTo reports whether a single post may be shown to the viewer on a
// public fetch. Owner-only views are handled separately by the handlers.
func VisibleTo(post *models.Post, viewerID string, db *gorm.DB) bool {
	if !post.IsActive || post.Status != models.PostLive {
		return false
	}
	switch post.Visibility {
	case models.VisibilityPublic:
		return true
	case models.VisibilityPrivate:
		return strings.EqualFold(post.UserID, viewerID)
	case models.VisibilityFollowers:
		if viewerID == "" {
			return false
		}
		if post.UserID == viewerID {
			return true
		}
		var count int64
		db.Model(&models.Follow{}).
			Where("follower_id = ? AND following_id = ? AND status = ?", viewerID, post.UserID, models.FollowAccepted).
			Count(&count)
		return count > 0
	}
	return false
}
