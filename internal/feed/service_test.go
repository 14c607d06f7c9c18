package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/kinship-app/backend/internal/database"
	"github.com/kinship-app/backend/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type FeedServiceSuite struct {
	suite.Suite
	db     *gorm.DB
	svc    *Service
	viewer *models.User
	friend *models.User
	rando  *models.User
}

func (s *FeedServiceSuite) SetupTest() {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)
	require.NoError(s.T(), db.AutoMigrate(database.AllModels()...))

	s.db = db
	s.svc = NewService(db, nil).WithRand(rand.New(rand.NewSource(1)))

	s.viewer = s.makeUser("viewer@example.com")
	s.friend = s.makeUser("friend@example.com")
	s.rando = s.makeUser("rando@example.com")

	require.NoError(s.T(), db.Create(&models.Follow{
		FollowerID:  s.viewer.ID,
		FollowingID: s.friend.ID,
		Status:      models.FollowAccepted,
	}).Error)
}

func (s *FeedServiceSuite) makeUser(email string) *models.User {
	u := &models.User{Name: email, Email: email, Phone: email, IsActive: true}
	require.NoError(s.T(), s.db.Create(u).Error)
	return u
}

func (s *FeedServiceSuite) makePost(userID string, status models.ModerationStatus, vis models.Visibility, likes int, age time.Duration) *models.Post {
	p := &models.Post{
		UserID:     userID,
		Body:       fmt.Sprintf("post by %s", userID),
		Status:     status,
		Visibility: vis,
		IsActive:   true,
		LikeCount:  likes,
	}
	require.NoError(s.T(), s.db.Create(p).Error)
	// Backdate after create so gorm's timestamp hook does not override it
	created := time.Now().UTC().Add(-age)
	require.NoError(s.T(), s.db.Model(p).UpdateColumn("created_at", created).Error)
	p.CreatedAt = created
	return p
}

func (s *FeedServiceSuite) TestOnlyLivePostsAppear() {
	s.makePost(s.friend.ID, models.PostLive, models.VisibilityPublic, 0, time.Hour)
	s.makePost(s.friend.ID, models.PostInReview, models.VisibilityPublic, 0, time.Hour)
	s.makePost(s.friend.ID, models.PostRejected, models.VisibilityPublic, 0, time.Hour)

	page, err := s.svc.ComposePage(context.Background(), s.viewer, 1, 10)
	require.NoError(s.T(), err)

	require.Len(s.T(), page.Posts, 1)
	s.Equal(models.PostLive, page.Posts[0].Status)
}

func (s *FeedServiceSuite) TestFollowedPostsRankAheadOfTrending() {
	s.makePost(s.friend.ID, models.PostLive, models.VisibilityPublic, 0, 48*time.Hour)
	s.makePost(s.rando.ID, models.PostLive, models.VisibilityPublic, 500, time.Minute)

	page, err := s.svc.ComposePage(context.Background(), s.viewer, 1, 10)
	require.NoError(s.T(), err)

	require.Len(s.T(), page.Posts, 2)
	s.Equal(s.friend.ID, page.Posts[0].UserID)
	s.Equal(s.rando.ID, page.Posts[1].UserID)
}

func (s *FeedServiceSuite) TestNoDuplicatesOnPage() {
	for i := 0; i < 5; i++ {
		s.makePost(s.friend.ID, models.PostLive, models.VisibilityPublic, i, time.Duration(i)*time.Hour)
	}
	for i := 0; i < 5; i++ {
		s.makePost(s.rando.ID, models.PostLive, models.VisibilityPublic, i, time.Duration(i)*time.Hour)
	}

	page, err := s.svc.ComposePage(context.Background(), s.viewer, 1, 10)
	require.NoError(s.T(), err)

	seen := make(map[string]bool)
	for _, p := range page.Posts {
		s.False(seen[p.ID], "post %s appeared twice", p.ID)
		seen[p.ID] = true
	}
}

func (s *FeedServiceSuite) TestPrivatePostsNeverInFeed() {
	s.makePost(s.friend.ID, models.PostLive, models.VisibilityPrivate, 0, time.Hour)
	s.makePost(s.rando.ID, models.PostLive, models.VisibilityPrivate, 100, time.Hour)

	page, err := s.svc.ComposePage(context.Background(), s.viewer, 1, 10)
	require.NoError(s.T(), err)
	s.Empty(page.Posts)
}

func (s *FeedServiceSuite) TestAnonymousViewerGetsTrending() {
	s.makePost(s.rando.ID, models.PostLive, models.VisibilityPublic, 10, time.Hour)
	s.makePost(s.friend.ID, models.PostLive, models.VisibilityPublic, 5, time.Hour)

	page, err := s.svc.ComposePage(context.Background(), nil, 1, 10)
	require.NoError(s.T(), err)

	s.Len(page.Posts, 2)
}

func (s *FeedServiceSuite) TestLimitClamping() {
	page, err := s.svc.ComposePage(context.Background(), nil, 1, 1)
	require.NoError(s.T(), err)
	s.Equal(MinLimit, page.Limit)

	page, err = s.svc.ComposePage(context.Background(), nil, 1, 100)
	require.NoError(s.T(), err)
	s.Equal(MaxLimit, page.Limit)
}

func (s *FeedServiceSuite) TestHasMoreReflectsFullPage() {
	for i := 0; i < 12; i++ {
		s.makePost(s.rando.ID, models.PostLive, models.VisibilityPublic, i, time.Duration(i)*time.Minute)
	}

	page, err := s.svc.ComposePage(context.Background(), nil, 1, 10)
	require.NoError(s.T(), err)
	s.Len(page.Posts, 10)
	s.True(page.HasMore)
}

func (s *FeedServiceSuite) TestHasMoreFalseOnShortPage() {
	s.makePost(s.rando.ID, models.PostLive, models.VisibilityPublic, 0, time.Hour)

	page, err := s.svc.ComposePage(context.Background(), nil, 1, 10)
	require.NoError(s.T(), err)
	s.Len(page.Posts, 1)
	s.False(page.HasMore)
}

func (s *FeedServiceSuite) TestDeepPageEvergreenFill() {
	// One large corpus from a single author so page 4 runs dry of fresh rows
	for i := 0; i < 8; i++ {
		s.makePost(s.rando.ID, models.PostLive, models.VisibilityPublic, 100-i, time.Duration(i)*time.Hour)
	}

	page, err := s.svc.ComposePage(context.Background(), nil, 4, 10)
	require.NoError(s.T(), err)

	// Recycled content keeps the deep page non-empty even though offset 30
	// is past the end of fresh rows.
	s.NotEmpty(page.Posts)
	seen := make(map[string]bool)
	for _, p := range page.Posts {
		s.False(seen[p.ID])
		seen[p.ID] = true
	}
}

func (s *FeedServiceSuite) TestConcurrentComposeIsSafe() {
	// The in-memory sqlite database is per-connection; pin the pool to one
	// connection so every goroutine sees the seeded rows.
	sqlDB, err := s.db.DB()
	require.NoError(s.T(), err)
	sqlDB.SetMaxOpenConns(1)

	for i := 0; i < 15; i++ {
		s.makePost(s.rando.ID, models.PostLive, models.VisibilityPublic, i, time.Duration(i)*time.Minute)
	}

	// Concurrent pages share one jitter source; run under -race this fails
	// if the draws are not serialized.
	var wg sync.WaitGroup
	errs := make(chan error, 8*20)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				page, err := s.svc.ComposePage(context.Background(), nil, 1, 10)
				if err != nil {
					errs <- err
					return
				}
				if len(page.Posts) != 10 {
					errs <- fmt.Errorf("expected a full page, got %d posts", len(page.Posts))
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}
}

func (s *FeedServiceSuite) TestInactivePostsExcluded() {
	p := s.makePost(s.friend.ID, models.PostLive, models.VisibilityPublic, 0, time.Hour)
	require.NoError(s.T(), s.db.Model(p).UpdateColumn("is_active", false).Error)

	page, err := s.svc.ComposePage(context.Background(), s.viewer, 1, 10)
	require.NoError(s.T(), err)
	s.Empty(page.Posts)
}

func TestFeedServiceSuite(t *testing.T) {
	suite.Run(t, new(FeedServiceSuite))
}

func TestVisibleTo(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.AllModels()...))

	owner := &models.User{Name: "o", Email: "o@example.com", Phone: "1", IsActive: true}
	follower := &models.User{Name: "f", Email: "f@example.com", Phone: "2", IsActive: true}
	other := &models.User{Name: "x", Email: "x@example.com", Phone: "3", IsActive: true}
	require.NoError(t, db.Create(owner).Error)
	require.NoError(t, db.Create(follower).Error)
	require.NoError(t, db.Create(other).Error)
	require.NoError(t, db.Create(&models.Follow{
		FollowerID: follower.ID, FollowingID: owner.ID, Status: models.FollowAccepted,
	}).Error)

	post := func(vis models.Visibility) *models.Post {
		return &models.Post{UserID: owner.ID, Visibility: vis, Status: models.PostLive, IsActive: true}
	}

	require.True(t, VisibleTo(post(models.VisibilityPublic), "", db))
	require.True(t, VisibleTo(post(models.VisibilityPrivate), owner.ID, db))
	require.False(t, VisibleTo(post(models.VisibilityPrivate), follower.ID, db))
	require.True(t, VisibleTo(post(models.VisibilityFollowers), follower.ID, db))
	require.False(t, VisibleTo(post(models.VisibilityFollowers), other.ID, db))
	require.False(t, VisibleTo(post(models.VisibilityFollowers), "", db))

	rejected := post(models.VisibilityPublic)
	rejected.Status = models.PostRejected
	require.False(t, VisibleTo(rejected, owner.ID, db))
}
