package seed

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/kinship-app/backend/internal/logger"
	"github.com/kinship-app/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options controls how much demo data the seeder generates.
type Options struct {
	Users         int
	PostsPerUser  int
	FollowsPerUsr int
	Password      string
}

// DefaultOptions is a small but realistic demo dataset.
func DefaultOptions() Options {
	return Options{
		Users:         25,
		PostsPerUser:  4,
		FollowsPerUsr: 5,
		Password:      "password123",
	}
}

// Run populates the database with demo accounts, a follow graph, posts
// (some with polls), comments, and likes. The first account is an admin:
// admin@kinship.test / the shared password.
func Run(db *gorm.DB, opts Options) error {
	gofakeit.Seed(time.Now().UnixNano())

	hashed, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash seed password: %w", err)
	}
	hashedStr := string(hashed)

	users := make([]*models.User, 0, opts.Users)

	admin := &models.User{
		Name:         "Admin",
		Email:        "admin@kinship.test",
		Phone:        "+10000000000",
		PasswordHash: &hashedStr,
		Role:         models.RoleAdmin,
		IsActive:     true,
		Bio:          "Keeps the lights on.",
	}
	if err := db.Create(admin).Error; err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}
	users = append(users, admin)

	for i := 1; i < opts.Users; i++ {
		user := &models.User{
			Name:         gofakeit.Name(),
			Email:        fmt.Sprintf("user%d@%s", i, gofakeit.DomainName()),
			Phone:        fmt.Sprintf("+1%010d", gofakeit.Number(2000000000, 9999999999)),
			PasswordHash: &hashedStr,
			Role:         models.RoleUser,
			IsActive:     true,
			Bio:          gofakeit.Sentence(8),
			AvatarURL:    gofakeit.ImageURL(200, 200),
		}
		if err := db.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create user %d: %w", i, err)
		}
		users = append(users, user)
	}
	logger.Log.Info("seeded users", zap.Int("count", len(users)))

	// Follow graph
	for _, follower := range users {
		for _, target := range pickOthers(users, follower, opts.FollowsPerUsr) {
			follow := models.Follow{
				FollowerID:  follower.ID,
				FollowingID: target.ID,
				Status:      models.FollowAccepted,
			}
			db.Create(&follow)
		}
	}

	// Posts, most approved so feeds have content
	var posts []*models.Post
	for _, author := range users {
		for p := 0; p < opts.PostsPerUser; p++ {
			post := &models.Post{
				UserID:     author.ID,
				Body:       gofakeit.Paragraph(1, 3, 12, " "),
				Visibility: models.VisibilityPublic,
				Status:     models.PostLive,
				IsActive:   true,
			}
			if rand.Intn(10) == 0 {
				post.Status = models.PostInReview
			}
			if rand.Intn(6) == 0 {
				post.Poll = demoPoll()
			}
			if err := db.Create(post).Error; err != nil {
				return fmt.Errorf("failed to create post: %w", err)
			}
			// Spread creation times so recency ranking has texture
			created := time.Now().UTC().Add(-time.Duration(rand.Intn(96)) * time.Hour)
			db.Model(post).UpdateColumn("created_at", created)
			posts = append(posts, post)
		}
	}
	logger.Log.Info("seeded posts", zap.Int("count", len(posts)))

	// Comments and likes
	for _, post := range posts {
		if post.Status != models.PostLive {
			continue
		}
		for _, commenter := range pickOthers(users, nil, rand.Intn(4)) {
			comment := models.Comment{
				PostID: post.ID,
				UserID: commenter.ID,
				Body:   gofakeit.Sentence(10),
			}
			db.Create(&comment)
		}
		for _, liker := range pickOthers(users, nil, rand.Intn(8)) {
			like := models.PostLike{PostID: post.ID, UserID: liker.ID}
			if err := db.Create(&like).Error; err == nil {
				db.Model(&models.Post{}).Where("id = ?", post.ID).
					UpdateColumn("like_count", gorm.Expr("like_count + 1"))
			}
		}
	}

	logger.Log.Info("seeding complete")
	return nil
}

func demoPoll() *models.Poll {
	expires := time.Now().UTC().Add(72 * time.Hour)
	return &models.Poll{
		Question: gofakeit.Question(),
		Options: []models.PollOption{
			{Text: gofakeit.Word()},
			{Text: gofakeit.Word()},
			{Text: gofakeit.Word()},
		},
		ExpiresAt: &expires,
	}
}

// pickOthers samples up to n distinct users, excluding self when given.
func pickOthers(users []*models.User, self *models.User, n int) []*models.User {
	if n <= 0 {
		return nil
	}
	shuffled := make([]*models.User, len(users))
	copy(shuffled, users)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	out := make([]*models.User, 0, n)
	for _, u := range shuffled {
		if self != nil && u.ID == self.ID {
			continue
		}
		out = append(out, u)
		if len(out) == n {
			break
		}
	}
	return out
}
