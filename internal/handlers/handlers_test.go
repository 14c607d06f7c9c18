package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/auth"
	"github.com/kinship-app/backend/internal/calls"
	"github.com/kinship-app/backend/internal/database"
	"github.com/kinship-app/backend/internal/feed"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/notify"
	"github.com/kinship-app/backend/internal/push"
	"github.com/kinship-app/backend/internal/tracking"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type HandlersSuite struct {
	suite.Suite
	router    *gin.Engine
	transport *push.FakeTransport
}

func (s *HandlersSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(s.T(), err)
	require.NoError(s.T(), db.AutoMigrate(database.AllModels()...))
	database.DB = db

	s.transport = push.NewFakeTransport()

	authService := auth.NewService([]byte("test-secret"), nil)
	notifyService := notify.NewService(db, s.transport)
	issuer := calls.NewHMACIssuer("test-app", "test-secret", 0)

	h := New(
		authService,
		feed.NewService(db, nil),
		notifyService,
		tracking.NewService(db),
		calls.NewService(db, issuer, notifyService),
		nil,
	)

	s.router = gin.New()
	h.RegisterRoutes(s.router)
}

// request performs a JSON request, optionally authenticated.
func (s *HandlersSuite) request(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlersSuite) decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// registerUser creates an account through the API and returns its token and id.
func (s *HandlersSuite) registerUser(email, phone string) (token, userID string) {
	w := s.request(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name":     "Test User",
		"email":    email,
		"phone":    phone,
		"password": "supersecret1",
	})
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())

	data := s.decode(w)["data"].(map[string]interface{})
	token = data["token"].(string)
	userID = data["user"].(map[string]interface{})["id"].(string)
	return token, userID
}

// makeAdmin flips an account to the admin role directly in the database.
func (s *HandlersSuite) makeAdmin(userID string) {
	require.NoError(s.T(),
		database.DB.Model(&models.User{}).Where("id = ?", userID).
			Update("role", models.RoleAdmin).Error)
}

// createLivePost creates a post and approves it through the admin API.
func (s *HandlersSuite) createLivePost(authorToken, adminToken, body string) string {
	w := s.request(http.MethodPost, "/api/v1/posts", authorToken, gin.H{"body": body})
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	postID := s.decode(w)["data"].(map[string]interface{})["id"].(string)

	w = s.request(http.MethodPost, "/api/v1/admin/posts/"+postID+"/review", adminToken,
		gin.H{"action": "approve"})
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	return postID
}

func (s *HandlersSuite) TestRegisterDuplicateEmailConflicts() {
	s.registerUser("dup@example.com", "+15550000001")

	w := s.request(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name":     "Second",
		"email":    "dup@example.com",
		"phone":    "+15550000002",
		"password": "supersecret1",
	})
	s.Equal(http.StatusConflict, w.Code)

	var count int64
	database.DB.Model(&models.User{}).Where("email = ?", "dup@example.com").Count(&count)
	s.Equal(int64(1), count)
}

func (s *HandlersSuite) TestPasswordHashNeverSerialized() {
	token, _ := s.registerUser("hash@example.com", "+15550000003")

	w := s.request(http.MethodGet, "/api/v1/auth/me", token, nil)
	s.Equal(http.StatusOK, w.Code)
	s.NotContains(w.Body.String(), "password")
	s.NotContains(w.Body.String(), "$2a$")
}

func (s *HandlersSuite) TestLoginFlow() {
	s.registerUser("login@example.com", "+15550000004")

	w := s.request(http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "login@example.com",
		"password": "supersecret1",
	})
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "login@example.com",
		"password": "wrongpassword",
	})
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlersSuite) TestFollowUnfollowLifecycle() {
	aliceToken, _ := s.registerUser("alice@example.com", "+15550000005")
	_, bobID := s.registerUser("bob@example.com", "+15550000006")

	w := s.request(http.MethodPost, "/api/v1/users/"+bobID+"/follow", aliceToken, nil)
	s.Equal(http.StatusCreated, w.Code)

	// Double follow conflicts
	w = s.request(http.MethodPost, "/api/v1/users/"+bobID+"/follow", aliceToken, nil)
	s.Equal(http.StatusConflict, w.Code)

	w = s.request(http.MethodDelete, "/api/v1/users/"+bobID+"/follow", aliceToken, nil)
	s.Equal(http.StatusOK, w.Code)

	// No edge remains
	var count int64
	database.DB.Model(&models.Follow{}).Where("following_id = ?", bobID).Count(&count)
	s.Zero(count)

	// Unfollowing again is a 404
	w = s.request(http.MethodDelete, "/api/v1/users/"+bobID+"/follow", aliceToken, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlersSuite) TestNewPostInvisibleUntilApproved() {
	authorToken, authorID := s.registerUser("author@example.com", "+15550000007")
	adminToken, adminID := s.registerUser("admin@example.com", "+15550000008")
	s.makeAdmin(adminID)
	// Re-login so the admin token carries the fresh role
	w := s.request(http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": "admin@example.com", "password": "supersecret1",
	})
	adminToken = s.decode(w)["data"].(map[string]interface{})["token"].(string)

	w = s.request(http.MethodPost, "/api/v1/posts", authorToken, gin.H{"body": "pending post"})
	require.Equal(s.T(), http.StatusCreated, w.Code)
	postID := s.decode(w)["data"].(map[string]interface{})["id"].(string)

	// Anonymous fetch cannot see an inReview post
	w = s.request(http.MethodGet, "/api/v1/posts/"+postID, "", nil)
	s.Equal(http.StatusNotFound, w.Code)

	// The owner still can
	w = s.request(http.MethodGet, "/api/v1/posts/"+postID, authorToken, nil)
	s.Equal(http.StatusOK, w.Code)

	// Approve, stamping the reviewer
	w = s.request(http.MethodPost, "/api/v1/admin/posts/"+postID+"/review", adminToken,
		gin.H{"action": "approve"})
	require.Equal(s.T(), http.StatusOK, w.Code, w.Body.String())
	reviewed := s.decode(w)["data"].(map[string]interface{})
	s.Equal("live", reviewed["status"])
	s.Equal(adminID, reviewed["reviewed_by_id"])

	// Now the anonymous feed shows it
	w = s.request(http.MethodGet, "/api/v1/posts", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), postID)
	s.Contains(w.Body.String(), authorID)
}

func (s *HandlersSuite) TestFeedEnvelopeShape() {
	w := s.request(http.MethodGet, "/api/v1/posts", "", nil)
	s.Equal(http.StatusOK, w.Code)

	data := s.decode(w)["data"].(map[string]interface{})
	s.Contains(data, "page")
	s.Contains(data, "limit")
	s.Contains(data, "has_more")
	s.NotContains(data, "total")
}

func (s *HandlersSuite) TestLikeUnlikePost() {
	authorToken, _ := s.registerUser("liker-author@example.com", "+15550000009")
	adminToken := s.freshAdmin("like-admin@example.com", "+15550000010")
	likerToken, _ := s.registerUser("liker@example.com", "+15550000011")

	postID := s.createLivePost(authorToken, adminToken, "like me")

	w := s.request(http.MethodPost, "/api/v1/posts/"+postID+"/like", likerToken, nil)
	s.Equal(http.StatusOK, w.Code)

	// Second like conflicts instead of double counting
	w = s.request(http.MethodPost, "/api/v1/posts/"+postID+"/like", likerToken, nil)
	s.Equal(http.StatusConflict, w.Code)

	var post models.Post
	require.NoError(s.T(), database.DB.First(&post, "id = ?", postID).Error)
	s.Equal(1, post.LikeCount)

	w = s.request(http.MethodDelete, "/api/v1/posts/"+postID+"/like", likerToken, nil)
	s.Equal(http.StatusOK, w.Code)

	require.NoError(s.T(), database.DB.First(&post, "id = ?", postID).Error)
	s.Zero(post.LikeCount)
}

func (s *HandlersSuite) TestCommentCountersMoveByOne() {
	authorToken, _ := s.registerUser("c-author@example.com", "+15550000012")
	adminToken := s.freshAdmin("c-admin@example.com", "+15550000013")
	commenterToken, _ := s.registerUser("commenter@example.com", "+15550000014")

	postID := s.createLivePost(authorToken, adminToken, "discuss")

	w := s.request(http.MethodPost, "/api/v1/posts/"+postID+"/comments", commenterToken,
		gin.H{"body": "first!"})
	require.Equal(s.T(), http.StatusCreated, w.Code)
	commentID := s.decode(w)["data"].(map[string]interface{})["id"].(string)

	var post models.Post
	require.NoError(s.T(), database.DB.First(&post, "id = ?", postID).Error)
	s.Equal(1, post.CommentCount)

	// A reply bumps the parent's reply counter, not the post counter
	w = s.request(http.MethodPost, "/api/v1/posts/"+postID+"/comments", commenterToken,
		gin.H{"body": "replying to myself", "parent_id": commentID})
	require.Equal(s.T(), http.StatusCreated, w.Code)

	require.NoError(s.T(), database.DB.First(&post, "id = ?", postID).Error)
	s.Equal(1, post.CommentCount)

	var parent models.Comment
	require.NoError(s.T(), database.DB.First(&parent, "id = ?", commentID).Error)
	s.Equal(1, parent.ReplyCount)

	// Deleting the top-level comment restores the post counter
	w = s.request(http.MethodDelete, "/api/v1/comments/"+commentID, commenterToken, nil)
	s.Equal(http.StatusOK, w.Code)

	require.NoError(s.T(), database.DB.First(&post, "id = ?", postID).Error)
	s.Zero(post.CommentCount)
}

func (s *HandlersSuite) TestPollSingleVoteEnforced() {
	authorToken, _ := s.registerUser("p-author@example.com", "+15550000015")
	adminToken := s.freshAdmin("p-admin@example.com", "+15550000016")
	voterToken, _ := s.registerUser("voter@example.com", "+15550000017")

	w := s.request(http.MethodPost, "/api/v1/posts", authorToken, gin.H{
		"body": "choose",
		"poll": gin.H{
			"question": "tabs or spaces?",
			"options":  []gin.H{{"text": "tabs"}, {"text": "spaces"}},
		},
	})
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	postID := s.decode(w)["data"].(map[string]interface{})["id"].(string)

	w = s.request(http.MethodPost, "/api/v1/admin/posts/"+postID+"/review", adminToken,
		gin.H{"action": "approve"})
	require.Equal(s.T(), http.StatusOK, w.Code)

	w = s.request(http.MethodPost, "/api/v1/posts/"+postID+"/vote", voterToken,
		gin.H{"option_index": 0})
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	// Second ballot on a single-vote poll is rejected
	w = s.request(http.MethodPost, "/api/v1/posts/"+postID+"/vote", voterToken,
		gin.H{"option_index": 1})
	s.Equal(http.StatusConflict, w.Code)

	var post models.Post
	require.NoError(s.T(), database.DB.First(&post, "id = ?", postID).Error)
	s.Len(post.Poll.Options[0].Votes, 1)
	s.Empty(post.Poll.Options[1].Votes)
}

func (s *HandlersSuite) TestNotificationReadReceipts() {
	userToken, userID := s.registerUser("n-user@example.com", "+15550000018")
	adminToken := s.freshAdmin("n-admin@example.com", "+15550000019")

	// Register a device so delivery succeeds
	w := s.request(http.MethodPost, "/api/v1/devices", userToken, gin.H{
		"token": "device-token-12345", "platform": "ios",
	})
	require.Equal(s.T(), http.StatusCreated, w.Code)

	w = s.request(http.MethodPost, "/api/v1/admin/notifications", adminToken, gin.H{
		"recipient_id": userID,
		"title":        "hello",
		"body":         "world",
	})
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	notifID := s.decode(w)["data"].(map[string]interface{})["id"].(string)

	w = s.request(http.MethodPost, "/api/v1/notifications/"+notifID+"/read", userToken, nil)
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	var n models.Notification
	require.NoError(s.T(), database.DB.First(&n, "id = ?", notifID).Error)
	s.Equal(models.NotificationRead, n.Status)
}

func (s *HandlersSuite) TestAdminEndpointsRequireAdminRole() {
	userToken, _ := s.registerUser("plain@example.com", "+15550000020")

	w := s.request(http.MethodGet, "/api/v1/admin/dashboard", userToken, nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.request(http.MethodGet, "/api/v1/admin/dashboard", "", nil)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlersSuite) TestSessionTracking() {
	token, _ := s.registerUser("track@example.com", "+15550000021")

	w := s.request(http.MethodPost, "/api/v1/sessions/start", token, gin.H{
		"device": "iPhone15,2", "app_version": "3.2.0",
	})
	require.Equal(s.T(), http.StatusCreated, w.Code)
	sessionID := s.decode(w)["data"].(map[string]interface{})["id"].(string)

	w = s.request(http.MethodPost, "/api/v1/sessions/"+sessionID+"/screens", token,
		gin.H{"screen_name": "feed"})
	s.Equal(http.StatusCreated, w.Code)

	w = s.request(http.MethodPost, "/api/v1/sessions/"+sessionID+"/actions", token,
		gin.H{"action": "pull_to_refresh"})
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodPost, "/api/v1/sessions/"+sessionID+"/end", token, nil)
	s.Equal(http.StatusOK, w.Code)

	// Every activity is closed with a non-negative duration
	var activities []models.ScreenActivity
	require.NoError(s.T(), database.DB.Where("session_id = ?", sessionID).Find(&activities).Error)
	require.NotEmpty(s.T(), activities)
	for _, a := range activities {
		s.NotNil(a.ExitedAt)
		s.GreaterOrEqual(a.DurationSeconds, int64(0))
	}
}

func (s *HandlersSuite) TestCallSignalingOverHTTP() {
	callerToken, _ := s.registerUser("hcaller@example.com", "+15550000022")
	receiverToken, receiverID := s.registerUser("hreceiver@example.com", "+15550000023")

	w := s.request(http.MethodPost, "/api/v1/calls", callerToken,
		gin.H{"receiver_id": receiverID})
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())
	data := s.decode(w)["data"].(map[string]interface{})
	callID := data["call"].(map[string]interface{})["call_id"].(string)

	w = s.request(http.MethodPost, "/api/v1/calls/"+callID+"/answer", receiverToken, nil)
	s.Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.request(http.MethodPost, "/api/v1/calls/"+callID+"/end", callerToken, nil)
	s.Equal(http.StatusOK, w.Code)

	w = s.request(http.MethodGet, "/api/v1/calls", callerToken, nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), callID)
}

// freshAdmin registers an account, promotes it, and logs in again so the
// token reflects the admin role.
func (s *HandlersSuite) freshAdmin(email, phone string) string {
	_, id := s.registerUser(email, phone)
	s.makeAdmin(id)

	w := s.request(http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": email, "password": "supersecret1",
	})
	require.Equal(s.T(), http.StatusOK, w.Code)
	return s.decode(w)["data"].(map[string]interface{})["token"].(string)
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}
