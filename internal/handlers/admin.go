package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/database"
	apperrors "github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/util"
)

// AdminDashboard handles GET /admin/dashboard with headline aggregates.
func (h *Handlers) AdminDashboard(c *gin.Context) {
	var (
		totalUsers    int64
		activeUsers   int64
		totalPosts    int64
		pendingPosts  int64
		livePosts     int64
		totalComments int64
		failedSends   int64
	)

	database.DB.Model(&models.User{}).Count(&totalUsers)
	database.DB.Model(&models.User{}).Where("is_active = ?", true).Count(&activeUsers)
	database.DB.Model(&models.Post{}).Count(&totalPosts)
	database.DB.Model(&models.Post{}).Where("status = ?", models.PostInReview).Count(&pendingPosts)
	database.DB.Model(&models.Post{}).Where("status = ? AND is_active = ?", models.PostLive, true).Count(&livePosts)
	database.DB.Model(&models.Comment{}).Count(&totalComments)
	database.DB.Model(&models.Notification{}).Where("status = ?", models.NotificationFailed).Count(&failedSends)

	summary, err := h.tracking.Summarize(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		util.RespondInternalError(c, "failed to aggregate sessions")
		return
	}

	util.RespondData(c, gin.H{
		"users":                gin.H{"total": totalUsers, "active": activeUsers},
		"posts":                gin.H{"total": totalPosts, "pending_review": pendingPosts, "live": livePosts},
		"comments":             gin.H{"total": totalComments},
		"failed_notifications": failedSends,
		"sessions_24h":         summary,
	})
}

// AdminListPosts handles GET /admin/posts, defaulting to the review queue.
func (h *Handlers) AdminListPosts(c *gin.Context) {
	page, limit := pageParams(c)

	status := c.DefaultQuery("status", string(models.PostInReview))
	query := database.DB.Model(&models.Post{}).Where("status = ?", status)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.RespondInternalError(c, "failed to count posts")
		return
	}

	var posts []models.Post
	err := query.Preload("User").
		Order("created_at ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		util.RespondInternalError(c, "failed to list posts")
		return
	}

	util.RespondData(c, gin.H{
		"posts":      posts,
		"pagination": util.NewPagination(page, limit, total),
	})
}

// ReviewPostRequest approves or rejects a post in review.
type ReviewPostRequest struct {
	Action string `json:"action" binding:"required,oneof=approve reject"`
}

// AdminReviewPost handles POST /admin/posts/:id/review. Approval makes the
// post live; either way the reviewer and time are stamped.
func (h *Handlers) AdminReviewPost(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req ReviewPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid review payload: "+err.Error())
		return
	}

	var post models.Post
	if err := database.DB.First(&post, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}
	if post.Status != models.PostInReview {
		util.RespondWithAPIError(c, apperrors.InvalidState("post is not awaiting review"))
		return
	}

	status := models.PostLive
	if req.Action == "reject" {
		status = models.PostRejected
	}

	now := time.Now().UTC()
	err := database.DB.Model(&post).Updates(map[string]interface{}{
		"status":         status,
		"reviewed_by_id": admin.ID,
		"reviewed_at":    now,
	}).Error
	if err != nil {
		util.RespondInternalError(c, "failed to review post")
		return
	}

	post.Status = status
	post.ReviewedByID = &admin.ID
	post.ReviewedAt = &now
	util.RespondData(c, post)
}

// AdminListUsers handles GET /admin/users with role/status filters.
func (h *Handlers) AdminListUsers(c *gin.Context) {
	page, limit := pageParams(c)

	query := database.DB.Model(&models.User{})
	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", role)
	}
	if active := c.Query("active"); active != "" {
		query = query.Where("is_active = ?", active == "true")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.RespondInternalError(c, "failed to count users")
		return
	}

	var users []models.User
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&users).Error
	if err != nil {
		util.RespondInternalError(c, "failed to list users")
		return
	}

	util.RespondData(c, gin.H{
		"users":      users,
		"pagination": util.NewPagination(page, limit, total),
	})
}

// AdminUpdateUserRequest changes a user's role or active status.
type AdminUpdateUserRequest struct {
	Role     *models.UserRole `json:"role" binding:"omitempty,oneof=USER ADMIN"`
	IsActive *bool            `json:"is_active"`
}

// AdminUpdateUser handles PUT /admin/users/:id. Admins cannot deactivate
// themselves.
func (h *Handlers) AdminUpdateUser(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req AdminUpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid user payload: "+err.Error())
		return
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "user")
		return
	}

	updates := map[string]interface{}{}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.IsActive != nil {
		if user.ID == admin.ID && !*req.IsActive {
			util.RespondBadRequest(c, "cannot deactivate your own account")
			return
		}
		updates["is_active"] = *req.IsActive
	}
	if len(updates) == 0 {
		util.RespondBadRequest(c, "nothing to update")
		return
	}

	if err := database.DB.Model(&user).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "failed to update user")
		return
	}
	util.RespondData(c, user)
}

// AdminSessionSummary handles GET /admin/sessions with a windowed summary.
func (h *Handlers) AdminSessionSummary(c *gin.Context) {
	hours := util.ParseInt(c.DefaultQuery("hours", "24"), 24)
	hours = util.ClampInt(hours, 1, 24*30)

	summary, err := h.tracking.Summarize(time.Now().UTC().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		util.RespondInternalError(c, "failed to aggregate sessions")
		return
	}
	util.RespondData(c, gin.H{"window_hours": hours, "summary": summary})
}

// AdminScreenAnalytics handles GET /admin/analytics/screens.
func (h *Handlers) AdminScreenAnalytics(c *gin.Context) {
	hours := util.ParseInt(c.DefaultQuery("hours", "24"), 24)
	hours = util.ClampInt(hours, 1, 24*30)

	stats, err := h.tracking.ScreenEngagement(time.Now().UTC().Add(-time.Duration(hours) * time.Hour))
	if err != nil {
		util.RespondInternalError(c, "failed to aggregate screen analytics")
		return
	}
	util.RespondData(c, gin.H{"window_hours": hours, "screens": stats})
}
