package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/database"
	apperrors "github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/util"
)

// Follow handles POST /users/:id/follow. A duplicate follow is a conflict;
// the unique pair index makes the check race-free.
func (h *Handlers) Follow(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")
	if targetID == user.ID {
		util.RespondBadRequest(c, "cannot follow yourself")
		return
	}

	var target models.User
	if err := database.DB.First(&target, "id = ?", targetID).Error; err != nil {
		util.RespondNotFound(c, "user")
		return
	}
	if !target.IsActive {
		util.RespondNotFound(c, "user")
		return
	}

	follow := models.Follow{
		FollowerID:  user.ID,
		FollowingID: targetID,
		Status:      models.FollowAccepted,
	}
	if err := database.DB.Create(&follow).Error; err != nil {
		if isUniqueViolation(err) {
			util.RespondWithAPIError(c, apperrors.InvalidState("already following this user"))
			return
		}
		util.RespondInternalError(c, "failed to follow user")
		return
	}
	util.RespondCreated(c, "now following", follow)
}

// Unfollow handles DELETE /users/:id/follow. Removing a non-existent edge
// is a 404; after success no edge remains.
func (h *Handlers) Unfollow(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	res := database.DB.Where("follower_id = ? AND following_id = ?", user.ID, c.Param("id")).
		Delete(&models.Follow{})
	if res.Error != nil {
		util.RespondInternalError(c, "failed to unfollow user")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondNotFound(c, "follow")
		return
	}
	util.RespondSuccess(c, 200, "unfollowed", nil)
}

// FollowStatus handles GET /users/:id/follow-status
func (h *Handlers) FollowStatus(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	targetID := c.Param("id")

	var follow models.Follow
	err := database.DB.First(&follow, "follower_id = ? AND following_id = ?", user.ID, targetID).Error
	if err != nil {
		util.RespondData(c, gin.H{"following": false})
		return
	}
	util.RespondData(c, gin.H{"following": true, "status": follow.Status})
}

// Followers handles GET /users/:id/followers
func (h *Handlers) Followers(c *gin.Context) {
	h.listFollowEdges(c, "following_id", "follower_id", "followers")
}

// Following handles GET /users/:id/following
func (h *Handlers) Following(c *gin.Context) {
	h.listFollowEdges(c, "follower_id", "following_id", "following")
}

// listFollowEdges pages one direction of the follow graph, resolving the far
// side of each edge to a public profile.
func (h *Handlers) listFollowEdges(c *gin.Context, whereColumn, selectColumn, key string) {
	targetID := c.Param("id")
	page, limit := pageParams(c)

	base := database.DB.Model(&models.Follow{}).
		Where(whereColumn+" = ? AND status = ?", targetID, models.FollowAccepted)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		util.RespondInternalError(c, "failed to count follows")
		return
	}

	var ids []string
	err := database.DB.Model(&models.Follow{}).
		Where(whereColumn+" = ? AND status = ?", targetID, models.FollowAccepted).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Pluck(selectColumn, &ids).Error
	if err != nil {
		util.RespondInternalError(c, "failed to list follows")
		return
	}

	profiles := make([]PublicProfile, 0, len(ids))
	if len(ids) > 0 {
		var users []models.User
		if err := database.DB.Where("id IN ? AND is_active = ?", ids, true).Find(&users).Error; err != nil {
			util.RespondInternalError(c, "failed to load profiles")
			return
		}
		for i := range users {
			profiles = append(profiles, publicProfile(&users[i]))
		}
	}

	util.RespondData(c, gin.H{
		key:          profiles,
		"pagination": util.NewPagination(page, limit, total),
	})
}
