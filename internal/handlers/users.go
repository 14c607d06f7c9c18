package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/database"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/util"
)

// PublicProfile is the subset of a user shown to other users.
type PublicProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Bio       string `json:"bio,omitempty"`

	FollowerCount  int64 `json:"follower_count"`
	FollowingCount int64 `json:"following_count"`
	PostCount      int64 `json:"post_count"`
}

// GetUser handles GET /users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	var user models.User
	if err := database.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "user")
		return
	}
	if !user.IsActive {
		util.RespondNotFound(c, "user")
		return
	}
	util.RespondData(c, publicProfile(&user))
}

// UpdateProfileRequest edits the caller's own profile.
type UpdateProfileRequest struct {
	Name      *string `json:"name" binding:"omitempty,min=1,max=80"`
	Bio       *string `json:"bio" binding:"omitempty,max=500"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,max=2048"`
}

// UpdateProfile handles PUT /users/me
func (h *Handlers) UpdateProfile(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid profile payload: "+err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Bio != nil {
		updates["bio"] = *req.Bio
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if len(updates) == 0 {
		util.RespondBadRequest(c, "nothing to update")
		return
	}

	if err := database.DB.Model(user).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "failed to update profile")
		return
	}
	util.RespondData(c, user)
}

// LoginHistory handles GET /users/me/logins
func (h *Handlers) LoginHistory(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	page, limit := pageParams(c)

	var total int64
	if err := database.DB.Model(&models.LoginHistory{}).
		Where("user_id = ?", user.ID).Count(&total).Error; err != nil {
		util.RespondInternalError(c, "failed to count login history")
		return
	}

	var entries []models.LoginHistory
	err := database.DB.Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		util.RespondInternalError(c, "failed to load login history")
		return
	}

	util.RespondData(c, gin.H{
		"logins":     entries,
		"pagination": util.NewPagination(page, limit, total),
	})
}

func publicProfile(user *models.User) PublicProfile {
	p := PublicProfile{
		ID:        user.ID,
		Name:      user.Name,
		AvatarURL: user.AvatarURL,
		Bio:       user.Bio,
	}
	database.DB.Model(&models.Follow{}).
		Where("following_id = ? AND status = ?", user.ID, models.FollowAccepted).
		Count(&p.FollowerCount)
	database.DB.Model(&models.Follow{}).
		Where("follower_id = ? AND status = ?", user.ID, models.FollowAccepted).
		Count(&p.FollowingCount)
	database.DB.Model(&models.Post{}).
		Where("user_id = ? AND status = ? AND is_active = ?", user.ID, models.PostLive, true).
		Count(&p.PostCount)
	return p
}
