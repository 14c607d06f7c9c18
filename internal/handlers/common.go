package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/database"
	apperrors "github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/util"
)

// respondServiceError maps a service error onto the response envelope.
// APIErrors carry their own status; anything else is a 500.
func respondServiceError(c *gin.Context, err error) {
	if apiErr, ok := err.(*apperrors.APIError); ok {
		util.RespondWithAPIError(c, apiErr)
		return
	}
	util.RespondInternalError(c, "request failed")
}

// pageParams parses ?page= and ?limit= with the standard defaults.
func pageParams(c *gin.Context) (page, limit int) {
	page = util.ParseInt(c.Query("page"), 1)
	if page < 1 {
		page = 1
	}
	limit = util.ParseInt(c.Query("limit"), 20)
	limit = util.ClampInt(limit, 1, 100)
	return page, limit
}

// isUniqueViolation detects duplicate-key errors across the drivers we run
// against (postgres in production, sqlite in tests).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique failed")
}

// isFollowing reports whether an accepted follow edge exists.
func isFollowing(followerID, followingID string) bool {
	var count int64
	database.DB.Model(&models.Follow{}).
		Where("follower_id = ? AND following_id = ? AND status = ?",
			followerID, followingID, models.FollowAccepted).
		Count(&count)
	return count > 0
}
