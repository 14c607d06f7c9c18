package handlers

import (
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/database"
	apperrors "github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/feed"
	"github.com/kinship-app/backend/internal/logger"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxMediaBytes = 25 << 20

// CreatePostRequest is the JSON payload for POST /posts. Media is attached
// separately through the upload endpoint and referenced here.
type CreatePostRequest struct {
	Body       string            `json:"body" binding:"max=5000"`
	Visibility models.Visibility `json:"visibility"`
	Media      models.MediaList  `json:"media"`
	Poll       *models.Poll      `json:"poll"`
}

// CreatePost handles POST /posts. New posts enter moderation as inReview.
func (h *Handlers) CreatePost(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid post payload: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Body) == "" && len(req.Media) == 0 && req.Poll == nil {
		util.RespondValidationError(c, "body", "post needs text, media, or a poll")
		return
	}
	if req.Poll != nil {
		if strings.TrimSpace(req.Poll.Question) == "" || len(req.Poll.Options) < 2 {
			util.RespondValidationError(c, "poll", "poll needs a question and at least two options")
			return
		}
		for i := range req.Poll.Options {
			req.Poll.Options[i].Votes = nil
		}
	}

	visibility := req.Visibility
	switch visibility {
	case "":
		visibility = models.VisibilityPublic
	case models.VisibilityPublic, models.VisibilityPrivate, models.VisibilityFollowers:
	default:
		util.RespondValidationError(c, "visibility", "must be public, private, or followers")
		return
	}

	post := models.Post{
		UserID:     user.ID,
		Body:       req.Body,
		Media:      req.Media,
		Poll:       req.Poll,
		Visibility: visibility,
		Status:     models.PostInReview,
		IsActive:   true,
	}
	if err := database.DB.Create(&post).Error; err != nil {
		util.RespondInternalError(c, "failed to create post")
		return
	}
	post.User = *user
	util.RespondCreated(c, "post submitted for review", post)
}

// UploadMedia handles POST /posts/media. The returned key/URL pair is meant
// to be embedded in a subsequent CreatePost call.
func (h *Handlers) UploadMedia(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	if h.media == nil {
		util.RespondWithAPIError(c, apperrors.InternalError("media storage is not configured"))
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		util.RespondBadRequest(c, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxMediaBytes+1))
	if err != nil {
		util.RespondInternalError(c, "failed to read upload")
		return
	}
	if len(data) > maxMediaBytes {
		util.RespondValidationError(c, "file", "file exceeds the 25MB limit")
		return
	}

	result, err := h.media.UploadMedia(c.Request.Context(), data, user.ID, header.Filename)
	if err != nil {
		logger.ErrorWithFields("media upload failed", err, zap.String("user_id", user.ID))
		util.RespondInternalError(c, "upload failed")
		return
	}
	util.RespondCreated(c, "media uploaded", result)
}

// GetPost handles GET /posts/:id. Anonymous and unrelated viewers only see
// live posts; owners always see their own.
func (h *Handlers) GetPost(c *gin.Context) {
	viewerID := util.OptionalUserID(c)

	var post models.Post
	err := database.DB.Preload("User").First(&post, "id = ?", c.Param("id")).Error
	if err != nil {
		util.RespondNotFound(c, "post")
		return
	}

	if post.UserID != viewerID && !feed.VisibleTo(&post, viewerID, database.DB) {
		util.RespondNotFound(c, "post")
		return
	}
	util.RespondData(c, post)
}

// ListUserPosts handles GET /users/:id/posts. Owners see every status;
// everyone else sees only live, active posts the visibility rules allow.
func (h *Handlers) ListUserPosts(c *gin.Context) {
	targetID := c.Param("id")
	viewerID := util.OptionalUserID(c)
	page, limit := pageParams(c)

	query := database.DB.Model(&models.Post{}).Where("user_id = ?", targetID)
	if viewerID != targetID {
		query = query.Where("status = ? AND is_active = ?", models.PostLive, true)
		if viewerID == "" || !isFollowing(viewerID, targetID) {
			query = query.Where("visibility = ?", models.VisibilityPublic)
		} else {
			query = query.Where("visibility IN ?",
				[]string{string(models.VisibilityPublic), string(models.VisibilityFollowers)})
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.RespondInternalError(c, "failed to count posts")
		return
	}

	var posts []models.Post
	err := query.Preload("User").
		Order("created_at DESC").
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

// UpdatePostRequest allows the owner to edit text and visibility.
type UpdatePostRequest struct {
	Body       *string            `json:"body" binding:"omitempty,max=5000"`
	Visibility *models.Visibility `json:"visibility"`
}

// UpdatePost handles PUT /posts/:id (owner only).
func (h *Handlers) UpdatePost(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var post models.Post
	if err := database.DB.First(&post, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}
	if post.UserID != user.ID {
		util.RespondForbidden(c, "only the author can edit this post")
		return
	}

	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid update payload: "+err.Error())
		return
	}

	updates := map[string]interface{}{}
	if req.Body != nil {
		updates["body"] = *req.Body
	}
	if req.Visibility != nil {
		switch *req.Visibility {
		case models.VisibilityPublic, models.VisibilityPrivate, models.VisibilityFollowers:
			updates["visibility"] = *req.Visibility
		default:
			util.RespondValidationError(c, "visibility", "must be public, private, or followers")
			return
		}
	}
	if len(updates) == 0 {
		util.RespondBadRequest(c, "nothing to update")
		return
	}

	if err := database.DB.Model(&post).Updates(updates).Error; err != nil {
		util.RespondInternalError(c, "failed to update post")
		return
	}
	util.RespondData(c, post)
}

// DeletePost handles DELETE /posts/:id. The owner or an admin may delete;
// rows are hard-deleted and attached media is cleaned up best effort.
func (h *Handlers) DeletePost(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var post models.Post
	if err := database.DB.First(&post, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}
	if post.UserID != user.ID && !user.IsAdmin() {
		util.RespondForbidden(c, "only the author or an admin can delete this post")
		return
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.PostLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if err != nil {
		util.RespondInternalError(c, "failed to delete post")
		return
	}

	if h.media != nil {
		for _, item := range post.Media {
			if item.StorageKey == "" {
				continue
			}
			if err := h.media.DeleteFile(c.Request.Context(), item.StorageKey); err != nil {
				logger.WarnWithFields("failed to delete post media", err,
					zap.String("post_id", post.ID),
					zap.String("key", item.StorageKey))
			}
		}
	}
	util.RespondSuccess(c, 200, "post deleted", nil)
}

// LikePost handles POST /posts/:id/like. Membership is a unique row, so a
// second like from the same user conflicts instead of double counting.
func (h *Handlers) LikePost(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var post models.Post
	if err := database.DB.First(&post, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}
	if post.UserID != user.ID && !post.PubliclyVisible() &&
		!feed.VisibleTo(&post, user.ID, database.DB) {
		util.RespondNotFound(c, "post")
		return
	}

	like := models.PostLike{PostID: post.ID, UserID: user.ID}
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&like).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", post.ID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			util.RespondWithAPIError(c, apperrors.InvalidState("post already liked"))
			return
		}
		util.RespondInternalError(c, "failed to like post")
		return
	}
	util.RespondSuccess(c, 200, "post liked", nil)
}

// UnlikePost handles DELETE /posts/:id/like.
func (h *Handlers) UnlikePost(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	postID := c.Param("id")

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, user.ID).
			Delete(&models.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NotFound("like")
		}
		return tx.Model(&models.Post{}).Where("id = ? AND like_count > 0", postID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondSuccess(c, 200, "post unliked", nil)
}

// VoteRequest selects a poll option by index.
type VoteRequest struct {
	OptionIndex *int `json:"option_index" binding:"required"`
}

// VotePoll handles POST /posts/:id/vote. One ballot per voter unless the
// poll allows multiple; the read-modify-write of the poll document runs in
// one transaction.
func (h *Handlers) VotePoll(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid vote payload: "+err.Error())
		return
	}

	var updated *models.Poll
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.First(&post, "id = ?", c.Param("id")).Error; err != nil {
			return apperrors.NotFound("post")
		}
		if post.UserID != user.ID && !feed.VisibleTo(&post, user.ID, tx) {
			return apperrors.NotFound("post")
		}
		if post.Poll == nil {
			return apperrors.BadRequest("post has no poll")
		}

		poll := post.Poll
		if poll.Expired(time.Now().UTC()) {
			return apperrors.InvalidState("poll has closed")
		}
		idx := *req.OptionIndex
		if idx < 0 || idx >= len(poll.Options) {
			return apperrors.ValidationError("option_index", "no such option")
		}
		if !poll.AllowMultiple && poll.HasVoted(user.ID) {
			return apperrors.InvalidState("you have already voted on this poll")
		}
		for _, v := range poll.Options[idx].Votes {
			if v.VoterID == user.ID {
				return apperrors.InvalidState("you have already voted for this option")
			}
		}

		poll.Options[idx].Votes = append(poll.Options[idx].Votes, models.PollVote{
			VoterID: user.ID,
			VotedAt: time.Now().UTC(),
		})
		if err := tx.Model(&post).Update("poll", poll).Error; err != nil {
			return err
		}
		updated = poll
		return nil
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, gin.H{"poll": updated})
}
