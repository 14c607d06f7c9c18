package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/database"
	apperrors "github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/feed"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/util"
	"gorm.io/gorm"
)

// CreateCommentRequest posts a comment, optionally as a reply.
type CreateCommentRequest struct {
	Body     string  `json:"body" binding:"required,min=1,max=2000"`
	ParentID *string `json:"parent_id"`
}

// CreateComment handles POST /posts/:id/comments. Replies nest one level:
// a reply to a reply is rejected.
func (h *Handlers) CreateComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid comment payload: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		util.RespondValidationError(c, "body", "comment cannot be empty")
		return
	}

	var post models.Post
	if err := database.DB.First(&post, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}
	if post.UserID != user.ID && !feed.VisibleTo(&post, user.ID, database.DB) {
		util.RespondNotFound(c, "post")
		return
	}

	if req.ParentID != nil {
		var parent models.Comment
		if err := database.DB.First(&parent, "id = ?", *req.ParentID).Error; err != nil {
			util.RespondNotFound(c, "parent comment")
			return
		}
		if parent.PostID != post.ID {
			util.RespondBadRequest(c, "parent comment belongs to another post")
			return
		}
		if parent.ParentID != nil {
			util.RespondWithAPIError(c, apperrors.InvalidState("replies cannot be nested further"))
			return
		}
	}

	comment := models.Comment{
		PostID:   post.ID,
		UserID:   user.ID,
		Body:     req.Body,
		ParentID: req.ParentID,
	}
	if err := database.DB.Create(&comment).Error; err != nil {
		util.RespondInternalError(c, "failed to create comment")
		return
	}
	comment.User = *user
	util.RespondCreated(c, "comment added", comment)
}

// ListComments handles GET /posts/:id/comments. Top-level comments come
// paginated with their replies preloaded.
func (h *Handlers) ListComments(c *gin.Context) {
	postID := c.Param("id")
	viewerID := util.OptionalUserID(c)
	page, limit := pageParams(c)

	var post models.Post
	if err := database.DB.First(&post, "id = ?", postID).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}
	if post.UserID != viewerID && !feed.VisibleTo(&post, viewerID, database.DB) {
		util.RespondNotFound(c, "post")
		return
	}

	var total int64
	if err := database.DB.Model(&models.Comment{}).
		Where("post_id = ? AND parent_id IS NULL", postID).Count(&total).Error; err != nil {
		util.RespondInternalError(c, "failed to count comments")
		return
	}

	var comments []models.Comment
	err := database.DB.Preload("User").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("Replies.User").
		Where("post_id = ? AND parent_id IS NULL", postID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		util.RespondInternalError(c, "failed to list comments")
		return
	}

	util.RespondData(c, gin.H{
		"comments":   comments,
		"pagination": util.NewPagination(page, limit, total),
	})
}

// UpdateCommentRequest edits a comment's text.
type UpdateCommentRequest struct {
	Body string `json:"body" binding:"required,min=1,max=2000"`
}

// UpdateComment handles PUT /comments/:id (author only).
func (h *Handlers) UpdateComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var comment models.Comment
	if err := database.DB.First(&comment, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "comment")
		return
	}
	if comment.UserID != user.ID {
		util.RespondForbidden(c, "only the author can edit this comment")
		return
	}

	var req UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid comment payload: "+err.Error())
		return
	}

	if err := database.DB.Model(&comment).Update("body", req.Body).Error; err != nil {
		util.RespondInternalError(c, "failed to update comment")
		return
	}
	util.RespondData(c, comment)
}

// DeleteComment handles DELETE /comments/:id. The author, the post owner,
// or an admin may delete. Replies go with their parent.
func (h *Handlers) DeleteComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var comment models.Comment
	if err := database.DB.First(&comment, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "comment")
		return
	}

	var post models.Post
	if err := database.DB.First(&post, "id = ?", comment.PostID).Error; err != nil {
		util.RespondNotFound(c, "post")
		return
	}
	if comment.UserID != user.ID && post.UserID != user.ID && !user.IsAdmin() {
		util.RespondForbidden(c, "not allowed to delete this comment")
		return
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if comment.ParentID == nil {
			// Replies are deleted one by one so their hooks run
			var replies []models.Comment
			if err := tx.Where("parent_id = ?", comment.ID).Find(&replies).Error; err != nil {
				return err
			}
			for i := range replies {
				if err := tx.Delete(&replies[i]).Error; err != nil {
					return err
				}
			}
		}
		if err := tx.Where("comment_id = ?", comment.ID).Delete(&models.CommentLike{}).Error; err != nil {
			return err
		}
		return tx.Delete(&comment).Error
	})
	if err != nil {
		util.RespondInternalError(c, "failed to delete comment")
		return
	}
	util.RespondSuccess(c, 200, "comment deleted", nil)
}

// LikeComment handles POST /comments/:id/like.
func (h *Handlers) LikeComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var comment models.Comment
	if err := database.DB.First(&comment, "id = ?", c.Param("id")).Error; err != nil {
		util.RespondNotFound(c, "comment")
		return
	}

	like := models.CommentLike{CommentID: comment.ID, UserID: user.ID}
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&like).Error; err != nil {
			return err
		}
		return tx.Model(&models.Comment{}).Where("id = ?", comment.ID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			util.RespondWithAPIError(c, apperrors.InvalidState("comment already liked"))
			return
		}
		util.RespondInternalError(c, "failed to like comment")
		return
	}
	util.RespondSuccess(c, 200, "comment liked", nil)
}

// UnlikeComment handles DELETE /comments/:id/like.
func (h *Handlers) UnlikeComment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	commentID := c.Param("id")

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("comment_id = ? AND user_id = ?", commentID, user.ID).
			Delete(&models.CommentLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NotFound("like")
		}
		return tx.Model(&models.Comment{}).Where("id = ? AND like_count > 0", commentID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondSuccess(c, 200, "comment unliked", nil)
}
