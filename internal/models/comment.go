package models

import (
	"time"

	"gorm.io/gorm"
)

// Comment is text attached to a post, optionally nested one level under a
// parent comment. Counter maintenance (post.comment_count for top-level,
// parent.reply_count for replies) happens in GORM hooks so every caller
// gets the invariant for free.
type Comment struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	PostID string `gorm:"not null;index" json:"post_id"`
	Post   Post   `gorm:"foreignKey:PostID" json:"-"`
	UserID string `gorm:"not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Body string `gorm:"type:text;not null" json:"body"`

	// One level of reply nesting
	ParentID *string    `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Replies  []*Comment `gorm:"foreignKey:ParentID" json:"replies,omitempty"`

	ReplyCount int `gorm:"default:0" json:"reply_count"`
	LikeCount  int `gorm:"default:0" json:"like_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommentLike is a membership row, unique per (comment, user).
type CommentLike struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	CommentID string `gorm:"not null;uniqueIndex:idx_comment_likes_pair" json:"comment_id"`
	UserID    string `gorm:"not null;uniqueIndex:idx_comment_likes_pair" json:"user_id"`

	CreatedAt time.Time `json:"created_at"`
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	return nil
}

// AfterCreate bumps the denormalized counter on the parent entity.
func (c *Comment) AfterCreate(tx *gorm.DB) error {
	if c.ParentID != nil {
		return tx.Model(&Comment{}).Where("id = ?", *c.ParentID).
			UpdateColumn("reply_count", gorm.Expr("reply_count + 1")).Error
	}
	return tx.Model(&Post{}).Where("id = ?", c.PostID).
		UpdateColumn("comment_count", gorm.Expr("comment_count + 1")).Error
}

// AfterDelete reverses the counter bump.
func (c *Comment) AfterDelete(tx *gorm.DB) error {
	if c.ParentID != nil {
		return tx.Model(&Comment{}).Where("id = ? AND reply_count > 0", *c.ParentID).
			UpdateColumn("reply_count", gorm.Expr("reply_count - 1")).Error
	}
	return tx.Model(&Post{}).Where("id = ? AND comment_count > 0", c.PostID).
		UpdateColumn("comment_count", gorm.Expr("comment_count - 1")).Error
}

func (l *CommentLike) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = generateUUID()
	}
	return nil
}
