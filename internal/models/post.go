package models

import (
	"time"

	"gorm.io/gorm"
)

// ModerationStatus gates public visibility of a post.
type ModerationStatus string

const (
	PostInReview ModerationStatus = "inReview"
	PostLive     ModerationStatus = "live"
	PostRejected ModerationStatus = "rejected"
)

// Visibility controls who may see a post once it is live.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityFollowers Visibility = "followers"
)

// MediaItem is one attachment on a post. StorageKey is the object-store id
// used for cleanup when the post is deleted.
type MediaItem struct {
	Type       string `json:"type"` // image, video
	URL        string `json:"url"`
	StorageKey string `json:"storage_key,omitempty"`
}

// MediaList is stored as a jsonb document on the post row.
type MediaList []MediaItem

// PollVote is one ballot on a poll option.
type PollVote struct {
	VoterID string    `json:"voter_id"`
	VotedAt time.Time `json:"voted_at"`
}

// PollOption holds the option text and its ballots.
type PollOption struct {
	Text  string     `json:"text"`
	Votes []PollVote `json:"votes,omitempty"`
}

// Poll is an optional embedded poll on a post.
type Poll struct {
	Question      string       `json:"question"`
	Options       []PollOption `json:"options"`
	ExpiresAt     *time.Time   `json:"expires_at,omitempty"`
	AllowMultiple bool         `json:"allow_multiple"`
}

// Expired reports whether voting has closed.
func (p *Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// HasVoted reports whether the given user voted on any option.
func (p *Poll) HasVoted(userID string) bool {
	for _, opt := range p.Options {
		for _, v := range opt.Votes {
			if v.VoterID == userID {
				return true
			}
		}
	}
	return false
}

// Post is authored content. Posts are hard-deleted by owner or admin, so
// there is no soft-delete column; media cleanup cascades at delete time.
type Post struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"user,omitempty"`

	Body  string    `gorm:"type:text" json:"body"`
	Media MediaList `gorm:"type:jsonb;serializer:json" json:"media,omitempty"`
	Poll  *Poll     `gorm:"type:jsonb;serializer:json" json:"poll,omitempty"`

	LikeCount    int `gorm:"default:0" json:"like_count"`
	CommentCount int `gorm:"default:0" json:"comment_count"`
	ShareCount   int `gorm:"default:0" json:"share_count"`

	Visibility Visibility       `gorm:"type:varchar(12);default:public" json:"visibility"`
	Status     ModerationStatus `gorm:"type:varchar(12);default:inReview;index" json:"status"`
	IsActive   bool             `gorm:"default:true" json:"is_active"`

	// Stamped when an admin transitions the moderation status
	ReviewedByID *string    `gorm:"type:uuid" json:"reviewed_by_id,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostLike is a membership row, unique per (post, user). Likes live in a
// join table rather than an embedded list so concurrent likes are race-free.
type PostLike struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	PostID string `gorm:"not null;uniqueIndex:idx_post_likes_pair" json:"post_id"`
	UserID string `gorm:"not null;uniqueIndex:idx_post_likes_pair" json:"user_id"`

	CreatedAt time.Time `json:"created_at"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

func (l *PostLike) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = generateUUID()
	}
	return nil
}

// PubliclyVisible reports whether the post may appear in public feeds and
// public single-post fetches.
func (p *Post) PubliclyVisible() bool {
	return p.Status == PostLive && p.IsActive && p.Visibility != VisibilityPrivate
}
