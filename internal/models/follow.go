package models

import (
	"time"

	"gorm.io/gorm"
)

// FollowStatus is the state of a follow edge. Edges to private accounts
// start pending until the target accepts.
type FollowStatus string

const (
	FollowAccepted FollowStatus = "accepted"
	FollowPending  FollowStatus = "pending"
)

// Follow is a directed edge: follower -> following. Unique per pair;
// unfollow deletes the row.
type Follow struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	FollowerID  string `gorm:"not null;uniqueIndex:idx_follows_pair;index" json:"follower_id"`
	FollowingID string `gorm:"not null;uniqueIndex:idx_follows_pair;index" json:"following_id"`

	Status FollowStatus `gorm:"type:varchar(10);default:accepted" json:"status"`

	CreatedAt time.Time `json:"created_at"`
}

func (f *Follow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = generateUUID()
	}
	return nil
}
