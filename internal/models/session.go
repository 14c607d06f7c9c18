package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionStatus is the session state machine:
// active -> idle | expired | logged_out. Expired and logged_out are terminal.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionIdle      SessionStatus = "idle"
	SessionExpired   SessionStatus = "expired"
	SessionLoggedOut SessionStatus = "logged_out"
)

// UserSession is one app session for behavioral analytics.
type UserSession struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`

	Status     SessionStatus `gorm:"type:varchar(12);default:active;index" json:"status"`
	Device     string        `json:"device,omitempty"`
	AppVersion string        `json:"app_version,omitempty"`

	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int64      `gorm:"default:0" json:"duration_seconds"`

	// Bumped on every screen/action event; drives idle expiry
	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`

	Activities []ScreenActivity `gorm:"foreignKey:SessionID" json:"activities,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScreenAction is one discrete interaction recorded on a screen.
type ScreenAction struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// ScreenActionList is stored as jsonb on the activity row.
type ScreenActionList []ScreenAction

// ScreenActivity is one continuous visit to a named screen. A session has
// at most one open activity (exited_at null) at a time.
type ScreenActivity struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	SessionID string `gorm:"not null;index" json:"session_id"`
	UserID    string `gorm:"not null;index" json:"user_id"`

	ScreenName string `gorm:"not null" json:"screen_name"`
	NextScreen string `json:"next_screen,omitempty"`

	EnteredAt       time.Time  `gorm:"not null" json:"entered_at"`
	ExitedAt        *time.Time `json:"exited_at,omitempty"`
	DurationSeconds int64      `gorm:"default:0" json:"duration_seconds"`

	ScrollDepth float64          `gorm:"default:0" json:"scroll_depth"` // 0..100
	Actions     ScreenActionList `gorm:"type:jsonb;serializer:json" json:"actions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *UserSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = generateUUID()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	if s.LastActivityAt.IsZero() {
		s.LastActivityAt = s.StartedAt
	}
	return nil
}

func (a *ScreenActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = generateUUID()
	}
	if a.EnteredAt.IsZero() {
		a.EnteredAt = time.Now().UTC()
	}
	return nil
}

// Close stamps the exit time and computes a non-negative duration.
func (a *ScreenActivity) Close(at time.Time) {
	a.ExitedAt = &at
	d := int64(at.Sub(a.EnteredAt).Seconds())
	if d < 0 {
		d = 0
	}
	a.DurationSeconds = d
}

// Terminal reports whether the session can no longer transition.
func (s SessionStatus) Terminal() bool {
	return s == SessionExpired || s == SessionLoggedOut
}
