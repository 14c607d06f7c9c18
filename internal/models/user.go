package models

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole distinguishes regular accounts from moderators.
type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

// LocationSnapshot captures where a request came from at a point in time.
// Stored as jsonb so the geo provider can grow fields without migrations.
type LocationSnapshot struct {
	IP      string  `json:"ip,omitempty"`
	Device  string  `json:"device,omitempty"`
	Country string  `json:"country,omitempty"`
	State   string  `json:"state,omitempty"`
	City    string  `json:"city,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty"`
}

// User represents a Kinship account.
type User struct {
	ID    string `gorm:"primaryKey;type:uuid" json:"id"`
	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Phone string `gorm:"uniqueIndex" json:"phone,omitempty"`

	PasswordHash *string  `gorm:"type:text" json:"-"`
	Role         UserRole `gorm:"type:varchar(10);default:USER" json:"role"`
	IsActive     bool     `gorm:"default:true" json:"is_active"`

	AvatarURL string `json:"avatar_url,omitempty"`
	Bio       string `gorm:"type:text" json:"bio,omitempty"`

	// Request metadata snapshots, taken at registration and refreshed on login
	RegistrationMeta *LocationSnapshot `gorm:"type:jsonb;serializer:json" json:"-"`
	LastLoginMeta    *LocationSnapshot `gorm:"type:jsonb;serializer:json" json:"-"`
	LastLoginAt      *time.Time        `json:"last_login_at,omitempty"`

	// Synthetic numeric identity required by the RTC provider
	RTCUserID int64 `gorm:"uniqueIndex" json:"rtc_user_id"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// LoginHistory records one successful authentication.
type LoginHistory struct {
	ID       string            `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string            `gorm:"not null;index" json:"user_id"`
	User     User              `gorm:"foreignKey:UserID" json:"-"`
	IP       string            `json:"ip"`
	Device   string            `json:"device"`
	Location *LocationSnapshot `gorm:"type:jsonb;serializer:json" json:"location,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = generateUUID()
	}
	if u.RTCUserID == 0 {
		// RTC SDKs expect a numeric uid that fits in int32 space
		u.RTCUserID = time.Now().UnixMilli()%1_000_000_000 + rand.Int63n(1000)
	}
	return nil
}

func (l *LoginHistory) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = generateUUID()
	}
	return nil
}

// IsAdmin reports whether the account carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func generateUUID() string {
	return uuid.New().String()
}
