package models

import (
	"time"

	"gorm.io/gorm"
)

// NotificationStatus is the delivery state machine:
// pending -> sent -> delivered -> read, or pending/sent -> failed.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationRead      NotificationStatus = "read"
	NotificationFailed    NotificationStatus = "failed"
)

// NotificationPriority maps onto the push transport's priority hint.
type NotificationPriority string

const (
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// JSONMap is a free-form jsonb payload.
type JSONMap map[string]interface{}

// Notification is one directed message. Sender is nil for system messages.
type Notification struct {
	ID          string  `gorm:"primaryKey;type:uuid" json:"id"`
	SenderID    *string `gorm:"type:uuid;index" json:"sender_id,omitempty"`
	RecipientID string  `gorm:"not null;index" json:"recipient_id"`
	Recipient   User    `gorm:"foreignKey:RecipientID" json:"-"`

	Title    string               `gorm:"not null" json:"title"`
	Body     string               `gorm:"type:text" json:"body"`
	Type     string               `gorm:"type:varchar(30);default:general" json:"type"`
	Priority NotificationPriority `gorm:"type:varchar(10);default:normal" json:"priority"`
	Data     JSONMap              `gorm:"type:jsonb;serializer:json" json:"data,omitempty"`

	Status       NotificationStatus `gorm:"type:varchar(12);default:pending;index" json:"status"`
	ErrorMessage string             `gorm:"type:text" json:"error_message,omitempty"`

	// Scheduling
	IsScheduled  bool       `gorm:"default:false;index" json:"is_scheduled"`
	ScheduledFor *time.Time `gorm:"index" json:"scheduled_for,omitempty"`

	RetryCount int        `gorm:"default:0" json:"retry_count"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at,omitempty"`

	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceToken is a push-delivery address. A token value belongs to exactly
// one user at a time; re-registering an existing value re-parents it.
type DeviceToken struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`

	Token    string `gorm:"uniqueIndex;not null" json:"-"`
	Platform string `gorm:"type:varchar(20)" json:"platform"` // ios, android, web

	IsActive     bool `gorm:"default:true;index" json:"is_active"`
	FailureCount int  `gorm:"default:0" json:"failure_count"`

	LastUsedAt *time.Time `json:"last_used_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = generateUUID()
	}
	return nil
}

func (t *DeviceToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = generateUUID()
	}
	return nil
}
