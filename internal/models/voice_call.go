package models

import (
	"time"

	"gorm.io/gorm"
)

// CallStatus is the signaling state machine:
// initiated -> ringing -> answered -> ended, or -> rejected | missed | failed.
type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallAnswered  CallStatus = "answered"
	CallEnded     CallStatus = "ended"
	CallMissed    CallStatus = "missed"
	CallRejected  CallStatus = "rejected"
	CallFailed    CallStatus = "failed"
)

// validCallTransitions encodes the allowed status moves.
var validCallTransitions = map[CallStatus][]CallStatus{
	CallInitiated: {CallRinging, CallAnswered, CallRejected, CallMissed, CallFailed},
	CallRinging:   {CallAnswered, CallRejected, CallMissed, CallFailed},
	CallAnswered:  {CallEnded, CallFailed},
}

// CanTransition reports whether status may move from to next.
func (s CallStatus) CanTransition(next CallStatus) bool {
	for _, v := range validCallTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// VoiceCall is the signaling record for one call. The media path lives in
// the external RTC provider; we only track lifecycle here.
type VoiceCall struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	CallID  string `gorm:"uniqueIndex;not null" json:"call_id"`
	Channel string `gorm:"not null" json:"channel"`

	CallerID   string `gorm:"not null;index" json:"caller_id"`
	Caller     User   `gorm:"foreignKey:CallerID" json:"caller,omitempty"`
	ReceiverID string `gorm:"not null;index" json:"receiver_id"`
	Receiver   User   `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`

	Status CallStatus `gorm:"type:varchar(12);default:initiated;index" json:"status"`

	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int64      `gorm:"default:0" json:"duration_seconds"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (v *VoiceCall) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = generateUUID()
	}
	if v.CallID == "" {
		v.CallID = generateUUID()
	}
	if v.Channel == "" {
		v.Channel = "call_" + v.CallID
	}
	return nil
}
