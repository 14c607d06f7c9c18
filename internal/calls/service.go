package calls

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/logger"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/notify"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service manages voice-call signaling records and ring notifications.
// The media path is carried by the external RTC provider.
type Service struct {
	db       *gorm.DB
	issuer   TokenIssuer
	notifier *notify.Service // nil disables ring pushes
}

func NewService(db *gorm.DB, issuer TokenIssuer, notifier *notify.Service) *Service {
	return &Service{db: db, issuer: issuer, notifier: notifier}
}

// InitiateResult carries the new call and the caller's channel credential.
type InitiateResult struct {
	Call  *models.VoiceCall `json:"call"`
	Token *ChannelToken     `json:"token"`
}

// Initiate creates a call to the receiver and pushes a ring notification.
// A caller with a call already in flight must end it first.
func (s *Service) Initiate(ctx context.Context, caller *models.User, receiverID string) (*InitiateResult, error) {
	if caller.ID == receiverID {
		return nil, apperrors.BadRequest("cannot call yourself")
	}

	var receiver models.User
	if err := s.db.First(&receiver, "id = ?", receiverID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("receiver")
		}
		return nil, err
	}
	if !receiver.IsActive {
		return nil, apperrors.NotFound("receiver")
	}

	var inFlight int64
	err := s.db.Model(&models.VoiceCall{}).
		Where("(caller_id = ? OR receiver_id = ?) AND status IN ?", caller.ID, caller.ID,
			[]models.CallStatus{models.CallInitiated, models.CallRinging, models.CallAnswered}).
		Count(&inFlight).Error
	if err != nil {
		return nil, err
	}
	if inFlight > 0 {
		return nil, apperrors.InvalidState("another call is already in progress")
	}

	call := &models.VoiceCall{
		CallerID:   caller.ID,
		ReceiverID: receiverID,
		Status:     models.CallInitiated,
	}
	if err := s.db.Create(call).Error; err != nil {
		return nil, err
	}

	token, err := s.issuer.IssueToken(call.Channel, caller.RTCUserID)
	if err != nil {
		s.db.Model(call).Update("status", models.CallFailed)
		return nil, err
	}

	s.ring(ctx, call, caller)

	return &InitiateResult{Call: call, Token: token}, nil
}

// Answer moves the call to answered and mints the receiver's credential.
func (s *Service) Answer(receiver *models.User, callID string) (*InitiateResult, error) {
	call, err := s.find(callID)
	if err != nil {
		return nil, err
	}
	if call.ReceiverID != receiver.ID {
		return nil, apperrors.Forbidden("only the receiver can answer this call")
	}
	if !call.Status.CanTransition(models.CallAnswered) {
		return nil, apperrors.InvalidState(fmt.Sprintf("cannot answer a %s call", call.Status))
	}

	now := time.Now().UTC()
	err = s.db.Model(call).Updates(map[string]interface{}{
		"status":      models.CallAnswered,
		"answered_at": now,
	}).Error
	if err != nil {
		return nil, err
	}
	call.Status = models.CallAnswered
	call.AnsweredAt = &now

	token, err := s.issuer.IssueToken(call.Channel, receiver.RTCUserID)
	if err != nil {
		return nil, err
	}
	return &InitiateResult{Call: call, Token: token}, nil
}

// Ring acknowledges that the receiver's device is ringing.
func (s *Service) Ring(receiverID, callID string) (*models.VoiceCall, error) {
	return s.transition(callID, models.CallRinging, func(c *models.VoiceCall) error {
		if c.ReceiverID != receiverID {
			return apperrors.Forbidden("only the receiver can acknowledge ringing")
		}
		return nil
	})
}

// Reject declines an incoming call.
func (s *Service) Reject(receiverID, callID string) (*models.VoiceCall, error) {
	return s.transition(callID, models.CallRejected, func(c *models.VoiceCall) error {
		if c.ReceiverID != receiverID {
			return apperrors.Forbidden("only the receiver can reject this call")
		}
		return nil
	})
}

// Miss marks an unanswered call as missed. Either party's client may report
// the ring timeout.
func (s *Service) Miss(participantID, callID string) (*models.VoiceCall, error) {
	return s.transition(callID, models.CallMissed, func(c *models.VoiceCall) error {
		return requireParticipant(c, participantID)
	})
}

// End hangs up an answered call and records its duration.
func (s *Service) End(participantID, callID string) (*models.VoiceCall, error) {
	call, err := s.find(callID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(call, participantID); err != nil {
		return nil, err
	}
	if !call.Status.CanTransition(models.CallEnded) {
		return nil, apperrors.InvalidState(fmt.Sprintf("cannot end a %s call", call.Status))
	}

	now := time.Now().UTC()
	var duration int64
	if call.AnsweredAt != nil {
		duration = int64(now.Sub(*call.AnsweredAt).Seconds())
		if duration < 0 {
			duration = 0
		}
	}

	err = s.db.Model(call).Updates(map[string]interface{}{
		"status":           models.CallEnded,
		"ended_at":         now,
		"duration_seconds": duration,
	}).Error
	if err != nil {
		return nil, err
	}
	call.Status = models.CallEnded
	call.EndedAt = &now
	call.DurationSeconds = duration
	return call, nil
}

// Fail marks a call as failed after a signaling or media breakdown.
func (s *Service) Fail(participantID, callID string) (*models.VoiceCall, error) {
	return s.transition(callID, models.CallFailed, func(c *models.VoiceCall) error {
		return requireParticipant(c, participantID)
	})
}

// Get returns a call visible to one of its participants.
func (s *Service) Get(participantID, callID string) (*models.VoiceCall, error) {
	call, err := s.find(callID)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(call, participantID); err != nil {
		return nil, err
	}
	return call, nil
}

// History pages through a user's calls, newest first.
func (s *Service) History(userID string, page, limit int) ([]models.VoiceCall, int64, error) {
	query := s.db.Model(&models.VoiceCall{}).
		Where("caller_id = ? OR receiver_id = ?", userID, userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var calls []models.VoiceCall
	err := s.db.Preload("Caller").Preload("Receiver").
		Where("caller_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&calls).Error
	return calls, total, err
}

func (s *Service) find(callID string) (*models.VoiceCall, error) {
	var call models.VoiceCall
	err := s.db.First(&call, "call_id = ? OR id = ?", callID, callID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("call")
		}
		return nil, err
	}
	return &call, nil
}

// transition applies a guarded status move. The stamp for terminal states
// lands in ended_at.
func (s *Service) transition(callID string, to models.CallStatus, guard func(*models.VoiceCall) error) (*models.VoiceCall, error) {
	call, err := s.find(callID)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(call); err != nil {
			return nil, err
		}
	}
	if !call.Status.CanTransition(to) {
		return nil, apperrors.InvalidState(fmt.Sprintf("cannot move %s call to %s", call.Status, to))
	}

	updates := map[string]interface{}{"status": to}
	if to == models.CallRejected || to == models.CallMissed || to == models.CallFailed {
		now := time.Now().UTC()
		updates["ended_at"] = now
		call.EndedAt = &now
	}
	if err := s.db.Model(call).Updates(updates).Error; err != nil {
		return nil, err
	}
	call.Status = to
	return call, nil
}

func requireParticipant(c *models.VoiceCall, userID string) error {
	if c.CallerID != userID && c.ReceiverID != userID {
		return apperrors.Forbidden("not a participant in this call")
	}
	return nil
}

// ring pushes the incoming-call notification to the receiver. Push failure
// does not fail the call; the client can still poll.
func (s *Service) ring(ctx context.Context, call *models.VoiceCall, caller *models.User) {
	if s.notifier == nil {
		return
	}
	_, err := s.notifier.SendToUser(ctx, call.ReceiverID, notify.Input{
		SenderID: &caller.ID,
		Title:    "Incoming call",
		Body:     fmt.Sprintf("%s is calling you", caller.Name),
		Type:     "voice_call",
		Priority: models.PriorityHigh,
		Data: models.JSONMap{
			"call_id": call.CallID,
			"channel": call.Channel,
		},
	})
	if err != nil {
		logger.WarnWithFields("failed to push ring notification", err,
			zap.String("call_id", call.CallID))
	}
}
