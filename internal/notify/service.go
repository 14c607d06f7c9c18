package notify

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/logger"
	"github.com/kinship-app/backend/internal/metrics"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/push"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// tokenDeactivateThreshold is the consecutive-failure count at which a
// device token stops being used.
const tokenDeactivateThreshold = 5

// Service creates notifications and fans them out over the push transport.
type Service struct {
	db        *gorm.DB
	transport push.Transport
}

func NewService(db *gorm.DB, transport push.Transport) *Service {
	return &Service{db: db, transport: transport}
}

// Input describes one notification to create. SenderID is nil for system
// messages. ScheduledFor, when set, defers delivery to the background sweep.
type Input struct {
	SenderID     *string
	Title        string
	Body         string
	Type         string
	Priority     models.NotificationPriority
	Data         models.JSONMap
	ScheduledFor *time.Time
	ExpiresAt    *time.Time
}

// SendToUser creates a notification for one recipient and, unless scheduled,
// delivers it immediately. The created row is returned in its final state.
func (s *Service) SendToUser(ctx context.Context, recipientID string, in Input) (*models.Notification, error) {
	var recipient models.User
	if err := s.db.First(&recipient, "id = ?", recipientID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("recipient")
		}
		return nil, err
	}

	n := s.build(recipientID, in)
	if err := s.db.Create(n).Error; err != nil {
		return nil, err
	}

	if n.IsScheduled {
		return n, nil
	}
	s.deliver(ctx, n)
	return n, nil
}

// SendBulk creates and delivers one notification per recipient. Recipients
// that do not exist are skipped and reported in the skipped list.
func (s *Service) SendBulk(ctx context.Context, recipientIDs []string, in Input) (created []*models.Notification, skipped []string, err error) {
	for _, id := range recipientIDs {
		n, sendErr := s.SendToUser(ctx, id, in)
		if sendErr != nil {
			if apperrors.IsNotFound(sendErr) {
				skipped = append(skipped, id)
				continue
			}
			return created, skipped, sendErr
		}
		created = append(created, n)
	}
	return created, skipped, nil
}

// Broadcast sends to every active user.
func (s *Service) Broadcast(ctx context.Context, in Input) (int, error) {
	return s.sendToCohort(ctx, s.db.Model(&models.User{}).Where("is_active = ?", true), in)
}

// SendToRole sends to every active user holding the given role.
func (s *Service) SendToRole(ctx context.Context, role models.UserRole, in Input) (int, error) {
	return s.sendToCohort(ctx, s.db.Model(&models.User{}).Where("is_active = ? AND role = ?", true, role), in)
}

func (s *Service) sendToCohort(ctx context.Context, query *gorm.DB, in Input) (int, error) {
	var ids []string
	if err := query.Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	count := 0
	for _, id := range ids {
		n := s.build(id, in)
		if err := s.db.Create(n).Error; err != nil {
			logger.ErrorWithFields("failed to create broadcast notification", err,
				zap.String("recipient_id", id))
			continue
		}
		if !n.IsScheduled {
			s.deliver(ctx, n)
		}
		count++
	}
	return count, nil
}

// Retry re-attempts delivery of a failed notification. Only rows in the
// failed state are eligible.
func (s *Service) Retry(ctx context.Context, notificationID string) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.First(&n, "id = ?", notificationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("notification")
		}
		return nil, err
	}
	if n.Status != models.NotificationFailed {
		return nil, apperrors.InvalidState(fmt.Sprintf("notification is %s, only failed notifications can be retried", n.Status))
	}

	updates := map[string]interface{}{
		"status":        models.NotificationPending,
		"error_message": "",
		"retry_count":   gorm.Expr("retry_count + 1"),
	}
	if err := s.db.Model(&n).Updates(updates).Error; err != nil {
		return nil, err
	}
	n.Status = models.NotificationPending
	n.ErrorMessage = ""
	n.RetryCount++

	s.deliver(ctx, &n)
	return &n, nil
}

// MarkDelivered records a device-side delivery receipt. Legal only from sent.
func (s *Service) MarkDelivered(notificationID, recipientID string) error {
	return s.advance(notificationID, recipientID,
		models.NotificationSent, models.NotificationDelivered, "delivered_at")
}

// MarkRead records a read receipt. Reading implies delivery, so sent rows
// may jump straight to read.
func (s *Service) MarkRead(notificationID, recipientID string) error {
	var n models.Notification
	err := s.db.First(&n, "id = ? AND recipient_id = ?", notificationID, recipientID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFound("notification")
		}
		return err
	}
	if n.Status != models.NotificationSent && n.Status != models.NotificationDelivered {
		return apperrors.InvalidState(fmt.Sprintf("cannot mark %s notification as read", n.Status))
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":  models.NotificationRead,
		"read_at": now,
	}
	if n.DeliveredAt == nil {
		updates["delivered_at"] = now
	}
	return s.db.Model(&n).Updates(updates).Error
}

func (s *Service) advance(notificationID, recipientID string, from, to models.NotificationStatus, stampColumn string) error {
	var n models.Notification
	err := s.db.First(&n, "id = ? AND recipient_id = ?", notificationID, recipientID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NotFound("notification")
		}
		return err
	}
	if n.Status != from {
		return apperrors.InvalidState(fmt.Sprintf("cannot move %s notification to %s", n.Status, to))
	}
	return s.db.Model(&n).Updates(map[string]interface{}{
		"status":    to,
		stampColumn: time.Now().UTC(),
	}).Error
}

func (s *Service) build(recipientID string, in Input) *models.Notification {
	n := &models.Notification{
		SenderID:    in.SenderID,
		RecipientID: recipientID,
		Title:       in.Title,
		Body:        in.Body,
		Type:        in.Type,
		Priority:    in.Priority,
		Data:        in.Data,
		Status:      models.NotificationPending,
		ExpiresAt:   in.ExpiresAt,
	}
	if n.Type == "" {
		n.Type = "general"
	}
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	if in.ScheduledFor != nil && in.ScheduledFor.After(time.Now().UTC()) {
		n.IsScheduled = true
		n.ScheduledFor = in.ScheduledFor
	}
	return n
}

// deliver resolves the recipient's active tokens and pushes the payload.
// A recipient with no active tokens yields a failed notification, never a
// false sent. Outcomes are persisted on the row.
func (s *Service) deliver(ctx context.Context, n *models.Notification) {
	var tokens []models.DeviceToken
	err := s.db.Where("user_id = ? AND is_active = ?", n.RecipientID, true).Find(&tokens).Error
	if err != nil {
		s.markFailed(n, fmt.Sprintf("token lookup failed: %v", err))
		return
	}
	if len(tokens) == 0 {
		s.markFailed(n, "recipient has no active device tokens")
		return
	}

	tokenValues := make([]string, len(tokens))
	byValue := make(map[string]*models.DeviceToken, len(tokens))
	for i := range tokens {
		tokenValues[i] = tokens[i].Token
		byValue[tokens[i].Token] = &tokens[i]
	}

	msg := push.Message{
		Title:    n.Title,
		Body:     n.Body,
		Priority: string(n.Priority),
		Data:     flattenData(n),
	}

	result, err := s.transport.SendMulticast(ctx, tokenValues, msg)
	if err != nil {
		s.markFailed(n, fmt.Sprintf("push gateway error: %v", err))
		return
	}

	now := time.Now().UTC()
	for _, tr := range result.Results {
		token := byValue[tr.Token]
		if token == nil {
			continue
		}
		if tr.Success {
			s.db.Model(token).Updates(map[string]interface{}{
				"failure_count": 0,
				"last_used_at":  now,
			})
			continue
		}
		if tr.Unregistered {
			s.db.Model(token).Update("is_active", false)
			continue
		}
		token.FailureCount++
		updates := map[string]interface{}{"failure_count": token.FailureCount}
		if token.FailureCount >= tokenDeactivateThreshold {
			updates["is_active"] = false
		}
		s.db.Model(token).Updates(updates)
	}

	if result.SuccessCount > 0 {
		s.db.Model(n).Updates(map[string]interface{}{
			"status":  models.NotificationSent,
			"sent_at": now,
		})
		n.Status = models.NotificationSent
		n.SentAt = &now
		metrics.Get().NotificationsSent.WithLabelValues(n.Type).Inc()
		return
	}
	s.markFailed(n, "delivery failed for every device token")
}

func (s *Service) markFailed(n *models.Notification, reason string) {
	s.db.Model(n).Updates(map[string]interface{}{
		"status":        models.NotificationFailed,
		"error_message": reason,
	})
	n.Status = models.NotificationFailed
	n.ErrorMessage = reason
	metrics.Get().NotificationsFailed.WithLabelValues(n.Type).Inc()
	logger.Log.Warn("notification delivery failed",
		zap.String("notification_id", n.ID),
		zap.String("recipient_id", n.RecipientID),
		zap.String("reason", reason))
}

// flattenData converts the jsonb payload to the string map the push
// transport carries, tagging the notification id for client-side receipts.
func flattenData(n *models.Notification) map[string]string {
	out := map[string]string{
		"notification_id": n.ID,
		"type":            n.Type,
	}
	for k, v := range n.Data {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
