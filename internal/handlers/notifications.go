package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/database"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/notify"
	"github.com/kinship-app/backend/internal/util"
)

// ListNotifications handles GET /notifications for the authenticated user.
// Scheduled notifications stay hidden until dispatched.
func (h *Handlers) ListNotifications(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	page, limit := pageParams(c)

	query := database.DB.Model(&models.Notification{}).
		Where("recipient_id = ? AND is_scheduled = ?", user.ID, false)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.RespondInternalError(c, "failed to count notifications")
		return
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		util.RespondInternalError(c, "failed to list notifications")
		return
	}

	util.RespondData(c, gin.H{
		"notifications": notifications,
		"pagination":    util.NewPagination(page, limit, total),
	})
}

// MarkNotificationDelivered handles POST /notifications/:id/delivered.
func (h *Handlers) MarkNotificationDelivered(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	if err := h.notify.MarkDelivered(c.Param("id"), user.ID); err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondSuccess(c, 200, "notification delivered", nil)
}

// MarkNotificationRead handles POST /notifications/:id/read.
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	if err := h.notify.MarkRead(c.Param("id"), user.ID); err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondSuccess(c, 200, "notification read", nil)
}

// AdminSendNotificationRequest is the admin send payload. Exactly one of
// RecipientID, RecipientIDs, Role, or Broadcast selects the audience.
type AdminSendNotificationRequest struct {
	RecipientID  string   `json:"recipient_id"`
	RecipientIDs []string `json:"recipient_ids"`
	Role         string   `json:"role"`
	Broadcast    bool     `json:"broadcast"`

	Title        string                      `json:"title" binding:"required,min=1,max=200"`
	Body         string                      `json:"body" binding:"max=2000"`
	Type         string                      `json:"type"`
	Priority     models.NotificationPriority `json:"priority"`
	Data         models.JSONMap              `json:"data"`
	ScheduledFor *time.Time                  `json:"scheduled_for"`
	ExpiresAt    *time.Time                  `json:"expires_at"`
}

// AdminSendNotification handles POST /admin/notifications.
func (h *Handlers) AdminSendNotification(c *gin.Context) {
	admin, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req AdminSendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid notification payload: "+err.Error())
		return
	}

	in := notify.Input{
		SenderID:     &admin.ID,
		Title:        req.Title,
		Body:         req.Body,
		Type:         req.Type,
		Priority:     req.Priority,
		Data:         req.Data,
		ScheduledFor: req.ScheduledFor,
		ExpiresAt:    req.ExpiresAt,
	}

	ctx := c.Request.Context()
	switch {
	case req.Broadcast:
		count, err := h.notify.Broadcast(ctx, in)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		util.RespondCreated(c, "broadcast queued", gin.H{"recipients": count})

	case req.Role != "":
		count, err := h.notify.SendToRole(ctx, models.UserRole(req.Role), in)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		util.RespondCreated(c, "role notification queued", gin.H{"recipients": count})

	case len(req.RecipientIDs) > 0:
		created, skipped, err := h.notify.SendBulk(ctx, req.RecipientIDs, in)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		util.RespondCreated(c, "bulk notification queued", gin.H{
			"created": len(created),
			"skipped": skipped,
		})

	case req.RecipientID != "":
		n, err := h.notify.SendToUser(ctx, req.RecipientID, in)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		util.RespondCreated(c, "notification queued", n)

	default:
		util.RespondValidationError(c, "recipient_id",
			"one of recipient_id, recipient_ids, role, or broadcast is required")
	}
}

// AdminRetryNotification handles POST /admin/notifications/:id/retry.
func (h *Handlers) AdminRetryNotification(c *gin.Context) {
	n, err := h.notify.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, n)
}

// AdminListNotifications handles GET /admin/notifications with optional
// status and recipient filters.
func (h *Handlers) AdminListNotifications(c *gin.Context) {
	page, limit := pageParams(c)

	query := database.DB.Model(&models.Notification{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if recipient := c.Query("recipient_id"); recipient != "" {
		query = query.Where("recipient_id = ?", recipient)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		util.RespondInternalError(c, "failed to count notifications")
		return
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		util.RespondInternalError(c, "failed to list notifications")
		return
	}

	util.RespondData(c, gin.H{
		"notifications": notifications,
		"pagination":    util.NewPagination(page, limit, total),
	})
}

// RegisterDeviceRequest registers a push token for the caller.
type RegisterDeviceRequest struct {
	Token    string `json:"token" binding:"required,min=10"`
	Platform string `json:"platform" binding:"required,oneof=ios android web"`
}

// RegisterDevice handles POST /devices. Re-registering a known token value
// re-parents it to the caller and reactivates it.
func (h *Handlers) RegisterDevice(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid device payload: "+err.Error())
		return
	}

	var existing models.DeviceToken
	err := database.DB.First(&existing, "token = ?", req.Token).Error
	if err == nil {
		updates := map[string]interface{}{
			"user_id":       user.ID,
			"platform":      req.Platform,
			"is_active":     true,
			"failure_count": 0,
		}
		if err := database.DB.Model(&existing).Updates(updates).Error; err != nil {
			util.RespondInternalError(c, "failed to update device token")
			return
		}
		util.RespondData(c, existing)
		return
	}

	token := models.DeviceToken{
		UserID:   user.ID,
		Token:    req.Token,
		Platform: req.Platform,
		IsActive: true,
	}
	if err := database.DB.Create(&token).Error; err != nil {
		util.RespondInternalError(c, "failed to register device")
		return
	}
	util.RespondCreated(c, "device registered", token)
}

// UnregisterDevice handles DELETE /devices/:id for the caller's own token.
func (h *Handlers) UnregisterDevice(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	res := database.DB.Where("id = ? AND user_id = ?", c.Param("id"), user.ID).
		Delete(&models.DeviceToken{})
	if res.Error != nil {
		util.RespondInternalError(c, "failed to remove device")
		return
	}
	if res.RowsAffected == 0 {
		util.RespondNotFound(c, "device")
		return
	}
	util.RespondSuccess(c, 200, "device removed", nil)
}
