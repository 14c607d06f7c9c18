package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/util"
)

// InitiateCallRequest starts a call to another user.
type InitiateCallRequest struct {
	ReceiverID string `json:"receiver_id" binding:"required"`
}

// InitiateCall handles POST /calls.
func (h *Handlers) InitiateCall(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req InitiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid call payload: "+err.Error())
		return
	}

	result, err := h.calls.Initiate(c.Request.Context(), user, req.ReceiverID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondCreated(c, "call initiated", result)
}

// RingCall handles POST /calls/:id/ring (receiver device acknowledgment).
func (h *Handlers) RingCall(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	call, err := h.calls.Ring(user.ID, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, call)
}

// AnswerCall handles POST /calls/:id/answer.
func (h *Handlers) AnswerCall(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	result, err := h.calls.Answer(user, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, result)
}

// RejectCall handles POST /calls/:id/reject.
func (h *Handlers) RejectCall(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	call, err := h.calls.Reject(user.ID, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, call)
}

// MissCall handles POST /calls/:id/miss (ring timeout report).
func (h *Handlers) MissCall(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	call, err := h.calls.Miss(user.ID, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, call)
}

// EndCall handles POST /calls/:id/end.
func (h *Handlers) EndCall(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	call, err := h.calls.End(user.ID, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, call)
}

// GetCall handles GET /calls/:id for a participant.
func (h *Handlers) GetCall(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	call, err := h.calls.Get(user.ID, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, call)
}

// CallHistory handles GET /calls for the caller.
func (h *Handlers) CallHistory(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	page, limit := pageParams(c)

	calls, total, err := h.calls.History(user.ID, page, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, gin.H{
		"calls":      calls,
		"pagination": util.NewPagination(page, limit, total),
	})
}
