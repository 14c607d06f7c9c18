package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/util"
)

// StartSessionRequest opens an analytics session.
type StartSessionRequest struct {
	Device     string `json:"device" binding:"max=120"`
	AppVersion string `json:"app_version" binding:"max=40"`
}

// StartSession handles POST /sessions/start.
func (h *Handlers) StartSession(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		util.RespondBadRequest(c, "invalid session payload: "+err.Error())
		return
	}

	session, err := h.tracking.StartSession(user.ID, req.Device, req.AppVersion)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondCreated(c, "session started", session)
}

// EndSession handles POST /sessions/:id/end.
func (h *Handlers) EndSession(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	session, err := h.tracking.EndSession(c.Param("id"), user.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, session)
}

// EnterScreenRequest opens a screen visit inside a session.
type EnterScreenRequest struct {
	ScreenName string `json:"screen_name" binding:"required,min=1,max=80"`
}

// EnterScreen handles POST /sessions/:id/screens.
func (h *Handlers) EnterScreen(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req EnterScreenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid screen payload: "+err.Error())
		return
	}

	activity, err := h.tracking.EnterScreen(c.Param("id"), user.ID, req.ScreenName)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondCreated(c, "screen entered", activity)
}

// RecordActionRequest appends one interaction to the open screen.
type RecordActionRequest struct {
	Action string `json:"action" binding:"required,min=1,max=80"`
}

// RecordAction handles POST /sessions/:id/actions.
func (h *Handlers) RecordAction(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req RecordActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid action payload: "+err.Error())
		return
	}

	activity, err := h.tracking.RecordAction(c.Param("id"), user.ID, req.Action)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, activity)
}

// ScrollDepthRequest reports how far the viewer scrolled, 0..100.
type ScrollDepthRequest struct {
	Depth *float64 `json:"depth" binding:"required"`
}

// UpdateScrollDepth handles POST /sessions/:id/scroll.
func (h *Handlers) UpdateScrollDepth(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req ScrollDepthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid scroll payload: "+err.Error())
		return
	}

	activity, err := h.tracking.UpdateScrollDepth(c.Param("id"), user.ID, *req.Depth)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, activity)
}

// GetSession handles GET /sessions/:id with its activity history.
func (h *Handlers) GetSession(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	session, err := h.tracking.GetSession(c.Param("id"), user.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, session)
}

// ListSessions handles GET /sessions for the caller.
func (h *Handlers) ListSessions(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	page, limit := pageParams(c)

	sessions, total, err := h.tracking.ListSessions(user.ID, page, limit)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	util.RespondData(c, gin.H{
		"sessions":   sessions,
		"pagination": util.NewPagination(page, limit, total),
	})
}
