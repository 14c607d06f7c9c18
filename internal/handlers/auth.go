package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/auth"
	apperrors "github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/util"
)

// Register handles POST /auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid registration payload: "+err.Error())
		return
	}

	resp, err := h.auth.Register(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists), errors.Is(err, auth.ErrPhoneExists):
			util.RespondWithAPIError(c, apperrors.InvalidState(err.Error()))
		default:
			util.RespondInternalError(c, "registration failed")
		}
		return
	}
	util.RespondCreated(c, "account created", resp)
}

// Login handles POST /auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid login payload: "+err.Error())
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrInvalidCredentials):
			util.RespondUnauthorized(c, "invalid email or password")
		case errors.Is(err, auth.ErrAccountDisabled):
			util.RespondForbidden(c, "account is deactivated")
		default:
			util.RespondInternalError(c, "login failed")
		}
		return
	}
	util.RespondData(c, resp)
}

// ExternalLoginRequest is the payload for provider-asserted identities. The
// provider has already verified the email before we see it.
type ExternalLoginRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Name      string `json:"name" binding:"required,min=1,max=80"`
	AvatarURL string `json:"avatar_url"`
}

// ExternalLogin handles POST /auth/external. It resolves the identity to a
// local account, provisioning one on first sight.
func (h *Handlers) ExternalLogin(c *gin.Context) {
	var req ExternalLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid identity payload: "+err.Error())
		return
	}

	resp, err := h.auth.UpsertByExternalIdentity(c.Request.Context(), auth.ExternalIdentity{
		Email:     req.Email,
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
	}, requestMeta(c))
	if err != nil {
		if errors.Is(err, auth.ErrAccountDisabled) {
			util.RespondForbidden(c, "account is deactivated")
			return
		}
		util.RespondInternalError(c, "external login failed")
		return
	}
	util.RespondData(c, resp)
}

// Me handles GET /auth/me
func (h *Handlers) Me(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	util.RespondData(c, user)
}

func requestMeta(c *gin.Context) auth.RequestMeta {
	return auth.RequestMeta{
		IP:     c.ClientIP(),
		Device: c.GetHeader("User-Agent"),
	}
}
