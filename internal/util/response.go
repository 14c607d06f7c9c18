package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/errors"
	"github.com/kinship-app/backend/internal/logger"
	"go.uber.org/zap"
)

// Envelope is the response shape every endpoint returns.
type Envelope struct {
	Status  string      `json:"status"` // "success" or "error"
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// Pagination is the standard list envelope. The feed endpoint deliberately
// does not use it; it reports has_more instead of a total.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

// NewPagination derives page count from a total.
func NewPagination(page, limit int, total int64) Pagination {
	pages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// RespondSuccess sends a success envelope with optional data.
func RespondSuccess(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Envelope{Status: "success", Message: message, Data: data})
}

// RespondData sends a 200 success envelope carrying data only.
func RespondData(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Status: "success", Data: data})
}

// RespondCreated sends a 201 success envelope.
func RespondCreated(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Status: "success", Message: message, Data: data})
}

// RespondWithAPIError sends a structured API error in the standard envelope.
func RespondWithAPIError(c *gin.Context, apiErr *errors.APIError) {
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Log.Error("API error",
			zap.String("code", string(apiErr.Code)),
			zap.String("message", apiErr.Message),
			zap.Int("status", apiErr.Status),
		)
	} else {
		logger.Log.Warn("API error",
			zap.String("code", string(apiErr.Code)),
			zap.String("message", apiErr.Message),
			zap.String("field", apiErr.Field),
		)
	}

	env := Envelope{Status: "error", Message: apiErr.Message}
	if apiErr.Field != "" || apiErr.Details != "" {
		env.Errors = []errors.APIError{*apiErr}
	}
	c.JSON(apiErr.Status, env)
}

// RespondUnauthorized sends a 401 Unauthorized response
func RespondUnauthorized(c *gin.Context, message ...string) {
	msg := "user not authenticated"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.Unauthorized(msg))
}

// RespondNotFound sends a 404 Not Found response
func RespondNotFound(c *gin.Context, resource string) {
	RespondWithAPIError(c, errors.NotFound(resource))
}

// RespondBadRequest sends a 400 Bad Request response
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithAPIError(c, errors.BadRequest(message))
}

// RespondForbidden sends a 403 Forbidden response
func RespondForbidden(c *gin.Context, message ...string) {
	msg := "forbidden"
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	RespondWithAPIError(c, errors.Forbidden(msg))
}

// RespondInternalError sends a 500 without leaking internals.
func RespondInternalError(c *gin.Context, message string) {
	RespondWithAPIError(c, errors.InternalError(message))
}

// RespondConflict sends a 409 Conflict response
func RespondConflict(c *gin.Context, resource string) {
	RespondWithAPIError(c, errors.Conflict(resource))
}

// RespondValidationError sends a 400 with field-level detail
func RespondValidationError(c *gin.Context, field, message string) {
	RespondWithAPIError(c, errors.ValidationError(field, message))
}
