package util

import (
	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/models"
)

// GetUserFromContext extracts the authenticated user from the Gin context.
// Responds 401 and returns false if the request is not authenticated.
func GetUserFromContext(c *gin.Context) (*models.User, bool) {
	user, exists := c.Get("user")
	if !exists {
		RespondUnauthorized(c)
		return nil, false
	}
	userPtr, ok := user.(*models.User)
	if !ok {
		RespondInternalError(c, "invalid user data in context")
		return nil, false
	}
	return userPtr, true
}

// GetUserIDFromContext extracts the user ID from the Gin context.
// Responds 401 and returns false if the request is not authenticated.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		RespondUnauthorized(c)
		return "", false
	}
	userIDStr, ok := userID.(string)
	if !ok {
		RespondInternalError(c, "invalid user ID in context")
		return "", false
	}
	return userIDStr, true
}

// OptionalUserID returns the viewer's user ID if the request carried valid
// credentials. The feed endpoint works for anonymous callers.
func OptionalUserID(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		if s, ok := userID.(string); ok {
			return s
		}
	}
	return ""
}
