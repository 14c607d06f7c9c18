package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/auth"
	"github.com/kinship-app/backend/internal/util"
)

// RequireAuth validates the Bearer token and loads the user into context.
func RequireAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			util.RespondUnauthorized(c, "no token provided")
			c.Abort()
			return
		}

		user, err := authService.ValidateToken(token)
		if err != nil {
			util.RespondUnauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("user_id", user.ID)
		c.Next()
	}
}

// OptionalAuth loads the user if valid credentials are present but never
// rejects the request. The public feed personalizes when a viewer is known.
func OptionalAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := bearerToken(c); token != "" {
			if user, err := authService.ValidateToken(token); err == nil {
				c.Set("user", user)
				c.Set("user_id", user.ID)
			}
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
