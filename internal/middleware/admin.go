package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/models"
	"github.com/kinship-app/backend/internal/util"
)

// RequireAdmin ensures the request is authenticated and the user carries
// the admin role. Must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		userVal, exists := c.Get("user")
		if !exists {
			util.RespondUnauthorized(c)
			c.Abort()
			return
		}

		user, ok := userVal.(*models.User)
		if !ok || !user.IsAdmin() {
			util.RespondForbidden(c, "admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}
