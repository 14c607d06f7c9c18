package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/kinship-app/backend/internal/database"
	"github.com/kinship-app/backend/internal/middleware"
	"github.com/kinship-app/backend/internal/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts every endpoint group on the router.
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		if err := database.Health(); err != nil {
			util.RespondInternalError(c, "database unreachable")
			return
		}
		util.RespondData(c, gin.H{"healthy": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/external", h.ExternalLogin)
		authGroup.GET("/me", middleware.RequireAuth(h.auth), h.Me)
	}

	users := api.Group("/users")
	{
		users.GET("/:id", h.GetUser)
		users.GET("/:id/posts", middleware.OptionalAuth(h.auth), h.ListUserPosts)
		users.GET("/:id/followers", h.Followers)
		users.GET("/:id/following", h.Following)

		authed := users.Group("", middleware.RequireAuth(h.auth))
		{
			authed.PUT("/me", h.UpdateProfile)
			authed.GET("/me/logins", h.LoginHistory)
			authed.POST("/:id/follow", h.Follow)
			authed.DELETE("/:id/follow", h.Unfollow)
			authed.GET("/:id/follow-status", h.FollowStatus)
		}
	}

	posts := api.Group("/posts")
	{
		posts.GET("", middleware.OptionalAuth(h.auth), h.Feed)
		posts.GET("/:id", middleware.OptionalAuth(h.auth), h.GetPost)
		posts.GET("/:id/comments", middleware.OptionalAuth(h.auth), h.ListComments)

		authed := posts.Group("", middleware.RequireAuth(h.auth))
		{
			authed.POST("", h.CreatePost)
			authed.POST("/media", h.UploadMedia)
			authed.PUT("/:id", h.UpdatePost)
			authed.DELETE("/:id", h.DeletePost)
			authed.POST("/:id/like", h.LikePost)
			authed.DELETE("/:id/like", h.UnlikePost)
			authed.POST("/:id/vote", h.VotePoll)
			authed.POST("/:id/comments", h.CreateComment)
		}
	}

	comments := api.Group("/comments", middleware.RequireAuth(h.auth))
	{
		comments.PUT("/:id", h.UpdateComment)
		comments.DELETE("/:id", h.DeleteComment)
		comments.POST("/:id/like", h.LikeComment)
		comments.DELETE("/:id/like", h.UnlikeComment)
	}

	notifications := api.Group("/notifications", middleware.RequireAuth(h.auth))
	{
		notifications.GET("", h.ListNotifications)
		notifications.POST("/:id/delivered", h.MarkNotificationDelivered)
		notifications.POST("/:id/read", h.MarkNotificationRead)
	}

	devices := api.Group("/devices", middleware.RequireAuth(h.auth))
	{
		devices.POST("", h.RegisterDevice)
		devices.DELETE("/:id", h.UnregisterDevice)
	}

	sessions := api.Group("/sessions", middleware.RequireAuth(h.auth))
	{
		sessions.GET("", h.ListSessions)
		sessions.POST("/start", h.StartSession)
		sessions.GET("/:id", h.GetSession)
		sessions.POST("/:id/end", h.EndSession)
		sessions.POST("/:id/screens", h.EnterScreen)
		sessions.POST("/:id/actions", h.RecordAction)
		sessions.POST("/:id/scroll", h.UpdateScrollDepth)
	}

	callsGroup := api.Group("/calls", middleware.RequireAuth(h.auth))
	{
		callsGroup.POST("", h.InitiateCall)
		callsGroup.GET("", h.CallHistory)
		callsGroup.GET("/:id", h.GetCall)
		callsGroup.POST("/:id/ring", h.RingCall)
		callsGroup.POST("/:id/answer", h.AnswerCall)
		callsGroup.POST("/:id/reject", h.RejectCall)
		callsGroup.POST("/:id/miss", h.MissCall)
		callsGroup.POST("/:id/end", h.EndCall)
	}

	admin := api.Group("/admin", middleware.RequireAuth(h.auth), middleware.RequireAdmin())
	{
		admin.GET("/dashboard", h.AdminDashboard)
		admin.GET("/posts", h.AdminListPosts)
		admin.POST("/posts/:id/review", h.AdminReviewPost)
		admin.GET("/users", h.AdminListUsers)
		admin.PUT("/users/:id", h.AdminUpdateUser)
		admin.GET("/notifications", h.AdminListNotifications)
		admin.POST("/notifications", h.AdminSendNotification)
		admin.POST("/notifications/:id/retry", h.AdminRetryNotification)
		admin.GET("/sessions", h.AdminSessionSummary)
		admin.GET("/analytics/screens", h.AdminScreenAnalytics)
	}
}
