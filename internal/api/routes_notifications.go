package api

import (
	"github.com/gin-gonic/gin"

	"github.com/rentwise/rentwise/internal/handlers"
	"github.com/rentwise/rentwise/internal/middleware"
)

func registerNotificationRoutes(api *gin.RouterGroup, handler *handlers.NotificationHandler) {
	group := api.Group("/notifications")
	{
		group.GET("", handler.List)
		group.GET("/unread-count", handler.UnreadCount)
		group.POST("/read-all", handler.MarkAllRead)

		group.POST("/:id/read", handler.MarkRead)
		group.POST("/:id/unread", handler.MarkUnread)
		group.DELETE("/:id", handler.Delete)
	}
}

// registerInternalRoutes mounts the service-to-service surface used by payment
// and reservation backends.
func registerInternalRoutes(engine *gin.Engine, internalKey string, notifications *handlers.NotificationHandler, monitoring *handlers.MonitoringHandler) {
	internal := engine.Group("/internal")
	internal.Use(middleware.RequireInternalKey(internalKey))
	{
		internal.POST("/notifications", notifications.Create)
		internal.GET("/realtime/summary", monitoring.Summary)
	}
}
