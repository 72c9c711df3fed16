package api

import (
	"github.com/gin-gonic/gin"

	"github.com/rentwise/rentwise/internal/handlers"
)

func registerAuthRoutes(engine *gin.Engine, api *gin.RouterGroup, handler *handlers.AuthHandler) {
	auth := engine.Group("/api/auth")
	{
		auth.POST("/register", handler.Register)
		auth.POST("/login", handler.Login)
	}

	api.GET("/auth/me", handler.Me)
}
