package api

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/rentwise/rentwise/internal/app"
	iauth "github.com/rentwise/rentwise/internal/auth"
	"github.com/rentwise/rentwise/internal/handlers"
	"github.com/rentwise/rentwise/internal/middleware"
	"github.com/rentwise/rentwise/internal/monitoring"
	"github.com/rentwise/rentwise/internal/realtime"
	"github.com/rentwise/rentwise/internal/services"
)

// Dependencies bundles the services the HTTP surface is built from.
type Dependencies struct {
	Config        *app.Config
	JWT           *iauth.JWTService
	Users         *services.UserService
	Notifications *services.NotificationService
	Hub           *realtime.Hub
	Health        *monitoring.HealthManager
	// RateStore backs the request limiter; nil uses an in-process counter.
	RateStore middleware.RateStore
}

func (d Dependencies) validate() error {
	switch {
	case d.Config == nil:
		return fmt.Errorf("config must be provided")
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Users == nil:
		return fmt.Errorf("user service must be provided")
	case d.Notifications == nil:
		return fmt.Errorf("notification service must be provided")
	case d.Hub == nil:
		return fmt.Errorf("realtime hub must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))
	r.Use(middleware.RateLimit(deps.RateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	registerHealthRoutes(r, cfg, deps.Health)
	registerMetricsRoute(r, cfg)

	authHandler, err := handlers.NewAuthHandler(deps.Users, deps.JWT)
	if err != nil {
		return nil, err
	}
	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications)
	if err != nil {
		return nil, err
	}
	monitoringHandler := handlers.NewMonitoringHandler(deps.Hub)
	realtimeHandler := handlers.NewRealtimeHandler(deps.Hub)

	// The socket authenticates itself after the upgrade.
	r.GET(realtimePath(cfg), realtimeHandler.Stream)

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))

	registerAuthRoutes(r, api, authHandler)
	registerNotificationRoutes(api, notificationHandler)
	registerInternalRoutes(r, cfg.Notifications.InternalAPIKey, notificationHandler, monitoringHandler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func realtimePath(cfg *app.Config) string {
	if cfg.Realtime.Path == "" {
		return "/ws"
	}
	return cfg.Realtime.Path
}
