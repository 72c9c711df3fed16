package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rentwise/rentwise/internal/api"
	"github.com/rentwise/rentwise/internal/app"
	"github.com/rentwise/rentwise/internal/app/maintenance"
	iauth "github.com/rentwise/rentwise/internal/auth"
	"github.com/rentwise/rentwise/internal/cache"
	"github.com/rentwise/rentwise/internal/database"
	"github.com/rentwise/rentwise/internal/middleware"
	"github.com/rentwise/rentwise/internal/monitoring"
	"github.com/rentwise/rentwise/internal/monitoring/checks"
	"github.com/rentwise/rentwise/internal/realtime"
	"github.com/rentwise/rentwise/internal/services"
	"github.com/rentwise/rentwise/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	Redis         *cache.RedisClient
	Hub           *realtime.Hub
	Relay         *realtime.RedisRelay
	Notifications *services.NotificationService
	Cleaner       *maintenance.Cleaner
	RateStore     middleware.RateStore
	Router        *gin.Engine

	relayCancel context.CancelFunc
	relayDone   sync.WaitGroup
}

// bootstrapRuntime initialises the database, caches, realtime transport, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			_ = stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}
	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.RedisEnabled() {
		if stack.Redis, err = cache.NewRedisClient(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	hubOpts := []realtime.HubOption{
		realtime.WithAllowedOrigins(cfg.Realtime.AllowedOrigins),
		realtime.WithSendBuffer(cfg.Realtime.SendBuffer),
	}
	if cfg.Realtime.RequireToken {
		hubOpts = append(hubOpts, realtime.WithIdentityVerifier(jwtSvc))
	}
	stack.Hub = realtime.NewHub(hubOpts...)

	emitter, err := stack.startEmitter(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	var unreadCache cache.Store = dbStore
	if stack.Redis != nil {
		unreadCache = stack.Redis
	}

	stack.Notifications, err = services.NewNotificationService(stack.DB, emitter,
		services.WithUnreadCountCache(unreadCache, cfg.Notifications.UnreadCountTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	users, err := services.NewUserService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		var cachePurger maintenance.CachePurger
		if stack.Redis == nil {
			cachePurger = dbStore
		}
		stack.Cleaner = maintenance.NewCleaner(stack.Notifications, cachePurger,
			maintenance.WithNotificationRetention(cfg.Maintenance.NotificationRetention),
			maintenance.WithNotificationSchedule(cfg.Maintenance.NotificationSchedule),
			maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	if stack.Redis != nil {
		stack.RateStore = middleware.NewRedisRateStore(stack.Redis)
	} else {
		stack.RateStore = middleware.NewDatabaseRateStore(dbStore)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		Config:        cfg,
		JWT:           jwtSvc,
		Users:         users,
		Notifications: stack.Notifications,
		Hub:           stack.Hub,
		Health:        stack.healthManager(cfg),
		RateStore:     stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// startEmitter picks the delivery path for live events. With Redis available the
// relay publishes across instances and feeds the local hub; otherwise the hub is used directly.
func (s *runtimeStack) startEmitter(ctx context.Context, cfg *app.Config, log *zap.Logger) (services.Emitter, error) {
	if s.Redis == nil || !cfg.Realtime.RelayEnabled {
		return s.Hub, nil
	}

	relay, err := realtime.NewRedisRelay(s.Redis.Client(), s.Hub, cfg.Realtime.RelayChannelPrefix,
		realtime.WithRelayQueueSize(cfg.Realtime.RelayQueueSize),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise realtime relay: %w", err)
	}

	relayCtx, cancel := context.WithCancel(ctx)
	s.relayCancel = cancel
	ready := make(chan struct{})
	failed := make(chan error, 1)

	s.relayDone.Add(1)
	go func() {
		defer s.relayDone.Done()
		if err := relay.Run(relayCtx, ready); err != nil {
			log.Warn("realtime relay stopped", zap.Error(err))
			failed <- err
		}
	}()

	select {
	case <-ready:
		s.Relay = relay
		return relay, nil
	case err := <-failed:
		log.Warn("realtime relay unavailable; delivering to local connections only", zap.Error(err))
		return s.Hub, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *runtimeStack) healthManager(cfg *app.Config) *monitoring.HealthManager {
	manager := monitoring.NewHealthManager(monitoring.WithCheckTimeout(cfg.Monitoring.Health.Timeout))
	manager.RegisterLiveness(checks.Realtime(s.Hub))
	manager.RegisterReadiness(checks.NotificationStore(s.DB, cfg.Monitoring.Health.Timeout))

	var redisPinger checks.Pinger
	if s.Redis != nil {
		redisPinger = s.Redis
	}
	var relay checks.RelayObserver
	if s.Relay != nil {
		relay = s.Relay
	}
	manager.RegisterReadiness(checks.Relay(redisPinger, relay, cfg.Monitoring.Health.Timeout))
	return manager
}

// Shutdown stops background work and releases resources, reporting every failure.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) error {
	if s == nil {
		return nil
	}

	var errs error

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if s.relayCancel != nil {
		s.relayCancel()
		s.relayDone.Wait()
	}

	if s.Hub != nil {
		s.Hub.Close()
	}

	if closer, ok := s.RateStore.(*middleware.MemoryRateStore); ok {
		closer.Close()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close redis: %w", err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	for _, err := range multierr.Errors(errs) {
		log.Warn("shutdown step failed", zap.Error(err))
	}
	return errs
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}
