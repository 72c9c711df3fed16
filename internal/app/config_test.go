package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rentwise/rentwise/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "json", cfg.Server.LogFormat)
	require.Equal(t, 20*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, []string{"https://app.rentwise.test"}, cfg.Server.CORS.AllowedOrigins)
	require.Equal(t, 250, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Host)
	require.Equal(t, 6543, cfg.Database.Port)
	require.Equal(t, "require", cfg.Database.Options["sslmode"])
	require.Equal(t, 20, cfg.Database.MaxOpenConns)

	require.True(t, cfg.Cache.RedisEnabled())
	require.Equal(t, "redis.internal:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 2*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, []string{"https://app.rentwise.test", "https://admin.rentwise.test"}, cfg.Realtime.AllowedOrigins)
	require.Equal(t, 64, cfg.Realtime.SendBuffer)
	require.True(t, cfg.Realtime.RequireToken)
	require.True(t, cfg.Realtime.RelayEnabled)
	require.Equal(t, "/ws", cfg.Realtime.Path)

	require.Equal(t, "internal-key", cfg.Notifications.InternalAPIKey)
	require.Equal(t, time.Minute, cfg.Notifications.UnreadCountTTL)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@daily", cfg.Maintenance.NotificationSchedule)
	require.Equal(t, 168*time.Hour, cfg.Maintenance.NotificationRetention)
	require.Equal(t, "*/15 * * * *", cfg.Maintenance.CacheSchedule)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.False(t, cfg.Cache.RedisEnabled())
	require.Equal(t, 30*time.Second, cfg.Notifications.UnreadCountTTL)
	require.Empty(t, cfg.Notifications.InternalAPIKey)
	require.Equal(t, 720*time.Hour, cfg.Maintenance.NotificationRetention)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("RENTWISE_SERVER_PORT", "9191")
	t.Setenv("RENTWISE_NOTIFICATIONS_INTERNAL_API_KEY", "from-env")
	t.Setenv("RENTWISE_CACHE_REDIS_ENABLED", "false")

	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, "from-env", cfg.Notifications.InternalAPIKey)
	require.False(t, cfg.Cache.RedisEnabled())
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{Secret: "secret"}}

	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, "secret", jwtCfg.Secret)
	require.Equal(t, "rentwise", jwtCfg.Issuer)
	require.Equal(t, auth.DefaultAccessTokenTTL, jwtCfg.AccessTokenTTL)

	cfg.JWT.TTL = time.Hour
	cfg.JWT.Issuer = "custom"
	jwtCfg = cfg.JWTServiceConfig()
	require.Equal(t, time.Hour, jwtCfg.AccessTokenTTL)
	require.Equal(t, "custom", jwtCfg.Issuer)
}

func TestDatabaseConnectionConfig(t *testing.T) {
	cfg := DatabaseConfig{Driver: " Postgres ", Host: "db", Name: "rentwise", User: "app", MaxIdleConns: 3}

	conn := cfg.ConnectionConfig()
	require.Equal(t, "postgres", conn.Driver)
	require.Equal(t, "db", conn.Host)
	require.Equal(t, 3, conn.MaxIdleConns)
}
