package app

import (
	"strings"

	"github.com/rentwise/rentwise/internal/cache"
)

// RedisEnabled reports whether a Redis deployment has been configured.
func (c CacheConfig) RedisEnabled() bool {
	return c.Redis.Enabled && strings.TrimSpace(c.Redis.Address) != ""
}

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}
