package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rentwise/rentwise/pkg/errors"
	"github.com/rentwise/rentwise/pkg/logger"
	"github.com/rentwise/rentwise/pkg/response"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimit returns a middleware that limits requests per (clientIP, route) within a fixed window.
// A nil store falls back to a process-local counter. Store failures let the request through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if store == nil {
		store = NewMemoryRateStore()
	}
	log := logger.WithModule("ratelimit")

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := rateLimitKeyPrefix + c.ClientIP() + "|" + route

		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			log.Warn("rate store unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, maxRequests-count)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Round(time.Second).Seconds())))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(max(1, int(ttl.Round(time.Second).Seconds()))))
			response.Abort(c, errors.ErrRateLimit)
			return
		}

		c.Next()
	}
}
