package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rentwise/rentwise/pkg/crypto"
	"github.com/rentwise/rentwise/pkg/errors"
	"github.com/rentwise/rentwise/pkg/response"
)

// InternalKeyHeader carries the shared secret of backend collaborators.
const InternalKeyHeader = "X-Internal-Key"

// RequireInternalKey guards service-to-service routes. With no key configured
// the routes answer 404 as if they did not exist.
func RequireInternalKey(key string) gin.HandlerFunc {
	key = strings.TrimSpace(key)
	return func(c *gin.Context) {
		if key == "" {
			response.Abort(c, errors.ErrNotFound)
			return
		}
		if !crypto.SecureCompare(key, strings.TrimSpace(c.GetHeader(InternalKeyHeader))) {
			response.Abort(c, errors.ErrInvalidInternalKey)
			return
		}
		c.Next()
	}
}
