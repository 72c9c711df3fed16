package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/rentwise/rentwise/internal/middleware"
	"github.com/rentwise/rentwise/pkg/errors"
	"github.com/rentwise/rentwise/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requireUserID returns the authenticated user or writes a 401 and reports false.
func requireUserID(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
