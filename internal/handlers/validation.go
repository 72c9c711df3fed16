package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/rentwise/rentwise/pkg/errors"
	"github.com/rentwise/rentwise/pkg/response"
	"github.com/rentwise/rentwise/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and checks its validate
// tags. On failure it writes a 400 naming every rejected field and returns false.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}
	if err := validator.Struct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(validationMessage(err)))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var failures validator.Errors
	if errors.As(err, &failures) {
		return failures.Error()
	}
	return "invalid request payload"
}

// parseBoolQuery treats anything strconv.ParseBool rejects as false.
func parseBoolQuery(c *gin.Context, key string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return err == nil && parsed
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return fallback
	}
	return parsed
}
