package services

import (
	"context"
	"strings"
	"time"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func normaliseEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func utcNow() time.Time {
	return time.Now().UTC()
}
