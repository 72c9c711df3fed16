package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/rentwise/rentwise/internal/models"
	"github.com/rentwise/rentwise/internal/monitoring"
)

const defaultStoreTimeout = 2 * time.Second

// NotificationStore is ready when the database answers and the notifications
// table has been migrated. Details carry the connection pool usage.
func NotificationStore(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("notification_store", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "notification store not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("notification_store", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, orDefault(timeout, defaultStoreTimeout))
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return monitoring.ResultFromError("notification_store", err, time.Since(start))
		}
		if !db.WithContext(probeCtx).Migrator().HasTable(&models.Notification{}) {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  "notifications table missing",
				Duration: time.Since(start),
			}
		}

		stats := sqlDB.Stats()
		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  fmt.Sprintf("%d/%d connections in use", stats.InUse, stats.OpenConnections),
			Duration: time.Since(start),
		}
	})
}

func orDefault(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
