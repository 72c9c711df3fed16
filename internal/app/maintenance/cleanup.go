package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rentwise/rentwise/pkg/logger"
	"github.com/rentwise/rentwise/pkg/metrics"
)

const (
	defaultNotificationRetention = 30 * 24 * time.Hour
	defaultNotificationSpec      = "@daily"
	defaultCacheSpec             = "@hourly"

	jobNotifications = "notifications"
	jobCache         = "cache"
)

// NotificationPurger removes read notifications created before the cutoff.
type NotificationPurger interface {
	PurgeReadOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CachePurger removes cache entries that expired before now.
type CachePurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner coordinates background maintenance tasks such as pruning read
// notifications and expired rows of the database backed cache.
type Cleaner struct {
	notifications NotificationPurger
	cache         CachePurger
	cron          *cron.Cron
	now           func() time.Time
	log           *zap.Logger
	retention     time.Duration

	notificationSchedule string
	cacheSchedule        string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithNotificationRetention adjusts how long read notifications are kept.
func WithNotificationRetention(retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		if retention > 0 {
			cleaner.retention = retention
		}
	}
}

// WithNotificationSchedule overrides the cron specification for notification pruning.
func WithNotificationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.notificationSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache pruning.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil purger results in the corresponding job being skipped.
func NewCleaner(notifications NotificationPurger, cachePurger CachePurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		notifications:        notifications,
		cache:                cachePurger,
		now:                  time.Now,
		retention:            defaultNotificationRetention,
		notificationSchedule: defaultNotificationSpec,
		cacheSchedule:        defaultCacheSpec,
		log:                  logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) enabled() bool {
	return c.notifications != nil || c.cache != nil
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	if !c.enabled() {
		return nil
	}

	if c.notifications != nil {
		if _, err := c.cron.AddFunc(c.notificationSchedule, func() {
			if _, err := c.purgeNotifications(context.Background()); err != nil {
				c.log.Warn("notification cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if _, err := c.purgeCache(context.Background()); err != nil {
				c.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially and aggregates their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.notifications != nil {
		if _, err := c.purgeNotifications(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.cache != nil {
		if _, err := c.purgeCache(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) purgeNotifications(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.retention)
	removed, err := c.notifications.PurgeReadOlderThan(ctx, cutoff)
	c.record(jobNotifications, removed, err)
	return removed, err
}

func (c *Cleaner) purgeCache(ctx context.Context) (int64, error) {
	removed, err := c.cache.PurgeExpired(ctx, c.now())
	c.record(jobCache, removed, err)
	return removed, err
}

func (c *Cleaner) record(job string, removed int64, err error) {
	if err != nil {
		metrics.MaintenanceRuns.WithLabelValues(job, "error").Inc()
		return
	}
	metrics.MaintenanceRuns.WithLabelValues(job, "success").Inc()
	if removed > 0 {
		c.log.Info("maintenance job removed rows", zap.String("job", job), zap.Int64("removed", removed))
	}
}
