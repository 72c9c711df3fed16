package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/rentwise/rentwise/internal/monitoring"
)

const defaultRelayTimeout = 2 * time.Second

// Pinger reaches the Redis server shared by the cache and the relay.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RelayObserver exposes the cross-instance relay's subscription state.
type RelayObserver interface {
	Subscribed() bool
	Pending() int
}

// Relay reports on cross-instance delivery. Without Redis every instance only
// reaches its own connections, which is a valid single-node setup. With Redis
// the server must answer and, when the relay is running, hold its subscription.
func Relay(redis Pinger, relay RelayObserver, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("relay", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if redis == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "redis disabled; local delivery only",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, orDefault(timeout, defaultRelayTimeout))
		defer cancel()
		if err := redis.Ping(probeCtx); err != nil {
			return monitoring.ResultFromError("relay", err, time.Since(start))
		}

		switch {
		case relay == nil:
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "relay disabled; redis reachable",
				Duration: time.Since(start),
			}
		case !relay.Subscribed():
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "relay not subscribed",
				Duration: time.Since(start),
			}
		}
		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  fmt.Sprintf("subscribed, %d events queued", relay.Pending()),
			Duration: time.Since(start),
		}
	})
}
