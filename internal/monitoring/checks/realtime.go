package checks

import (
	"context"
	"fmt"

	"github.com/rentwise/rentwise/internal/monitoring"
)

// HubObserver is the slice of the live hub the liveness check reads.
type HubObserver interface {
	Closed() bool
	ActiveConnections() int
	ConnectedUsers() int
}

// Realtime fails liveness once the hub stops accepting connections.
func Realtime(hub HubObserver) monitoring.Check {
	return monitoring.NewCheck("realtime", func(context.Context) monitoring.ProbeResult {
		switch {
		case hub == nil:
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "realtime hub not configured"}
		case hub.Closed():
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "realtime hub closed"}
		}
		return monitoring.ProbeResult{
			Status:  monitoring.StatusUp,
			Details: fmt.Sprintf("%d connections, %d users online", hub.ActiveConnections(), hub.ConnectedUsers()),
		}
	})
}
