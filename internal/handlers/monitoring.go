package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rentwise/rentwise/internal/realtime"
	"github.com/rentwise/rentwise/pkg/errors"
	"github.com/rentwise/rentwise/pkg/response"
)

// MonitoringHandler exposes operational snapshots of the live transport.
type MonitoringHandler struct {
	hub *realtime.Hub
}

// NewMonitoringHandler constructs a monitoring handler.
func NewMonitoringHandler(hub *realtime.Hub) *MonitoringHandler {
	return &MonitoringHandler{hub: hub}
}

type realtimeSummary struct {
	ActiveConnections int  `json:"active_connections"`
	ConnectedUsers    int  `json:"connected_users"`
	Accepting         bool `json:"accepting"`
}

// Summary reports presence counters for this instance.
func (h *MonitoringHandler) Summary(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrServiceUnavailable)
		return
	}

	response.Success(c, http.StatusOK, realtimeSummary{
		ActiveConnections: h.hub.ActiveConnections(),
		ConnectedUsers:    h.hub.Presence().ConnectedUsers(),
		Accepting:         !h.hub.Closed(),
	})
}
