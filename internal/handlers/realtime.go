package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/rentwise/rentwise/internal/realtime"
	"github.com/rentwise/rentwise/pkg/errors"
	"github.com/rentwise/rentwise/pkg/response"
)

// RealtimeHandler upgrades HTTP connections onto the live notification hub.
// Identity is announced over the socket after the upgrade, so the route
// itself is public.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream hands the request to the hub, which owns the connection until the peer leaves.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil || h.hub.Closed() {
		response.Error(c, errors.ErrRealtimeUnavailable)
		return
	}
	h.hub.Serve(c.Writer, c.Request)
}
