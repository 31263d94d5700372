package handlers

import (
	"context"
	"net/http"

	"github.com/allmovies/ultrapro/internal/telegram"

	"github.com/gin-gonic/gin"
)

// PollingFrontHandler starts the long-poll fallback on demand.
type PollingFrontHandler struct {
	poller *telegram.Poller
}

// NewPollingFrontHandler constructs a PollingFrontHandler.
func NewPollingFrontHandler(poller *telegram.Poller) *PollingFrontHandler {
	return &PollingFrontHandler{poller: poller}
}

// Start launches the poll loop; repeated calls are no-ops.
func (h *PollingFrontHandler) Start(c *gin.Context) {
	if h.poller == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "polling unavailable"})
		return
	}
	h.poller.Start(context.Background())
	c.JSON(http.StatusOK, gin.H{"ok": true, "mode": "polling"})
}
