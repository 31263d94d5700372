package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthFrontHandler serves the public liveness endpoint.
type HealthFrontHandler struct{}

// NewHealthFrontHandler constructs a HealthFrontHandler.
func NewHealthFrontHandler() *HealthFrontHandler {
	return &HealthFrontHandler{}
}

// Health reports liveness.
func (h *HealthFrontHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
