package handlers

import (
	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	ready func() bool
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(ready func() bool) *HealthHandler {
	return &HealthHandler{ready: ready}
}

// GetHealth returns the health status of the service
// GET /api/health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	RespondOK(c, gin.H{
		"status":         "UP",
		"service":        "acbridge",
		"apiInitialized": h.ready(),
	})
}
