package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scriptdeck/scriptdeck/internal/metrics"
	"github.com/scriptdeck/scriptdeck/internal/version"
)

// SystemHandler serves health and host metrics endpoints.
type SystemHandler struct {
	scriptsRoot string
}

// NewSystemHandler creates a new SystemHandler instance.
func NewSystemHandler(scriptsRoot string) *SystemHandler {
	return &SystemHandler{scriptsRoot: scriptsRoot}
}

// Health is a liveness check.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"version":   version.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Metrics returns current host resource usage.
func (h *SystemHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.Collect(h.scriptsRoot))
}
