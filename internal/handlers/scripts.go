// Package handlers implements the HTTP API surface of the dashboard.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/scriptdeck/scriptdeck/internal/catalog"
	"github.com/scriptdeck/scriptdeck/internal/services"
)

// ScriptHandler serves catalog browsing and refresh.
type ScriptHandler struct {
	catalog *catalog.Catalog
	history *services.HistoryService
}

// NewScriptHandler creates a new ScriptHandler instance.
func NewScriptHandler(cat *catalog.Catalog, history *services.HistoryService) *ScriptHandler {
	return &ScriptHandler{catalog: cat, history: history}
}

// ListCategories returns all categories with script counts.
func (h *ScriptHandler) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.catalog.Categories()})
}

// List returns catalog entries, optionally filtered by category and search.
func (h *ScriptHandler) List(c *gin.Context) {
	scripts := h.catalog.Scripts(c.Query("category"), c.Query("search"))
	c.JSON(http.StatusOK, gin.H{
		"scripts": scripts,
		"total":   len(scripts),
	})
}

// Get returns the full catalog entry for one script plus its recent runs.
// With an empty path it falls through to the list view, since the script
// route is a catch-all.
func (h *ScriptHandler) Get(c *gin.Context) {
	path := strings.TrimPrefix(c.Param("path"), "/")
	if path == "" {
		h.List(c)
		return
	}

	script, err := h.catalog.Get(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "script not found"})
		return
	}

	history, err := h.history.ForScript(path, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"script":  script,
		"history": history,
	})
}

// Refresh rescans the scripts directory and returns the new counts.
func (h *ScriptHandler) Refresh(c *gin.Context) {
	count, err := h.catalog.Refresh()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scripts":    count,
		"categories": len(h.catalog.Categories()),
	})
}
