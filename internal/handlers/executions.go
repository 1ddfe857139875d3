package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/scriptdeck/scriptdeck/internal/catalog"
	"github.com/scriptdeck/scriptdeck/internal/models"
	"github.com/scriptdeck/scriptdeck/internal/services"
)

// ExecutionHandler serves script execution and history queries.
type ExecutionHandler struct {
	catalog  *catalog.Catalog
	executor *services.ExecutorService
	history  *services.HistoryService
}

// NewExecutionHandler creates a new ExecutionHandler instance.
func NewExecutionHandler(cat *catalog.Catalog, executor *services.ExecutorService, history *services.HistoryService) *ExecutionHandler {
	return &ExecutionHandler{catalog: cat, executor: executor, history: history}
}

// Execute runs a script synchronously and returns the terminal Execution.
// Validation failures come back as a failed Execution, not an HTTP error;
// only an unknown script path or a persistence failure is an error here.
func (h *ExecutionHandler) Execute(c *gin.Context) {
	var req models.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	script, err := h.catalog.Get(req.ScriptPath)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "script not found"})
		return
	}

	execution, err := h.executor.Execute(script, req.Parameters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"execution": execution})
}

// List returns execution history, newest first.
func (h *ExecutionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	executions, err := h.history.Recent(limit, offset, c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"executions": executions,
		"limit":      limit,
		"offset":     offset,
	})
}

// Get returns one execution by id.
func (h *ExecutionHandler) Get(c *gin.Context) {
	execution, err := h.history.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrExecutionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"execution": execution})
}

// Statistics returns history aggregates plus current catalog counts.
func (h *ExecutionHandler) Statistics(c *gin.Context) {
	stats, err := h.history.Statistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	categoryCounts := map[string]int{}
	for _, cat := range h.catalog.Categories() {
		categoryCounts[cat.Key] = cat.Count
	}

	c.JSON(http.StatusOK, gin.H{
		"statistics":          stats,
		"total_scripts":       h.catalog.Count(),
		"scripts_by_category": categoryCounts,
	})
}
