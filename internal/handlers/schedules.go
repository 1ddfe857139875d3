package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/scriptdeck/scriptdeck/internal/models"
	"github.com/scriptdeck/scriptdeck/internal/services"
)

// ScheduleHandler serves schedule CRUD and cron validation.
type ScheduleHandler struct {
	scheduler *services.SchedulerService
}

// NewScheduleHandler creates a new ScheduleHandler instance.
func NewScheduleHandler(scheduler *services.SchedulerService) *ScheduleHandler {
	return &ScheduleHandler{scheduler: scheduler}
}

// List returns all schedules with their computed next runs.
func (h *ScheduleHandler) List(c *gin.Context) {
	schedules, err := h.scheduler.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules})
}

// Create validates and persists a new schedule.
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req models.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sched, err := h.scheduler.Create(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"schedule": sched})
}

// Update modifies an existing schedule.
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req models.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sched, err := h.scheduler.Update(c.Param("id"), &req)
	if err != nil {
		if errors.Is(err, services.ErrScheduleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedule": sched})
}

// Delete removes a schedule; historical executions remain.
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.scheduler.Delete(c.Param("id")); err != nil {
		if errors.Is(err, services.ErrScheduleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "schedule deleted"})
}

// Toggle enables or disables a schedule.
func (h *ScheduleHandler) Toggle(c *gin.Context) {
	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sched, err := h.scheduler.Toggle(c.Param("id"), *req.Enabled)
	if err != nil {
		if errors.Is(err, services.ErrScheduleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedule": sched})
}

// Validate checks a cron expression and previews its next occurrences.
func (h *ScheduleHandler) Validate(c *gin.Context) {
	var req struct {
		Expression string `json:"expression" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.scheduler.Validate(req.Expression, 5))
}

// Presets returns commonly used cron expressions with labels.
func (h *ScheduleHandler) Presets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": services.Presets()})
}
