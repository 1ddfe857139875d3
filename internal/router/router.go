// Package router wires the HTTP API together.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scriptdeck/scriptdeck/internal/catalog"
	"github.com/scriptdeck/scriptdeck/internal/handlers"
	"github.com/scriptdeck/scriptdeck/internal/middleware"
	"github.com/scriptdeck/scriptdeck/internal/services"
	"github.com/scriptdeck/scriptdeck/internal/version"
)

// New builds the Gin engine with all routes registered.
func New(
	cat *catalog.Catalog,
	authService *services.AuthService,
	executorService *services.ExecutorService,
	historyService *services.HistoryService,
	schedulerService *services.SchedulerService,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.BodySizeLimit(1 << 20))

	authHandler := handlers.NewAuthHandler(authService)
	scriptHandler := handlers.NewScriptHandler(cat, historyService)
	executionHandler := handlers.NewExecutionHandler(cat, executorService, historyService)
	scheduleHandler := handlers.NewScheduleHandler(schedulerService)
	streamHandler := handlers.NewStreamHandler(executorService, historyService)
	systemHandler := handlers.NewSystemHandler(cat.Root())

	api := r.Group("/api")
	{
		api.GET("/health", systemHandler.Health)
		api.GET("/version", func(c *gin.Context) {
			c.JSON(http.StatusOK, version.Info())
		})

		api.POST("/auth/login", middleware.LoginRateLimit(10, time.Minute), authHandler.Login)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(authService))
		{
			protected.POST("/auth/logout", authHandler.Logout)
			protected.GET("/auth/me", authHandler.Me)

			protected.GET("/categories", scriptHandler.ListCategories)
			// The catch-all serves both the list (empty path) and detail.
			protected.GET("/scripts/*path", scriptHandler.Get)
			protected.POST("/scripts/refresh", scriptHandler.Refresh)

			protected.POST("/execute", executionHandler.Execute)
			protected.GET("/executions", executionHandler.List)
			protected.GET("/executions/:id", executionHandler.Get)
			protected.GET("/executions/:id/stream", streamHandler.Stream)
			protected.GET("/statistics", executionHandler.Statistics)

			protected.GET("/schedules", scheduleHandler.List)
			protected.POST("/schedules", scheduleHandler.Create)
			protected.PUT("/schedules/:id", scheduleHandler.Update)
			protected.DELETE("/schedules/:id", scheduleHandler.Delete)
			protected.POST("/schedules/:id/toggle", scheduleHandler.Toggle)
			protected.POST("/cron/validate", scheduleHandler.Validate)
			protected.GET("/cron/presets", scheduleHandler.Presets)

			protected.GET("/system", systemHandler.Metrics)
		}
	}

	return r
}
