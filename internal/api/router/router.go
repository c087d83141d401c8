// Package router sets up the API routes for the application.
package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/finsight/finsight/consts"
	"github.com/finsight/finsight/internal/api/handler"
	"github.com/finsight/finsight/internal/api/middleware"
	"github.com/finsight/finsight/internal/config"
	"github.com/finsight/finsight/internal/contextbudget"
	"github.com/finsight/finsight/internal/database"
	"github.com/finsight/finsight/internal/editor"
	"github.com/finsight/finsight/internal/store"
)

// Setup configures all API routes
func Setup(r *gin.Engine, cfg *config.Config, s store.Store, ed *editor.Service, cm *contextbudget.Manager) {
	// Apply global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger(&middleware.LoggerConfig{
		AccessLog: cfg.Logging.AccessLog,
	}))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler(cfg.Server.Debug))

	// Apply OpenTelemetry tracing middleware
	r.Use(otelgin.Middleware(consts.ServiceName))

	// Health check endpoint (public)
	r.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(); err != nil {
			c.JSON(503, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes
	v1 := r.Group("/api/v1")

	reportHandler := handler.NewReportHandler(s, ed)
	editHandler := handler.NewEditHandler(s, ed)
	sectionHandler := handler.NewSectionHandler(s, ed)
	contextHandler := handler.NewContextHandler(cm)

	// Report lifecycle
	reports := v1.Group("/reports")
	{
		reports.POST("", reportHandler.CreateReport)
		reports.GET("", reportHandler.ListReports)
		reports.GET("/:id", reportHandler.GetReport)
		reports.PATCH("/:id/title", reportHandler.UpdateReportTitle)
		reports.DELETE("/:id", reportHandler.DeleteReport)

		// Monolithic report editing
		reports.POST("/:id/edit", editHandler.EditReport)
		reports.POST("/:id/restore", editHandler.RestoreReport)
		reports.GET("/:id/history", editHandler.GetReportHistory)

		// Section structure
		reports.POST("/:id/sections", sectionHandler.InsertSection)
		reports.DELETE("/:id/sections/:sid", sectionHandler.DeleteSection)
		reports.POST("/:id/sections/:sid/duplicate", sectionHandler.DuplicateSection)
		reports.POST("/:id/sections/:sid/move", sectionHandler.MoveSection)

		// Section editing
		reports.POST("/:id/sections/:sid/edit", editHandler.EditSection)
		reports.POST("/:id/sections/:sid/restore", editHandler.RestoreSection)
		reports.GET("/:id/sections/:sid/history", editHandler.GetSectionHistory)
		reports.GET("/:id/sections/:sid/edits/active", editHandler.GetActiveEdit)
	}

	// Context snapshots and budget
	contexts := v1.Group("/context")
	{
		contexts.GET("/:entity_type/:entity_id", contextHandler.GetSnapshot)
		contexts.POST("/:entity_type/:entity_id/regenerate", contextHandler.RegenerateSnapshot)
		contexts.GET("/:entity_type/:entity_id/estimate", contextHandler.GetEstimate)
		contexts.POST("/:entity_type/:entity_id/compress", contextHandler.Compress)
	}
}
