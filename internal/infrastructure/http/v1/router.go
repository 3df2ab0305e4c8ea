// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"linkpress/internal/domain/deletion"
	"linkpress/internal/infrastructure/http/v1/handlers"
	"linkpress/internal/infrastructure/http/v1/middleware"
	"linkpress/internal/infrastructure/storage/postgres"
	"linkpress/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks)
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// DeletionService runs the detach and cleanup flows
	DeletionService *deletion.Service

	// Domains serves the domain read endpoint
	Domains handlers.DomainReader

	// Archive serves snapshot lookups; nil disables the endpoint
	Archive handlers.ArchiveReader
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()
	domainHandler := handlers.NewDomainHandler(baseHandler, cfg.DeletionService, cfg.Domains)

	api := router.Group("/api/v1")
	{
		api.GET("/domains/:name", domainHandler.Get)
		api.DELETE("/domains/:name", domainHandler.Delete)
	}

	// Internal surface: the job relay and operators re-run the pipeline
	// through here. Not exposed on the public ingress.
	internal := router.Group("/internal/v1")
	{
		internal.POST("/domains/cleanup", domainHandler.Cleanup)

		if cfg.Archive != nil {
			archiveHandler := handlers.NewArchiveHandler(baseHandler, cfg.Archive)
			internal.GET("/domains/:name/archive", archiveHandler.List)
		}
	}

	return router
}
