// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"time"

	"github.com/genai-analyzer/demo/internal/intake"
	"github.com/genai-analyzer/demo/internal/storage"
	"github.com/labstack/echo/v4"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store        storage.Store
	Jobs         JobManager
	Rules        intake.Rules
	GridChunking bool
	Version      string
	// StreamRetry is the reconnect delay sent to stream clients.
	StreamRetry time.Duration
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Upload UploadHandler
	Stream StreamHandler
	Job    JobHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(deps.Version, deps.GridChunking),
		Upload: NewUploadHandler(deps.Store, deps.Jobs, deps.Rules),
		Stream: NewStreamHandler(deps.Jobs, deps.StreamRetry),
		Job:    NewJobHandler(deps.Jobs),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	g := e.Group("/api")
	g.GET("/health", handlers.Health.HandleHealth)
	g.POST("/upload", handlers.Upload.HandleUpload)
	g.GET("/stream/:jobId", handlers.Stream.HandleStream)
	g.POST("/analyze", handlers.Job.HandleAnalyze)
	g.GET("/jobs/:jobId", handlers.Job.HandleGetJob)
}

// SetupMiddleware configures the API error handler
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
