// handlers_health.go - Health check handlers
package api

import (
	"net/http"

	"github.com/genai-analyzer/demo/internal/models"
	"github.com/labstack/echo/v4"
)

// HeaderServerVersion carries the server build version on health responses.
const HeaderServerVersion = "X-Server-Version"

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version      string
	gridChunking bool
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, gridChunking bool) HealthHandler {
	return &HealthHandlerImpl{
		version:      version,
		gridChunking: gridChunking,
	}
}

// HandleHealth reports liveness and whether grid chunking is available
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	if h.version != "" {
		c.Response().Header().Set(HeaderServerVersion, h.version)
	}
	return c.JSON(http.StatusOK, models.HealthResponse{
		OK:           true,
		GridChunking: models.GridChunkingFrom(h.gridChunking),
	})
}
