// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/genai-analyzer/demo/internal/upload"
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// UploadHandler accepts files and opens jobs for them
type UploadHandler interface {
	HandleUpload(c echo.Context) error
}

// StreamHandler streams job events via Server-Sent Events
type StreamHandler interface {
	HandleStream(c echo.Context) error
}

// JobHandler triggers analysis and reports job status
type JobHandler interface {
	HandleAnalyze(c echo.Context) error
	HandleGetJob(c echo.Context) error
}

// JobManager defines what the handlers need from the job pipeline.
// This allows mocking in tests
type JobManager interface {
	StartJob(info *models.FileInfo, mode models.ModeAPI) upload.Job
	GetJob(id string) (upload.Job, bool)
	Events(id string, after int) ([]upload.StreamEvent, <-chan struct{}, bool, bool)
	Analyze(req models.AnalyzeRequest) error
}

var _ JobManager = (*upload.Manager)(nil)
