// handlers_jobs.go - Analyze trigger and job status handlers
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/genai-analyzer/demo/internal/upload"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/vmihailenco/msgpack/v5"
)

// JobHandlerImpl implements the JobHandler interface
type JobHandlerImpl struct {
	jobs JobManager
	log  *log.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobManager) JobHandler {
	return &JobHandlerImpl{
		jobs: jobs,
		log:  logging.New("Analyze"),
	}
}

// analyzeRequest is the POST /api/analyze body
type analyzeRequest struct {
	JobID  string `json:"jobId"`
	Role   string `json:"role"`
	Prompt string `json:"prompt"`
	Mode   string `json:"mode"`
}

func (r *analyzeRequest) validate() error {
	r.JobID = strings.TrimSpace(r.JobID)
	if r.JobID == "" {
		return NewValidationError("jobId")
	}
	if r.Role != "" && !models.RoleAPI(r.Role).Valid() {
		return NewValidationError("role")
	}
	if r.Mode != "" && !models.ModeAPI(r.Mode).Valid() {
		return NewValidationError("mode")
	}
	return nil
}

// analyzeResponse acknowledges an accepted analyze trigger
type analyzeResponse struct {
	JobID  string        `json:"jobId"`
	Status upload.Status `json:"status"`
}

// HandleAnalyze starts analysis for a job whose prework has finished.
// Results are delivered on the job's event stream.
func (h *JobHandlerImpl) HandleAnalyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	err := h.jobs.Analyze(models.AnalyzeRequest{
		JobID:  req.JobID,
		Role:   models.RoleAPI(req.Role),
		Prompt: req.Prompt,
		Mode:   models.ModeAPI(req.Mode),
	})
	switch {
	case errors.Is(err, upload.ErrJobNotFound):
		return NewNotFoundError("job", req.JobID)
	case errors.Is(err, upload.ErrNotReady), errors.Is(err, upload.ErrAlreadyAnalyzed):
		return NewConflictError(err.Error())
	case err != nil:
		return NewInternalError("failed to start analysis", err)
	}

	h.log.Infof("[Job %s] analyze accepted (role=%q mode=%q)", logging.ShortID(req.JobID), req.Role, req.Mode)
	return c.JSON(http.StatusAccepted, analyzeResponse{JobID: req.JobID, Status: upload.StatusAnalyzing})
}

// HandleGetJob returns a job snapshot as JSON, or msgpack with ?format=msgpack
func (h *JobHandlerImpl) HandleGetJob(c echo.Context) error {
	jobID := c.Param("jobId")
	job, ok := h.jobs.GetJob(jobID)
	if !ok {
		return NewNotFoundError("job", jobID)
	}

	if c.QueryParam("format") == "msgpack" {
		data, err := msgpack.Marshal(job)
		if err != nil {
			return NewInternalError("failed to encode job", err)
		}
		return c.Blob(http.StatusOK, "application/msgpack", data)
	}
	return c.JSON(http.StatusOK, job)
}
