// handlers_upload.go - File upload handler
package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/genai-analyzer/demo/internal/intake"
	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/genai-analyzer/demo/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// sniffLen is how much of an upload is read to detect its type.
const sniffLen = 3072

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store storage.Store
	jobs  JobManager
	rules intake.Rules
	log   *log.Logger
}

// NewUploadHandler creates a new upload handler instance
func NewUploadHandler(store storage.Store, jobs JobManager, rules intake.Rules) UploadHandler {
	return &UploadHandlerImpl{
		store: store,
		jobs:  jobs,
		rules: rules,
		log:   logging.New("Upload"),
	}
}

// HandleUpload accepts a multipart "image" file plus an optional "mode",
// validates it against the intake rules, stores it and starts a job.
func (h *UploadHandlerImpl) HandleUpload(c echo.Context) error {
	file, err := c.FormFile("image")
	if err != nil {
		return NewValidationError("image")
	}

	mode, err := parseMode(c.FormValue("mode"))
	if err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return NewBadRequestError("failed to read uploaded file", err)
	}
	head = head[:n]

	mime := intake.DetectMIMEBytes(head)
	switch h.rules.Check(mime, file.Size) {
	case models.ErrMsgUnsupportedType:
		return NewUnsupportedMediaTypeError(mime)
	case models.ErrMsgTooLarge:
		return NewPayloadTooLargeError(file.Size)
	}

	info, err := h.store.Save(file.Filename, mime, io.MultiReader(bytes.NewReader(head), src))
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	job := h.jobs.StartJob(info, mode)
	h.log.Infof("[Job %s] %s uploaded (%s, %d bytes)", logging.ShortID(job.ID), info.Name, mime, info.Size)

	return c.JSON(http.StatusOK, models.UploadResponse{JobID: job.ID})
}

// parseMode accepts an empty mode as "all".
func parseMode(raw string) (models.ModeAPI, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return models.ModeAPIAll, nil
	}
	mode := models.ModeAPI(raw)
	if !mode.Valid() {
		return "", NewValidationError("mode")
	}
	return mode, nil
}
