// handlers_stream.go - Server-Sent Events stream of job events
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

const (
	// DefaultStreamRetry is the reconnect delay advertised to clients.
	DefaultStreamRetry = 3 * time.Second
	// keepAliveInterval is how often an idle stream gets a comment line.
	keepAliveInterval = 15 * time.Second
)

// StreamHandlerImpl implements the StreamHandler interface
type StreamHandlerImpl struct {
	jobs      JobManager
	retry     time.Duration
	keepAlive time.Duration
	log       *log.Logger
}

// NewStreamHandler creates a new stream handler. A zero retry advertises
// DefaultStreamRetry.
func NewStreamHandler(jobs JobManager, retry time.Duration) StreamHandler {
	if retry <= 0 {
		retry = DefaultStreamRetry
	}
	return &StreamHandlerImpl{
		jobs:      jobs,
		retry:     retry,
		keepAlive: keepAliveInterval,
		log:       logging.New("Stream"),
	}
}

// HandleStream replays a job's events after Last-Event-ID and then follows
// new ones until the job emits its final event.
func (h *StreamHandlerImpl) HandleStream(c echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return NewValidationError("jobId")
	}
	lastID := lastEventID(c)

	events, wait, terminal, ok := h.jobs.Events(jobID, lastID)
	if !ok {
		return NewNotFoundError("job", jobID)
	}
	if len(events) == 0 && terminal {
		// Nothing left to send for a finished job
		return c.NoContent(http.StatusNoContent)
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Response().WriteHeader(http.StatusOK)

	fmt.Fprintf(c.Response(), "retry: %d\n\n", h.retry.Milliseconds())
	c.Response().Flush()
	h.log.Debugf("[Job %s] stream opened after event %d", logging.ShortID(jobID), lastID)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		for _, ev := range events {
			data, err := json.Marshal(ev.Event)
			if err != nil {
				h.log.Warnf("[Job %s] skipping event %d: %v", logging.ShortID(jobID), ev.ID, err)
				continue
			}
			fmt.Fprintf(c.Response(), "id: %d\ndata: %s\n\n", ev.ID, data)
			lastID = ev.ID
		}
		if len(events) > 0 {
			c.Response().Flush()
		}
		if terminal {
			h.log.Debugf("[Job %s] stream finished at event %d", logging.ShortID(jobID), lastID)
			return nil
		}

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-ticker.C:
			fmt.Fprint(c.Response(), ": keep-alive\n\n")
			c.Response().Flush()
			events = nil
			continue
		case <-wait:
		}

		events, wait, terminal, ok = h.jobs.Events(jobID, lastID)
		if !ok {
			// Cleaned up while streaming
			return nil
		}
	}
}

// lastEventID reads the resume position from the Last-Event-ID header or the
// lastEventId query parameter.
func lastEventID(c echo.Context) int {
	raw := c.Request().Header.Get("Last-Event-ID")
	if raw == "" {
		raw = c.QueryParam("lastEventId")
	}
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id < 0 {
		return 0
	}
	return id
}

