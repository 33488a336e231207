package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
)

// maxEventSize bounds a single SSE line.
const maxEventSize = 1024 * 1024

// errStreamEnded is reported when the server closes a stream it may resume.
var errStreamEnded = errors.New("stream closed by server")

// EventHandler receives decoded stream events in arrival order.
type EventHandler func(models.Event)

// ErrorHandler receives transport problems. Reconnects follow unless the error
// is an *HTTPError.
type ErrorHandler func(error)

// Subscription is an open event stream. Close stops it; events already being
// delivered finish first.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops the stream. It is safe to call more than once and from inside
// an event handler.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Done is closed when the reader goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the reader goroutine has exited. Do not call it from a handler.
func (s *Subscription) Wait() {
	<-s.done
}

// Stream subscribes to a job's events. Unnamed and "message" events carrying
// malformed JSON are dropped. After a transport error the stream reconnects
// with Last-Event-ID once the retry delay elapses. A non-2xx response ends the
// subscription; 204 ends it quietly.
func (c *Client) Stream(ctx context.Context, jobID string, onEvent EventHandler, onError ErrorHandler) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer cancel()

		st := &streamState{retry: c.streamRetry}
		for {
			err := c.readStream(ctx, jobID, st, onEvent)
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, errNoContent) {
				c.log.Debugf("[Stream %s] server has nothing more, stopping", logging.ShortID(jobID))
				return
			}
			if err == nil {
				err = errStreamEnded
			}
			if onError != nil {
				onError(err)
			}
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				c.log.Warnf("[Stream %s] %v, not reconnecting", logging.ShortID(jobID), err)
				return
			}

			c.log.Debugf("[Stream %s] %v, reconnecting in %s", logging.ShortID(jobID), err, st.retry)
			select {
			case <-ctx.Done():
				return
			case <-time.After(st.retry):
			}
		}
	}()

	return sub
}

var errNoContent = errors.New("no content")

// streamState survives reconnects.
type streamState struct {
	lastEventID string
	retry       time.Duration
}

func (c *Client) readStream(ctx context.Context, jobID string, st *streamState, onEvent EventHandler) error {
	endpoint := fmt.Sprintf("%s/api/stream/%s", c.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if st.lastEventID != "" {
		req.Header.Set("Last-Event-ID", st.lastEventID)
	}

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("stream connect failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return errNoContent
	}
	if err := checkStatus("stream", resp); err != nil {
		return err
	}

	return parseSSE(ctx, resp.Body, st, func(eventType, data string) {
		if eventType != "" && eventType != "message" {
			return
		}
		ev, err := models.ParseEvent([]byte(data))
		if err != nil {
			c.log.Debugf("[Stream %s] ignoring malformed event: %v", logging.ShortID(jobID), err)
			return
		}
		onEvent(ev)
	})
}

// parseSSE reads text/event-stream framing and calls dispatch once per
// complete event.
func parseSSE(ctx context.Context, body io.Reader, st *streamState, dispatch func(eventType, data string)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var (
		eventType string
		data      strings.Builder
		hasData   bool
	)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Text()
		if line == "" {
			if hasData {
				payload := strings.TrimSuffix(data.String(), "\n")
				dispatch(eventType, payload)
			}
			eventType = ""
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "event":
			eventType = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				st.lastEventID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				st.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}
