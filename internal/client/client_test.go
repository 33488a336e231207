package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/genai-analyzer/demo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    models.HealthResponse
		wantErr string
	}{
		{"ok", http.StatusOK, `{"ok":true,"gridChunking":"on"}`, models.HealthResponse{OK: true, GridChunking: models.GridChunkingOn}, ""},
		{"grid as free text", http.StatusOK, `{"ok":true,"gridChunking":"enabled"}`, models.HealthResponse{OK: true, GridChunking: "enabled"}, ""},
		{"grid as bool", http.StatusOK, `{"ok":true,"gridChunking":false}`, models.HealthResponse{OK: true, GridChunking: models.GridChunkingOff}, ""},
		{"grid missing", http.StatusOK, `{"ok":true}`, models.HealthResponse{OK: true}, ""},
		{"grid wrong type", http.StatusOK, `{"ok":true,"gridChunking":[1]}`, models.HealthResponse{}, "failed to decode health response"},
		{"unavailable", http.StatusServiceUnavailable, `{}`, models.HealthResponse{}, "health failed: 503"},
		{"bad json", http.StatusOK, `{"ok":`, models.HealthResponse{}, "failed to decode health response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/health", r.URL.Path)
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			got, err := New(srv.URL).Health(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHealthStatusErrorIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Health(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.Status)
	assert.Equal(t, "down", httpErr.Body)
	assert.Equal(t, "health failed: 502", err.Error())
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/upload", r.URL.Path)

		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		assert.Equal(t, "scan.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, "png-bytes", string(data))
		assert.Equal(t, "describe", r.FormValue("mode"))

		json.NewEncoder(w).Encode(models.UploadResponse{JobID: "job-42"})
	}))
	defer srv.Close()

	jobID, err := New(srv.URL).Upload(context.Background(), "scan.png", "image/png", strings.NewReader("png-bytes"), models.ModeAPIDescribe)
	require.NoError(t, err)
	assert.Equal(t, "job-42", jobID)
}

func TestUploadFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		}))
		defer srv.Close()

		_, err := New(srv.URL).Upload(context.Background(), "a.png", "image/png", strings.NewReader("x"), "")
		require.Error(t, err)
		assert.Equal(t, "upload failed: 413", err.Error())
	})

	t.Run("missing job id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{}`)
		}))
		defer srv.Close()

		_, err := New(srv.URL).Upload(context.Background(), "a.png", "image/png", strings.NewReader("x"), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no jobId")
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := New(url).Upload(context.Background(), "a.png", "image/png", strings.NewReader("x"), "")
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "upload failed:"))
	})
}

func TestAnalyze(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := New(srv.URL).Analyze(context.Background(), models.AnalyzeRequest{JobID: "j1", Role: models.RoleAPIPO, Mode: models.ModeAPIAll})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"jobId": "j1", "role": "po", "mode": "all"}, got)
}

func TestAnalyzeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	err := New(srv.URL).Analyze(context.Background(), models.AnalyzeRequest{JobID: "j1"})
	require.Error(t, err)
	assert.Equal(t, "analyze failed: 409", err.Error())
}

func TestNewDefaultsBaseURL(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New("").BaseURL())
	assert.Equal(t, "http://x:1", New("http://x:1/").BaseURL())
}

// collector gathers stream callbacks for assertions.
type collector struct {
	mu     sync.Mutex
	events []models.Event
	errs   []error
}

func (c *collector) onEvent(ev models.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *collector) snapshot() ([]models.Event, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Event(nil), c.events...), append([]error(nil), c.errs...)
}

func TestStreamParsesFramesAndSkipsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/stream/job-1", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, ": keepalive\n\n")
		io.WriteString(w, "id: 1\ndata: {\"type\":\"stage\",\"stage\":\"upload\"}\n\n")
		io.WriteString(w, "data: {not json}\n\n")
		io.WriteString(w, "event: ping\ndata: {\"type\":\"message\",\"message\":\"named events are skipped\"}\n\n")
		io.WriteString(w, "id: 2\r\ndata: {\"type\":\"progress\",\r\ndata: \"current\":1,\"total\":2}\r\n\r\n")
		io.WriteString(w, "data:{\"type\":\"done\",\"result\":\"ok\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	col := &collector{}
	sub := New(srv.URL).Stream(context.Background(), "job-1", col.onEvent, col.onError)
	defer sub.Close()

	require.Eventually(t, func() bool {
		events, _ := col.snapshot()
		return len(events) == 3
	}, 2*time.Second, 10*time.Millisecond)

	events, errs := col.snapshot()
	assert.Equal(t, models.EventStage, events[0].Type)
	assert.Equal(t, models.EventProgress, events[1].Type)
	assert.Equal(t, 1.0, events[1].Current)
	assert.Equal(t, 2.0, events[1].Total)
	assert.Equal(t, models.EventDone, events[2].Type)
	assert.Equal(t, "ok", events[2].ResultText())
	assert.Empty(t, errs)

	sub.Close()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream goroutine did not exit after Close")
	}
}

func TestStreamReconnectsWithLastEventID(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts = append(attempts, r.Header.Get("Last-Event-ID"))
		n := len(attempts)
		mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if n == 1 {
			io.WriteString(w, "retry: 10\nid: 7\ndata: {\"type\":\"stage\",\"stage\":\"upload\"}\n\n")
			return
		}
		io.WriteString(w, "id: 8\ndata: {\"type\":\"stage\",\"stage\":\"chunking\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	col := &collector{}
	sub := New(srv.URL, WithStreamRetry(time.Hour)).Stream(context.Background(), "job-1", col.onEvent, col.onError)
	defer sub.Close()

	require.Eventually(t, func() bool {
		events, _ := col.snapshot()
		return len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"", "7"}, attempts[:2])
	mu.Unlock()

	_, errs := col.snapshot()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], errStreamEnded)
}

func TestStreamStopsOnHTTPError(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	col := &collector{}
	sub := New(srv.URL, WithStreamRetry(5*time.Millisecond)).Stream(context.Background(), "missing", col.onEvent, col.onError)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream should stop on a 404")
	}

	_, errs := col.snapshot()
	require.Len(t, errs, 1)
	assert.Equal(t, "stream failed: 404", errs[0].Error())
	mu.Lock()
	assert.Equal(t, 1, hits)
	mu.Unlock()
}

func TestStreamStopsQuietlyOnNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	col := &collector{}
	sub := New(srv.URL).Stream(context.Background(), "done-job", col.onEvent, col.onError)
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream should stop on 204")
	}
	events, errs := col.snapshot()
	assert.Empty(t, events)
	assert.Empty(t, errs)
}

func TestStreamCloseFromHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 3; i++ {
			fmt.Fprintf(w, "data: {\"type\":\"message\",\"message\":\"m%d\"}\n\n", i)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	var sub *Subscription
	var mu sync.Mutex
	var seen int
	ready := make(chan struct{})
	sub = New(srv.URL).Stream(context.Background(), "j", func(ev models.Event) {
		<-ready
		mu.Lock()
		seen++
		mu.Unlock()
		sub.Close()
	}, nil)
	close(ready)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Close from handler should not deadlock")
	}
	mu.Lock()
	assert.GreaterOrEqual(t, seen, 1)
	mu.Unlock()
}
