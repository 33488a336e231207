// Package client is the thin HTTP client for the analysis backend: health,
// upload, event stream and analyze.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/genai-analyzer/demo/internal/intake"
	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/labstack/gommon/log"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:3001"

// HTTPError is returned when the backend answers with an unexpected status.
// Its message has the form "<op> failed: <status>".
type HTTPError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s failed: %d", e.Op, e.Status)
}

// Client wraps backend API interactions
type Client struct {
	baseURL     string
	httpClient  *http.Client
	streamHTTP  *http.Client
	streamRetry time.Duration
	log         *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for the non-streaming calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithStreamHTTPClient sets the client used for event streams. It must not
// carry an overall timeout.
func WithStreamHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.streamHTTP = h }
}

// WithTimeout sets the overall timeout of non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithStreamRetry sets the reconnect delay used until the server sends its own.
func WithStreamRetry(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.streamRetry = d
		}
	}
}

// New creates a backend client
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		streamHTTP:  &http.Client{},
		streamRetry: 3 * time.Second,
		log:         logging.New("Client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks that the backend is up.
func (c *Client) Health(ctx context.Context) (models.HealthResponse, error) {
	var out models.HealthResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return out, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("health failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("health", resp); err != nil {
		return out, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode health response: %w", err)
	}
	return out, nil
}

// Upload sends one file as multipart field "image" with an optional mode and
// returns the job id the backend assigned.
func (c *Client) Upload(ctx context.Context, name, contentType string, content io.Reader, mode models.ModeAPI) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, escapeQuotes(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if mode != "" {
		if err := writer.WriteField("mode", string(mode)); err != nil {
			return "", fmt.Errorf("failed to write mode field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("upload", resp); err != nil {
		return "", err
	}

	var out models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("upload failed: response has no jobId")
	}

	c.log.Infof("uploaded %s as job %s", name, logging.ShortID(out.JobID))
	return out.JobID, nil
}

// UploadFile uploads a file from disk, sniffing its content type.
func (c *Client) UploadFile(ctx context.Context, path string, mode models.ModeAPI) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	contentType, err := intake.DetectMIME(path)
	if err != nil {
		return "", err
	}
	return c.Upload(ctx, filepath.Base(path), contentType, f, mode)
}

// Analyze asks the backend to run analysis for a job. Any 2xx is success.
func (c *Client) Analyze(ctx context.Context, body models.AnalyzeRequest) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return checkStatus("analyze", resp)
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
