package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"casetrack/internal/config"
	"casetrack/internal/logging"
)

const errorBodyLimit = 512

// HTTPDoer describes the HTTP client used by the backend client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues authenticated requests to the case-management backend.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	client    HTTPDoer
	logger    *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "backend")
	}
}

// New builds a client from configuration.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.Backend.BaseURL), "/"),
		token:     strings.TrimSpace(cfg.Backend.Token),
		userAgent: cfg.Backend.UserAgent,
		client:    &http.Client{Timeout: cfg.BackendTimeout()},
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend root used for requests.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status fetches the remote status of a task. Any transport failure, non-2xx
// response, or undecodable body is reported as ErrStatus.
func (c *Client) Status(ctx context.Context, taskID string) (*TaskStatus, error) {
	endpoint := fmt.Sprintf("%s/tasks/status/%s", c.baseURL, url.PathEscape(taskID))
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrStatus, err)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStatus, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("task status fetched",
		logging.String(logging.FieldTaskID, taskID),
		logging.Int("http_status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldCorrelationID, req.Header.Get("X-Request-ID")),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrStatus, describeFailure(resp))
	}

	var status TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrStatus, err)
	}
	status.Status = strings.ToUpper(strings.TrimSpace(status.Status))
	return &status, nil
}

// SubmitRequest is the body posted to every category endpoint.
type SubmitRequest struct {
	CaseID      string   `json:"case_id"`
	EvidenceIDs []string `json:"evidence_ids"`
}

type submitResponse struct {
	TaskID  string   `json:"task_id"`
	TaskIDs []string `json:"task_ids"`
}

// Submit posts work to path (relative to the base URL) and returns the task
// ids the backend created. Failures wrap ErrSubmission.
func (c *Client) Submit(ctx context.Context, path string, payload SubmitRequest) ([]string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrSubmission, err)
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrSubmission, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmission, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", ErrSubmission, describeFailure(resp))
	}

	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSubmission, err)
	}

	ids := make([]string, 0, len(decoded.TaskIDs)+1)
	seen := make(map[string]struct{}, cap(ids))
	for _, id := range append([]string{decoded.TaskID}, decoded.TaskIDs...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: response carried no task id", ErrSubmission)
	}
	return ids, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	requestID, ok := logging.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// describeFailure renders a non-2xx response, preferring a FastAPI style detail.
func describeFailure(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	var payload struct {
		Detail Text `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Detail.String() != "" {
		return fmt.Sprintf("backend returned %d: %s", resp.StatusCode, payload.Detail.String())
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return fmt.Sprintf("backend returned %d: %s", resp.StatusCode, text)
	}
	return fmt.Sprintf("backend returned %d", resp.StatusCode)
}
