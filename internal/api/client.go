package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DefaultTimeout bounds requests to the daemon.
const DefaultTimeout = 10 * time.Second

// ErrDaemonUnavailable marks a daemon that could not be reached at all.
var ErrDaemonUnavailable = errors.New("daemon unavailable")

// Client issues requests to the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

// NewClient returns a client for the daemon at baseURL.
func NewClient(baseURL, token string) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid daemon url %q", baseURL)
	}
	return &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		token:   strings.TrimSpace(token),
		timeout: DefaultTimeout,
	}, nil
}

// Status returns the daemon status without running preflight checks.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	return c.status(ctx, false)
}

// StatusWithChecks returns the daemon status including preflight results.
func (c *Client) StatusWithChecks(ctx context.Context) (*DaemonStatus, error) {
	return c.status(ctx, true)
}

func (c *Client) status(ctx context.Context, withChecks bool) (*DaemonStatus, error) {
	var resp DaemonStatus
	endpoint := "/api/status?checks=" + strconv.FormatBool(withChecks)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTasks returns tracked tasks, optionally filtered by state names.
func (c *Client) ListTasks(ctx context.Context, states []string) (*TaskListResponse, error) {
	endpoint := "/api/tasks"
	if len(states) > 0 {
		query := url.Values{}
		for _, state := range states {
			query.Add("state", state)
		}
		endpoint += "?" + query.Encode()
	}
	var resp TaskListResponse
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var resp TaskResponse
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// TrackTask registers an existing backend task id.
func (c *Client) TrackTask(ctx context.Context, req TrackRequest) (*TrackResponse, error) {
	var resp TrackResponse
	if err := c.do(ctx, http.MethodPost, "/api/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RemoveTask stops tracking a task.
func (c *Client) RemoveTask(ctx context.Context, id string) (bool, error) {
	var resp RemoveResponse
	if err := c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, &resp); err != nil {
		return false, err
	}
	return resp.Removed, nil
}

// RetryTask re-queues a failed or cancelled task.
func (c *Client) RetryTask(ctx context.Context, id string) (*Task, error) {
	var resp TaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/retry", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// ClearTasks removes every task, or only terminal ones.
func (c *Client) ClearTasks(ctx context.Context, completedOnly bool) (int, error) {
	endpoint := "/api/tasks/clear"
	if completedOnly {
		endpoint += "?completed=true"
	}
	var resp ClearResponse
	if err := c.do(ctx, http.MethodPost, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// Submit starts backend work for a category.
func (c *Client) Submit(ctx context.Context, category string, req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/api/submit/"+url.PathEscape(category), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Notifications returns feed entries newer than since.
func (c *Client) Notifications(ctx context.Context, since int64) (*NotificationsResponse, error) {
	var resp NotificationsResponse
	endpoint := "/api/notifications?since=" + strconv.FormatInt(since, 10)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification asks the daemon to publish a test notification.
func (c *Client) TestNotification(ctx context.Context) (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) agent(ctx context.Context, method, endpoint string, body any) (*fiber.Agent, error) {
	fullURL := c.baseURL + endpoint

	var agent *fiber.Agent
	switch method {
	case http.MethodGet:
		agent = fiber.Get(fullURL)
	case http.MethodPost:
		agent = fiber.Post(fullURL)
	case http.MethodDelete:
		agent = fiber.Delete(fullURL)
	default:
		return nil, fmt.Errorf("unsupported HTTP method: %s", method)
	}

	if deadline, ok := ctx.Deadline(); ok {
		agent.Timeout(time.Until(deadline))
	} else {
		agent.Timeout(c.timeout)
	}
	agent.Set("Accept", "application/json")
	if c.token != "" {
		agent.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		agent.JSON(body)
	}
	return agent, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	agent, err := c.agent(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	code, data, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, errs[0])
	}
	if code < 200 || code >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error != "" {
			return fiber.NewError(code, errResp.Error)
		}
		return fiber.NewError(code, strings.TrimSpace(string(data)))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode daemon response: %w", err)
		}
	}
	return nil
}

// StatusCode extracts the HTTP status from an API error, or 0.
func StatusCode(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return 0
}
