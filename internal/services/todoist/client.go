// Package todoist is a small client for the Todoist REST API.
package todoist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/voiceflow/internal/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Todoist REST API root
	DefaultBaseURL = "https://api.todoist.com/rest/v2"
	// DefaultTimeout bounds a single request
	DefaultTimeout = 30 * time.Second

	maxResponseBody = 4 << 20
)

// ErrNotConfigured is returned when no API token is set.
var ErrNotConfigured = errors.New("todoist api token is not configured")

// NewTask is the body of a task creation request.
type NewTask struct {
	Content   string   `json:"content"`
	ProjectID string   `json:"project_id,omitempty"`
	ParentID  string   `json:"parent_id,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Priority  int      `json:"priority,omitempty"`
	DueString string   `json:"due_string,omitempty"`
}

// Task is a task as returned by the API.
type Task struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	ProjectID string   `json:"project_id"`
	ParentID  *string  `json:"parent_id"`
	Labels    []string `json:"labels"`
	Priority  int      `json:"priority"`
	URL       string   `json:"url"`
}

// Project is a Todoist project.
type Project struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ParentID   *string `json:"parent_id"`
	IsFavorite bool    `json:"is_favorite"`
	IsInbox    bool    `json:"is_inbox_project"`
}

// Label is a personal Todoist label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Options configures a Client.
type Options struct {
	Token   string
	BaseURL string
	Timeout time.Duration
	Policy  retry.Policy
	// HTTPClient is the base client the token transport wraps.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the Todoist REST API with a bearer token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	configured bool
	policy     retry.Policy
	logger     *zap.Logger
}

// NewClient creates a Todoist client. A client without a token is valid but
// every call returns ErrNotConfigured.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	token := strings.TrimSpace(opts.Token)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = opts.Timeout

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		configured: token != "",
		policy:     opts.Policy,
		logger:     opts.Logger,
	}
	if c.policy.Notify == nil {
		c.policy.Notify = func(err error, attempt int, wait time.Duration) {
			c.logger.Warn("todoist_request_retry",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}
	}
	return c
}

// Configured reports whether a token was supplied.
func (c *Client) Configured() bool {
	return c.configured
}

// CreateTask creates one task. Retries reuse the same X-Request-Id so the
// API can drop duplicates.
func (c *Client) CreateTask(ctx context.Context, task NewTask) (*Task, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task: %w", err)
	}
	requestID := uuid.New().String()

	var created Task
	if err := c.do(ctx, http.MethodPost, "/tasks", body, requestID, &created); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	c.logger.Info("todoist_task_created",
		zap.String("task_id", created.ID),
		zap.String("project_id", created.ProjectID),
	)
	return &created, nil
}

// Projects lists all projects.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, "/projects", nil, "", &projects); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// Labels lists all personal labels.
func (c *Client) Labels(ctx context.Context) ([]Label, error) {
	var labels []Label
	if err := c.do(ctx, http.MethodGet, "/labels", nil, "", &labels); err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	return labels, nil
}

// Ping verifies the token by listing projects.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Projects(ctx)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, requestID string, out any) error {
	if !c.configured {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("X-Request-Id", requestID)
	}

	_, err = retry.Do(ctx, c.policy, func(ctx context.Context) (struct{}, error) {
		attempt := req.Clone(ctx)
		if body != nil {
			attempt.Body = io.NopCloser(bytes.NewReader(body))
			attempt.ContentLength = int64(len(body))
		}

		resp, err := c.httpClient.Do(attempt)
		if err != nil {
			return struct{}{}, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, &retry.HTTPError{
				StatusCode: resp.StatusCode,
				Message:    strings.TrimSpace(string(data)),
				Body:       string(data),
			}
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return struct{}{}, fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return struct{}{}, nil
	})
	return err
}
