package taskdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Taskdesk HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	// Language is sent as Accept-Language; error messages are localized.
	Language   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Request is the API task request model.
type Request struct {
	ID                 string       `json:"id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	CategoryID         string       `json:"category_id"`
	Priority           string       `json:"priority"`
	DueDate            *time.Time   `json:"due_date,omitempty"`
	Status             string       `json:"status"`
	RequesterID        string       `json:"requester_id"`
	AssignerID         string       `json:"assigner_id,omitempty"`
	RequestDate        time.Time    `json:"request_date"`
	AssignmentDate     *time.Time   `json:"assignment_date,omitempty"`
	Notes              string       `json:"notes,omitempty"`
	Comments           []Comment    `json:"comments"`
	Attachments        []Attachment `json:"attachments"`
	AllowedTransitions []string     `json:"allowed_transitions"`
}

type Comment struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Attachment struct {
	ID         string `json:"id"`
	Seq        int64  `json:"seq"`
	UploaderID string `json:"uploader_id"`
	FileName   string `json:"file_name"`
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color"`
	IsDefault   bool   `json:"is_default"`
}

// NewRequest is the create payload. Empty CategoryID means the default category.
type NewRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CategoryID  string     `json:"category_id,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Submit      bool       `json:"submit,omitempty"`
}

type Stats struct {
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

type Me struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
	Source  string   `json:"source"`
}

// PaginatedRequests wraps list responses with cursors.
type PaginatedRequests struct {
	Items      []Request `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateRequest creates a request.
func (c *Client) CreateRequest(ctx context.Context, in NewRequest) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, "requests", in, &resp)
	return resp, err
}

// GetRequest fetches a request with its comments and attachments.
func (c *Client) GetRequest(ctx context.Context, id string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodGet, "requests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListRequests lists requests newest first. status may be empty.
func (c *Client) ListRequests(ctx context.Context, status string, limit int, cursor string) (PaginatedRequests, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "requests"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedRequests
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Submit(ctx context.Context, id string) (Request, error) {
	return c.transition(ctx, id, "submit")
}

func (c *Client) Assign(ctx context.Context, id string) (Request, error) {
	return c.transition(ctx, id, "assign")
}

func (c *Client) Complete(ctx context.Context, id string) (Request, error) {
	return c.transition(ctx, id, "complete")
}

func (c *Client) Cancel(ctx context.Context, id string) (Request, error) {
	return c.transition(ctx, id, "cancel")
}

func (c *Client) transition(ctx context.Context, id, name string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("requests/%s/%s", url.PathEscape(id), name), nil, &resp)
	return resp, err
}

// Comment appends a comment and returns the updated request.
func (c *Client) Comment(ctx context.Context, id, content string) (Request, error) {
	var resp Request
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("requests/%s/comments", url.PathEscape(id)), map[string]string{"content": content}, &resp)
	return resp, err
}

func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var resp []Category
	err := c.do(ctx, http.MethodGet, "categories", nil, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Language != "" {
		req.Header.Set("Accept-Language", c.Language)
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if bp := strings.Trim(c.BasePath, "/"); bp != "" {
		base += "/" + bp
	}
	return base
}
