package safetydesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal SafetyDesk HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Event represents a calendar event.
type Event struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	Start        string `json:"start"`
	End          string `json:"end"`
	AssigneeID   string `json:"assignee_id"`
	AssigneeName string `json:"assignee_name"`
}

// Task represents the API task model (partial).
type Task struct {
	ID          string  `json:"id"`
	AccountID   string  `json:"account_id"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	Deadline    *string `json:"deadline,omitempty"`
	AssigneeID  string  `json:"assignee_id"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// Submission represents a recorded task delivery.
type Submission struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Type        string `json:"type"`
	FileID      string `json:"file_id"`
	SubmittedBy string `json:"submitted_by"`
	SubmittedAt string `json:"submitted_at"`
}

// SubmitResult is the outcome of a submission attempt.
type SubmitResult struct {
	Task             Task       `json:"task"`
	Submission       Submission `json:"submission"`
	AlreadyCompleted bool       `json:"already_completed"`
}

// MonthlyRecord holds one user's counters for a month.
type MonthlyRecord struct {
	ID                    string `json:"id"`
	UserID                string `json:"user_id"`
	Month                 string `json:"month"`
	InspectionsProgrammed int    `json:"inspections_programmed"`
	InspectionsCompleted  int    `json:"inspections_completed"`
	TrainingProgrammed    int    `json:"training_programmed"`
	TrainingCompleted     int    `json:"training_completed"`
}

// FileRef references an uploaded file.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// MonthEvents returns the caller's visible events for a calendar month.
// Month is 1-based.
func (c *Client) MonthEvents(ctx context.Context, year, month int) ([]Event, error) {
	var resp []Event
	endpoint := fmt.Sprintf("v1/events?year=%d&month=%d", year, month)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// CreateEvent creates a calendar event (admin only).
func (c *Client) CreateEvent(ctx context.Context, title, category, start, end, assigneeID string) (Event, error) {
	body := map[string]any{
		"title":       title,
		"category":    category,
		"start":       start,
		"end":         end,
		"assignee_id": assigneeID,
	}
	var resp Event
	err := c.do(ctx, http.MethodPost, "v1/events", body, &resp)
	return resp, err
}

// CreateTask assigns a task to a user (admin only).
func (c *Client) CreateTask(ctx context.Context, title, assigneeID string) (Task, error) {
	body := map[string]any{
		"title":       title,
		"assignee_id": assigneeID,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "v1/tasks", body, &resp)
	return resp, err
}

// Tasks lists tasks visible to the caller.
func (c *Client) Tasks(ctx context.Context, status string) ([]Task, error) {
	endpoint := "v1/tasks"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RegisterFile records an uploaded file reference.
func (c *Client) RegisterFile(ctx context.Context, name string, size int64) (FileRef, error) {
	body := map[string]any{"name": name, "size": size}
	var resp FileRef
	err := c.do(ctx, http.MethodPost, "v1/files", body, &resp)
	return resp, err
}

// SubmitTask delivers a file for a task and completes it. Safe to retry.
func (c *Client) SubmitTask(ctx context.Context, taskID, fileID string) (SubmitResult, error) {
	body := map[string]any{"file_id": fileID}
	var resp SubmitResult
	endpoint := fmt.Sprintf("v1/tasks/%s/submit", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// MonthlyRecords lists monthly counter records visible to the caller.
func (c *Client) MonthlyRecords(ctx context.Context, userID string) ([]MonthlyRecord, error) {
	endpoint := "v1/monthly-records"
	if userID != "" {
		endpoint += "?user_id=" + url.QueryEscape(userID)
	}
	var resp []MonthlyRecord
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpsertMonthlyRecord writes a user's counters for a month (admin only).
func (c *Client) UpsertMonthlyRecord(ctx context.Context, rec MonthlyRecord) (MonthlyRecord, error) {
	var resp MonthlyRecord
	err := c.do(ctx, http.MethodPut, "v1/monthly-records", rec, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
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
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
