package fieldlinesdk

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

// Client is a minimal Fieldline HTTP API client.
type Client struct {
	BaseURL    string
	ProjectID  string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Anchors are the four milestone dates.
type Anchors struct {
	KODate         string `json:"ko_date"`
	FieldworkStart string `json:"fieldwork_start"`
	FieldworkEnd   string `json:"fieldwork_end"`
	ReportDue      string `json:"report_due"`
}

// Segment is one phase of the derived timeline.
type Segment struct {
	Phase     string `json:"phase"`
	Position  int    `json:"position"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Timeline is the anchors plus the five phase segments.
type Timeline struct {
	ProjectID string    `json:"project_id"`
	Anchors   *Anchors  `json:"anchors,omitempty"`
	Segments  []Segment `json:"segments"`
}

// Task represents the API task model.
type Task struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Description string   `json:"description"`
	Phase       string   `json:"phase,omitempty"`
	Role        string   `json:"role,omitempty"`
	DateRule    string   `json:"date_rule,omitempty"`
	DueDate     *string  `json:"due_date"`
	IsOngoing   bool     `json:"is_ongoing"`
	AssignedTo  []string `json:"assigned_to"`
	Status      string   `json:"status"`
}

// Member is a roster entry.
type Member struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"project_id"`
	Name      string   `json:"name"`
	Roles     []string `json:"roles"`
}

// KeyDate is a calendar milestone.
type KeyDate struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Label     string `json:"label"`
	Date      string `json:"date"`
}

// DueDate is one preview result.
type DueDate struct {
	TaskID  string  `json:"task_id"`
	DueDate *string `json:"due_date"`
	Error   string  `json:"error,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Status is the project scoreboard.
type Status struct {
	ProjectID    string         `json:"project_id"`
	Status       string         `json:"status"`
	CurrentPhase string         `json:"current_phase,omitempty"`
	PhaseState   string         `json:"phase_state,omitempty"`
	TaskCounts   map[string]int `json:"task_counts"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SetAnchors pins the four milestones and returns the rebuilt timeline.
func (c *Client) SetAnchors(ctx context.Context, a Anchors) (Timeline, error) {
	var resp Timeline
	err := c.do(ctx, http.MethodPut, c.projectPath("anchors"), a, &resp)
	return resp, err
}

// Timeline returns the stored anchors and segments.
func (c *Client) Timeline(ctx context.Context) (Timeline, error) {
	var resp Timeline
	err := c.do(ctx, http.MethodGet, c.projectPath("timeline"), nil, &resp)
	return resp, err
}

// ShiftBoundary moves one edge of one phase.
func (c *Client) ShiftBoundary(ctx context.Context, phase, edge, date string) (Timeline, error) {
	body := map[string]any{"edge": edge, "date": date}
	var resp Timeline
	endpoint := c.projectPath(fmt.Sprintf("timeline/%s", url.PathEscape(phase)))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// CreateTask creates a task; dateRule and role may be empty.
func (c *Client) CreateTask(ctx context.Context, description, phase, role, dateRule string) (Task, error) {
	body := map[string]any{"description": description}
	if phase != "" {
		body["phase"] = phase
	}
	if role != "" {
		body["role"] = role
	}
	if dateRule != "" {
		body["date_rule"] = dateRule
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.projectPath("tasks"), body, &resp)
	return resp, err
}

// Tasks lists the project's tasks.
func (c *Client) Tasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, c.projectPath("tasks"), nil, &resp)
	return resp, err
}

// PreviewDueDates resolves rules without persisting anything.
func (c *Client) PreviewDueDates(ctx context.Context, rules map[string]string) ([]DueDate, error) {
	tasks := make([]map[string]any, 0, len(rules))
	for id, rule := range rules {
		tasks = append(tasks, map[string]any{"id": id, "date_rule": rule})
	}
	body := map[string]any{"tasks": tasks}
	var resp []DueDate
	err := c.do(ctx, http.MethodPost, c.projectPath("due-dates"), body, &resp)
	return resp, err
}

// AddMember adds a roster entry with the given roles.
func (c *Client) AddMember(ctx context.Context, name string, roles []string) (Member, error) {
	body := map[string]any{"name": name, "roles": roles}
	var resp Member
	err := c.do(ctx, http.MethodPost, c.projectPath("members"), body, &resp)
	return resp, err
}

// ChangeRole grants or revokes one role on one member.
func (c *Client) ChangeRole(ctx context.Context, memberID, role string, added bool) (Member, error) {
	body := map[string]any{"role": role, "added": added}
	var resp Member
	endpoint := fmt.Sprintf("v0/members/%s/roles", url.PathEscape(memberID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AddKeyDate records a calendar milestone.
func (c *Client) AddKeyDate(ctx context.Context, label, date string) (KeyDate, error) {
	body := map[string]any{"label": label, "date": date}
	var resp KeyDate
	err := c.do(ctx, http.MethodPost, c.projectPath("key-dates"), body, &resp)
	return resp, err
}

// Status returns the project scoreboard.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, c.projectPath("status"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.projectPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
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
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
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

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
