package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"fieldline/internal/config"
	"fieldline/internal/db"
	"fieldline/internal/engine"
	"fieldline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("tracker-w3", "Brand Tracker Wave 3")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2025, 1, 28, 0, 0, 0, 0, time.UTC) }
	if _, err := e.InitProject(context.Background(), cfg.Project.ID, cfg.Project.Name, "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func setTestAnchors(t *testing.T, srv *testServer) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/projects/tracker-w3/anchors", map[string]string{
		"ko_date":         "2025-01-06",
		"fieldwork_start": "2025-01-20",
		"fieldwork_end":   "2025-02-14",
		"report_due":      "2025-03-03",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set anchors: %d %s", res.StatusCode, data)
	}
}

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, data)
	}
}

func TestSetAnchorsReturnsSegments(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/projects/tracker-w3/anchors", map[string]string{
		"ko_date":         "2025-01-06",
		"fieldwork_start": "2025-01-20",
		"fieldwork_end":   "2025-02-14",
		"report_due":      "2025-03-03",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set anchors: %d %s", res.StatusCode, data)
	}
	var body struct {
		Segments []SegmentResponse `json:"segments"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Segments) != 5 {
		t.Fatalf("expected 5 segments, got %d", len(body.Segments))
	}
	if body.Segments[2].Phase != "Fielding" || body.Segments[2].StartDate != "2025-01-20" {
		t.Fatalf("fielding segment wrong: %+v", body.Segments[2])
	}
}

func TestSetAnchorsInconsistentReturns422(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/projects/tracker-w3/anchors", map[string]string{
		"ko_date":         "2025-02-01",
		"fieldwork_start": "2025-01-20",
		"fieldwork_end":   "2025-02-14",
		"report_due":      "2025-03-03",
	})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if envelope.Error.Code != "inconsistent_anchors" {
		t.Fatalf("expected inconsistent_anchors, got %q", envelope.Error.Code)
	}
}

func TestCreateTaskResolvesDueDateOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	setTestAnchors(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/tracker-w3/tasks", map[string]any{
		"description": "Finalize screener",
		"date_rule":   "1 week prior to fieldwork start",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, data)
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.DueDate == nil || *task.DueDate != "2025-01-13" {
		t.Fatalf("expected due 2025-01-13, got %v", task.DueDate)
	}
}

func TestShiftBoundaryOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	setTestAnchors(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/projects/tracker-w3/timeline/Fielding", map[string]string{
		"edge": "end",
		"date": "2025-02-18",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("shift boundary: %d %s", res.StatusCode, data)
	}
	var body TimelineResponse
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var postStart string
	for _, s := range body.Segments {
		if s.Phase == "Post-Field Analysis" {
			postStart = s.StartDate
		}
	}
	if postStart != "2025-02-19" {
		t.Fatalf("post-field start not re-pinned, got %s", postStart)
	}
}

func TestPreviewDueDatesBatch(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	setTestAnchors(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/tracker-w3/due-dates", map[string]any{
		"tasks": []map[string]any{
			{"id": "a", "date_rule": "report due date, final"},
			{"id": "b", "date_rule": "ongoing"},
			{"id": "c", "date_rule": "no idea"},
		},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("preview: %d %s", res.StatusCode, data)
	}
	var out []DueDateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 results, got %d", len(out))
	}
	if out[0].DueDate == nil || *out[0].DueDate != "2025-03-03" {
		t.Fatalf("task a wrong due: %v", out[0].DueDate)
	}
	if out[1].DueDate != nil || out[1].Error != "" {
		t.Fatalf("ongoing should be null without error: %+v", out[1])
	}
	if out[2].DueDate != nil || out[2].Error == "" {
		t.Fatalf("unmatched rule should carry an error: %+v", out[2])
	}
}

func TestMemberRoleFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	setTestAnchors(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/tracker-w3/members", map[string]any{
		"name":  "Ada",
		"roles": []string{"Logistics"},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add member: %d %s", res.StatusCode, data)
	}
	var member MemberResponse
	if err := json.Unmarshal(data, &member); err != nil {
		t.Fatalf("unmarshal member: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/tracker-w3/tasks", map[string]any{
		"description": "Book facility",
		"role":        "Logistics",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, data)
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if len(task.AssignedTo) != 1 || task.AssignedTo[0] != member.ID {
		t.Fatalf("task not assigned to member: %v", task.AssignedTo)
	}

	// Revoke the role and confirm the assignee list empties.
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/members/"+member.ID+"/roles", map[string]any{
		"role":  "Logistics",
		"added": false,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("revoke role: %d %s", res.StatusCode, data)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/"+task.ID, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %s", res.StatusCode, data)
	}
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if len(task.AssignedTo) != 0 {
		t.Fatalf("expected empty assignees after revoke, got %v", task.AssignedTo)
	}
}

func TestStatusReportsCurrentPhase(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	setTestAnchors(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/tracker-w3/status", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", res.StatusCode, data)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["current_phase"] != "Fielding" {
		t.Fatalf("expected Fielding current phase, got %v", body["current_phase"])
	}
	if body["phase_state"] != "active" {
		t.Fatalf("expected active state, got %v", body["phase_state"])
	}
}

func TestTaskNotFoundReturns404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tasks/missing", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, data)
	}
}
