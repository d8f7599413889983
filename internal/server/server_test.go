package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"safetydesk/internal/config"
	"safetydesk/internal/db"
	"safetydesk/internal/domain"
	"safetydesk/internal/engine"
	"safetydesk/internal/migrate"
)

type testServer struct {
	URL      string
	Engine   engine.Engine
	Admin    domain.User
	Employee domain.User
	client   *http.Client
	close    func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("acct-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if _, err := e.InitAccount(ctx, "acct-1", "Test Co", "setup"); err != nil {
		t.Fatalf("init account: %v", err)
	}
	if err := e.Repo.UpsertAccountConfig(ctx, "acct-1", cfg); err != nil {
		t.Fatalf("seed account config: %v", err)
	}
	admin, err := e.CreateUser(ctx, engine.UserCreateOptions{
		AccountID: "acct-1", FullName: "Ada Admin", Email: "ada@test.co", Role: domain.RoleAdmin, ActorID: "setup",
	})
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	emp, err := e.CreateUser(ctx, engine.UserCreateOptions{
		AccountID: "acct-1", FullName: "Evan Employee", Email: "evan@test.co", Role: domain.RoleEmployee, ActorID: "setup",
	})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowDevUserHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:      "http://" + ln.Addr().String(),
		Engine:   e,
		Admin:    admin,
		Employee: emp,
		client:   &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
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
	for k, v := range headers {
		req.Header.Set(k, v)
	}
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

func asAdmin(s *testServer) map[string]string {
	return map[string]string{"X-User-Id": s.Admin.ID}
}

func asEmployee(s *testServer) map[string]string {
	return map[string]string{"X-User-Id": s.Employee.ID}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestEventLifecycleAndVisibility(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/events", map[string]any{
		"title":       "Warehouse inspection",
		"category":    "Inspection",
		"start":       "2025-11-10T09:00:00Z",
		"end":         "2025-11-10T11:00:00Z",
		"assignee_id": srv.Employee.ID,
	}, asAdmin(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create event: %d %s", res.StatusCode, string(data))
	}
	var created EventResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if created.AssigneeName != "Evan Employee" {
		t.Fatalf("assignee name = %q", created.AssigneeName)
	}

	// employees cannot create events
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/events", map[string]any{
		"title":    "Not allowed",
		"category": "Audit",
		"start":    "2025-11-11T09:00:00Z",
		"end":      "2025-11-11T10:00:00Z",
	}, asEmployee(srv))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for employee create, got %d %s", res.StatusCode, string(data))
	}

	// the employee sees their own assignment in the month listing
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?year=2025&month=11", nil, asEmployee(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list events: %d %s", res.StatusCode, string(data))
	}
	var listed []EventResponse
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != created.ID {
		t.Fatalf("unexpected listing: %s", string(data))
	}

	// a listing outside the month is empty
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?year=2025&month=12", nil, asAdmin(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list december: %d %s", res.StatusCode, string(data))
	}
	var december []EventResponse
	_ = json.Unmarshal(data, &december)
	if len(december) != 0 {
		t.Fatalf("december should be empty: %s", string(data))
	}
}

func TestEventInvalidWindowReturns422(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/events", map[string]any{
		"title":       "Backwards",
		"category":    "Inspection",
		"start":       "2025-11-10T11:00:00Z",
		"end":         "2025-11-10T09:00:00Z",
		"assignee_id": srv.Employee.ID,
	}, asAdmin(srv))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("error code = %q", envelope.Error.Code)
	}
}

func TestTaskSubmitFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":       "File the safety report",
		"assignee_id": srv.Employee.ID,
	}, asAdmin(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/files", map[string]any{
		"name": "report.pdf",
		"size": 2048,
	}, asEmployee(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register file: %d %s", res.StatusCode, string(data))
	}
	var file FileResponse
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("unmarshal file: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/submit", map[string]any{
		"file_id": file.ID,
	}, asEmployee(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}
	var result SubmitResultResponse
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal submit result: %v", err)
	}
	if result.Task.Status != domain.TaskCompleted || result.AlreadyCompleted {
		t.Fatalf("unexpected submit result: %s", string(data))
	}

	// repeat submit is a no-op success
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/submit", map[string]any{
		"file_id": file.ID,
	}, asEmployee(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("repeat submit: %d %s", res.StatusCode, string(data))
	}
	var repeat SubmitResultResponse
	if err := json.Unmarshal(data, &repeat); err != nil {
		t.Fatalf("unmarshal repeat result: %v", err)
	}
	if !repeat.AlreadyCompleted || repeat.Submission.ID != result.Submission.ID {
		t.Fatalf("repeat submit not idempotent: %s", string(data))
	}

	// counters reflect the completion, admin only
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/counters", nil, asAdmin(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("counters: %d %s", res.StatusCode, string(data))
	}
	var counts map[string]int
	_ = json.Unmarshal(data, &counts)
	if counts[domain.TaskCompleted] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/counters", nil, asEmployee(srv))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 counters for employee, got %d", res.StatusCode)
	}
}

func TestAdminCompletesTaskOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":       "Close out the audit",
		"deadline":    "2025-01-15",
		"assignee_id": srv.Employee.ID,
	}, asAdmin(srv))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if task.Deadline == nil || *task.Deadline != "2025-01-15T00:00:00Z" {
		t.Fatalf("bare-date deadline not normalized: %v", task.Deadline)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tasks/"+task.ID, map[string]any{
		"status": domain.TaskCompleted,
	}, asAdmin(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete by update: %d %s", res.StatusCode, string(data))
	}
	var updated TaskResponse
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("unmarshal updated task: %v", err)
	}
	if updated.Status != domain.TaskCompleted || updated.CompletedAt == nil {
		t.Fatalf("task not completed: %s", string(data))
	}

	// completion is terminal
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tasks/"+task.ID, map[string]any{
		"status": domain.TaskPending,
	}, asAdmin(srv))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 reopening, got %d %s", res.StatusCode, string(data))
	}
}

func TestMonthlyRecordsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v1/monthly-records", map[string]any{
		"user_id":                srv.Employee.ID,
		"month":                  "2025-11",
		"inspections_programmed": 3,
		"inspections_completed":  7,
		"training_programmed":    1,
		"training_completed":     1,
	}, asAdmin(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("upsert: %d %s", res.StatusCode, string(data))
	}
	var rec MonthlyRecordResponse
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if rec.InspectionsCompleted != 3 {
		t.Fatalf("completed not clamped: %d", rec.InspectionsCompleted)
	}

	// counters are optional; a partial body is schema-valid and still
	// role-checked
	res, _ = doJSON(t, client, http.MethodPut, srv.URL+"/v1/monthly-records", map[string]any{
		"user_id": srv.Employee.ID,
		"month":   "2025-11",
	}, asEmployee(srv))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for employee upsert, got %d", res.StatusCode)
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/monthly-records", map[string]any{
		"user_id": srv.Employee.ID,
		"month":   "2025-12",
	}, asAdmin(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("partial upsert: %d %s", res.StatusCode, string(data))
	}
	var partial MonthlyRecordResponse
	if err := json.Unmarshal(data, &partial); err != nil {
		t.Fatalf("unmarshal partial record: %v", err)
	}
	if partial.InspectionsProgrammed != 0 || partial.TrainingCompleted != 0 {
		t.Fatalf("omitted counters not zeroed: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/monthly-records", nil, asEmployee(srv))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var list []MonthlyRecordResponse
	_ = json.Unmarshal(data, &list)
	if len(list) != 2 {
		t.Fatalf("unexpected listing: %s", string(data))
	}
	for _, rec := range list {
		if rec.UserID != srv.Employee.ID {
			t.Fatalf("listing leaked another user's record: %s", string(data))
		}
	}
}

func TestDevLoginAndMe(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"email": "ada@test.co",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("empty token")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	if err := json.Unmarshal(data, &who); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if who.UserID != srv.Admin.ID || who.Role != domain.RoleAdmin || who.Source != "jwt" {
		t.Fatalf("unexpected principal: %s", string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()

	_, raw, err := srv.Engine.CreateAPIKey(context.Background(), srv.Employee.ID, "ci")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": raw,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key: %d %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(data, &who)
	if who.UserID != srv.Employee.ID || who.Source != "api_key" {
		t.Fatalf("unexpected principal: %s", string(data))
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": "sd_not-a-key",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", res.StatusCode)
	}
}
