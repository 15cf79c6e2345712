package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/jobdesk/internal/config"
	"github.com/kalambet/jobdesk/internal/storage"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// use points every command at ts for the rest of the test.
func (ts *testServer) use(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func (ts *testServer) body(t *testing.T, i int) map[string]any {
	t.Helper()
	if len(ts.requests) <= i {
		t.Fatalf("expected at least %d requests, got %d", i+1, len(ts.requests))
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[i].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	return body
}

// run executes the root command with args and returns what it wrote to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	old := noColor
	noColor = true

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		noColor = old
	}()

	err := rootCmd.Execute()
	return out.String(), err
}

var ctx = context.Background()

func TestJobsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /jobs": `[{"id":"7f3c9a10-aaaa-bbbb-cccc-000000000001","company":"Acme","role":"Staff Engineer","status":"Offer","interview_date":""},
			{"id":"j2","company":"Globex","role":"SRE","status":"Interview","interview_date":"2026-10-20T14:00"}]`,
	})
	ts.use(t)

	out, err := run(t, "jobs", "list", "--status", "offer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ts.requests[0].Path != "/jobs?status=offer" {
		t.Errorf("path = %q, want /jobs?status=offer", ts.requests[0].Path)
	}
	for _, want := range []string{"7f3c9a10", "Acme", "Staff Engineer", "Globex", "interview 2026-10-20T14:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "7f3c9a10-aaaa") {
		t.Errorf("expected shortened id in output:\n%s", out)
	}
}

func TestJobsAdd_Offer(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /jobs": `{"id":"j1","company":"Acme","role":"Staff Engineer","status":"Offer","origin":"offer"}`,
	})
	ts.use(t)

	if _, err := run(t, "jobs", "add", "Acme", "Staff Engineer", "--offer", "--salary", "$200k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := ts.body(t, 0)
	if body["company"] != "Acme" || body["role"] != "Staff Engineer" {
		t.Errorf("body = %v, want company and role from args", body)
	}
	if body["origin"] != "offer" || body["status"] != "Offer" {
		t.Errorf("origin/status = %v/%v, want offer/Offer", body["origin"], body["status"])
	}
	if body["salary"] != "$200k" {
		t.Errorf("salary = %v, want $200k", body["salary"])
	}
}

func TestJobsStatus(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /jobs/j1/status": `{"id":"j1","status":"Interview","previous":"Applied"}`,
	})
	ts.use(t)

	if _, err := run(t, "jobs", "status", "j1", "interview"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := ts.body(t, 0); body["status"] != "Interview" {
		t.Errorf("status = %v, want Interview", body["status"])
	}

	_, err := run(t, "jobs", "status", "j1", "ghosted")
	if err == nil || !strings.Contains(err.Error(), "unknown status") {
		t.Errorf("err = %v, want unknown status", err)
	}
	if len(ts.requests) != 1 {
		t.Errorf("invalid status should not reach the server, got %d requests", len(ts.requests))
	}
}

func TestGenerate(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /jobs/j1/artifacts": `{"task_id":"task-123456789","status":"queued"}`,
	})
	ts.use(t)

	if _, err := run(t, "generate", "j1", "cover_letter"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := ts.body(t, 0); body["kind"] != "cover_letter" {
		t.Errorf("kind = %v, want cover_letter", body["kind"])
	}

	_, err := run(t, "generate", "j1", "haiku")
	if err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Errorf("err = %v, want unknown kind", err)
	}
	if len(ts.requests) != 1 {
		t.Errorf("unknown kind should not reach the server, got %d requests", len(ts.requests))
	}
}

func sseServer(t *testing.T, events ...string) *testServer {
	t.Helper()
	ts := &testServer{}
	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)
		ts.requests = append(ts.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body.String()})

		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i+1 < len(events); i += 2 {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", events[i], events[i+1])
		}
	}))
	t.Cleanup(ts.server.Close)
	return ts
}

func TestChat_PrintsGrowingReplyOnce(t *testing.T) {
	ts := sseServer(t,
		"delta", `{"text":"Hel"}`,
		"delta", `{"text":"Hello"}`,
		"delta", `{"text":"Hello there"}`,
		"done", `{"reply":{"role":"model","text":"Hello there"},"applied":1}`,
	)
	ts.use(t)

	out, err := run(t, "chat", "I", "got", "the", "offer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello there\n" {
		t.Errorf("output = %q, want %q", out, "Hello there\n")
	}
	if body := ts.body(t, 0); body["message"] != "I got the offer" {
		t.Errorf("message = %v, want joined args", body["message"])
	}
}

func TestChat_ErrorEvent(t *testing.T) {
	ts := sseServer(t, "error", `{"message":"model offline"}`)
	ts.use(t)

	_, err := run(t, "chat", "hello")
	if err == nil || !strings.Contains(err.Error(), "model offline") {
		t.Errorf("err = %v, want model offline", err)
	}
}

func TestStream_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"error":{"message":"message is empty","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}
	called := false
	err := client.stream(ctx, "/chat", map[string]string{"message": ""}, func(string, []byte) error {
		called = true
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "message is empty") {
		t.Errorf("err = %v, want server message", err)
	}
	if called {
		t.Error("callback should not run for an error response")
	}
}

func TestSettingsSet(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /settings": `{"display_name":"Sam","desktop_alerts":false}`,
	})
	ts.use(t)

	if _, err := run(t, "settings", "set", "desktop_alerts", "off"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := ts.body(t, 0); body["desktop_alerts"] != false {
		t.Errorf("desktop_alerts = %v, want false", body["desktop_alerts"])
	}

	if _, err := run(t, "settings", "set", "desktop_alerts", "maybe"); err == nil {
		t.Error("expected error for an invalid toggle")
	}
	if _, err := run(t, "settings", "set", "theme", "dark"); err == nil {
		t.Error("expected error for an unknown setting")
	}
	if len(ts.requests) != 1 {
		t.Errorf("expected 1 request, got %d", len(ts.requests))
	}
}

func TestResumeImport_Text(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /resume": `{"raw_text":"Go engineer, 8 years"}`,
	})
	ts.use(t)

	path := filepath.Join(t.TempDir(), "resume.txt")
	if err := os.WriteFile(path, []byte("  Go engineer, 8 years\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "resume", "import", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body := ts.body(t, 0); body["raw_text"] != "Go engineer, 8 years" {
		t.Errorf("raw_text = %v, want trimmed file text", body["raw_text"])
	}
}

func TestResumeImport_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.txt")
	if err := os.WriteFile(path, []byte("\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readResumeFile(path); err == nil {
		t.Error("expected error for an empty resume")
	}
}

func TestDataPurge_RequiresConfirm(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /data": `{"status":"purged"}`,
	})
	ts.use(t)

	if _, err := run(t, "data", "purge"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 0 {
		t.Fatalf("purge without --confirm sent %d requests", len(ts.requests))
	}

	if _, err := run(t, "data", "purge", "--confirm"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Method != http.MethodDelete || ts.requests[0].Path != "/data" {
		t.Errorf("requests = %+v, want one DELETE /data", ts.requests)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	err := client.call(ctx, http.MethodGet, "/health", nil, nil)
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	if err := client.call(ctx, http.MethodGet, "/health", nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	var result any
	err := client.call(ctx, http.MethodGet, "/jobs", nil, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "unauthorized") {
		t.Errorf("error = %q, want status and message", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4100
	cfg.Ollama.ChatModel = "llama3.2"

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "server.port" && k.Value == "4100" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4100 in ShowAll output")
	}
}

func TestCountPending(t *testing.T) {
	tasks := []taskRow{
		{Status: storage.TaskStatusPending},
		{Status: storage.TaskStatusRunning},
		{Status: storage.TaskStatusCompleted},
		{Status: storage.TaskStatusFailed},
		{Status: storage.TaskStatusPending},
	}
	if got := countPending(tasks); got != 3 {
		t.Errorf("countPending = %d, want 3", got)
	}
	if got := countPending(nil); got != 0 {
		t.Errorf("countPending(nil) = %d, want 0", got)
	}
}

func TestAgo(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		if got := ago(tt.at, now); got != tt.want {
			t.Errorf("ago(%v) = %q, want %q", now.Sub(tt.at), got, tt.want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	if got := normalizeStatus("accepted"); got != "Accepted" {
		t.Errorf("normalizeStatus(accepted) = %q", got)
	}
	if got := normalizeStatus("ghosted"); got.Valid() {
		t.Errorf("normalizeStatus(ghosted) = %q should be invalid", got)
	}
}
