package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func tagsJSON(names ...string) []byte {
	var r tagsResponse
	for _, n := range names {
		r.Models = append(r.Models, struct {
			Name string `json:"name"`
		}{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func replyJSON(content string) []byte {
	b, _ := json.Marshal(chatChunk{Message: Message{Role: RoleAssistant, Content: content}, Done: true})
	return b
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3.1:latest"))
	}))
	c := New(srv.URL + "/")
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}

	srv.Close()
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning() = true after close, want false")
	}
}

func TestListModelsAndHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write(tagsJSON("llama3.1:latest", "qwen2.5:7b"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0] != "llama3.1:latest" {
		t.Errorf("models = %v", models)
	}

	tests := []struct {
		name string
		want bool
	}{
		{"llama3.1", true},
		{"llama3.1:latest", true},
		{"qwen2.5:7b", true},
		{"qwen2.5", true},
		{"llama3", false},
		{"mistral", false},
	}
	for _, tt := range tests {
		if got := c.HasModel(context.Background(), tt.name); got != tt.want {
			t.Errorf("HasModel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestChat_PlainText(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write(replyJSON("Sounds like a great role."))
	}))
	defer srv.Close()

	c := New(srv.URL)
	out, err := c.Chat(context.Background(), "llama3.1", []Message{{Role: RoleUser, Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "Sounds like a great role." {
		t.Errorf("reply = %q", out)
	}
	if got.Stream {
		t.Error("Chat should not request streaming")
	}
	if got.Format != nil {
		t.Errorf("format = %v, want omitted", got.Format)
	}
}

func TestChat_Schema(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Write(replyJSON(`{"score":82}`))
	}))
	defer srv.Close()

	schema := &Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"score":    {Type: "integer"},
			"keywords": {Type: "array", Items: &SchemaProperty{Type: "string"}},
		},
		Required: []string{"score"},
	}
	if _, err := New(srv.URL).Chat(context.Background(), "m", nil, schema); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	format, ok := raw["format"].(map[string]any)
	if !ok {
		t.Fatalf("format = %T, want object", raw["format"])
	}
	props := format["properties"].(map[string]any)
	kw := props["keywords"].(map[string]any)
	if items := kw["items"].(map[string]any); items["type"] != "string" {
		t.Errorf("keywords.items = %v", items)
	}
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not found", http.StatusNotFound)
			},
			wantErr: "404",
		},
		{
			name: "empty",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write(replyJSON("   "))
			},
			wantErr: ErrEmptyResponse.Error(),
		},
		{
			name: "server error field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error":"out of memory"}`))
			},
			wantErr: "out of memory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := New(srv.URL).Chat(context.Background(), "m", nil, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("ChatStream should request streaming")
		}
		enc := json.NewEncoder(w)
		for _, part := range []string{"Moving ", "Acme ", "to Offer."} {
			enc.Encode(chatChunk{Message: Message{Role: RoleAssistant, Content: part}})
		}
		enc.Encode(chatChunk{Done: true})
	}))
	defer srv.Close()

	var chunks []string
	full, err := New(srv.URL).ChatStream(context.Background(), "m", nil, func(s string) {
		chunks = append(chunks, s)
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if full != "Moving Acme to Offer." {
		t.Errorf("full = %q", full)
	}
	if len(chunks) != 3 {
		t.Errorf("got %d chunks, want 3", len(chunks))
	}
}

func TestChatStream_MidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{\"message\":{\"role\":\"assistant\",\"content\":\"partial\"}}\n{\"error\":\"context canceled\"}\n"))
	}))
	defer srv.Close()

	partial, err := New(srv.URL).ChatStream(context.Background(), "m", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if partial != "partial" {
		t.Errorf("partial = %q, want text received before the error", partial)
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || req.Messages[0].Role != RoleUser {
			t.Errorf("messages = %+v", req.Messages)
		}
		w.Write(replyJSON("Dear hiring manager"))
	}))
	defer srv.Close()

	out, err := New(srv.URL).Generate(context.Background(), "m", "write a letter")
	if err != nil || out != "Dear hiring manager" {
		t.Errorf("Generate = %q, %v", out, err)
	}
}

func TestPullModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "llama3.1" {
			t.Errorf("pull name = %v", body["name"])
		}
		enc := json.NewEncoder(w)
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 500})
		enc.Encode(PullProgress{Status: "downloading", Total: 1000, Completed: 1000})
		enc.Encode(PullProgress{Status: "success"})
	}))
	defer srv.Close()

	var n int
	if err := New(srv.URL).PullModel(context.Background(), "llama3.1", func(PullProgress) { n++ }); err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if n != 3 {
		t.Errorf("progress callbacks = %d, want 3", n)
	}
}

func TestPullModel_ErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"pull model manifest: file does not exist"}` + "\n"))
	}))
	defer srv.Close()

	err := New(srv.URL).PullModel(context.Background(), "nope", nil)
	if err == nil || !strings.Contains(err.Error(), "manifest") {
		t.Errorf("err = %v", err)
	}
}

func TestEnsureReady_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	err := EnsureReady(context.Background(), New(srv.URL), io.Discard, "llama3.1")
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("err = %v, want ErrNotRunning", err)
	}
}

func TestEnsureReady_PullsMissingOnce(t *testing.T) {
	var pulls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write(tagsJSON("llama3.1:latest"))
		case "/api/pull":
			pulls.Add(1)
			json.NewEncoder(w).Encode(PullProgress{Status: "success"})
		case "/api/chat":
			w.Write(replyJSON("pong"))
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := EnsureReady(context.Background(), New(srv.URL), &out, "llama3.1", "qwen2.5", "qwen2.5")
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if pulls.Load() != 1 {
		t.Errorf("pulls = %d, want 1", pulls.Load())
	}
	if !strings.Contains(out.String(), "model llama3.1: warm") {
		t.Errorf("output missing warm-up line:\n%s", out.String())
	}
}
