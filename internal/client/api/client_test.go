package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domchat "github.com/reportchat/reportchat/internal/domain/chat"
	domtasks "github.com/reportchat/reportchat/internal/domain/tasks"
)

func TestStartAnalysisSendsPromptAndReturnsID(t *testing.T) {
	var gotPath, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotPrompt = body["prompt"]
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"task_id": "abc123", "message": "Analysis started."})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	id, err := c.StartAnalysis(context.Background(), "总结文档")
	if err != nil {
		t.Fatalf("StartAnalysis: %v", err)
	}
	if id != "abc123" {
		t.Errorf("id = %q", id)
	}
	if gotPath != "/api/start-analysis" || gotPrompt != "总结文档" {
		t.Errorf("request = %s %q", gotPath, gotPrompt)
	}
}

func TestStartAnalysisServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "pipeline unavailable"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.StartAnalysis(context.Background(), "prompt")
	var terr *domtasks.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if terr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", terr.StatusCode)
	}
	if !strings.Contains(terr.Error(), "pipeline unavailable") {
		t.Errorf("Error() = %q", terr.Error())
	}
}

func TestTaskStatusMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Task not found"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.TaskStatus(context.Background(), "abc123")
	if !errors.Is(err, domtasks.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
	if !strings.Contains(err.Error(), "abc123") {
		t.Errorf("err should name the task id: %v", err)
	}
}

func TestTaskStatusDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analysis-status/abc123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(TaskStatus{
			TaskID:  "abc123",
			Status:  "completed",
			Message: "Analysis completed successfully.",
			HTMLURL: "/outputs/abc123_visualization.html",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	st, err := c.TaskStatus(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("TaskStatus: %v", err)
	}
	if st.Status != "completed" || st.HTMLURL != "/outputs/abc123_visualization.html" {
		t.Errorf("status = %+v", st)
	}
}

func TestResolveURL(t *testing.T) {
	c := New("http://backend:5001/", time.Second)

	cases := []struct{ in, want string }{
		{"", ""},
		{"/outputs/r.html", "http://backend:5001/outputs/r.html"},
		{"outputs/r.html", "http://backend:5001/outputs/r.html"},
		{"https://cdn.example.com/r.html", "https://cdn.example.com/r.html"},
	}
	for _, tc := range cases {
		if got := c.ResolveURL(tc.in); got != tc.want {
			t.Errorf("ResolveURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStreamChatTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model    string                  `json:"model"`
			Messages []domchat.PromptMessage `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) != 2 || body.Messages[0].Role != domchat.RoleSystem {
			t.Errorf("messages = %+v", body.Messages)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"delta":"Hello","done":false}` + "\n"))
		w.Write([]byte(`{"delta":" world","done":false}` + "\n"))
		w.Write([]byte(`{"done":true}` + "\n"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	tokens, err := c.StreamChat(context.Background(), "gpt-4o-mini", []domchat.PromptMessage{
		{Role: domchat.RoleSystem, Content: "report context"},
		{Role: domchat.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	var reply strings.Builder
	for tok := range tokens {
		if tok.Err != nil {
			t.Fatalf("token error: %v", tok.Err)
		}
		reply.WriteString(tok.Delta)
		if tok.Done {
			break
		}
	}
	if reply.String() != "Hello world" {
		t.Errorf("reply = %q", reply.String())
	}
}

func TestStreamChatErrorLine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"delta":"partial","done":false}` + "\n"))
		w.Write([]byte(`{"done":true,"error":"provider connection reset"}` + "\n"))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	tokens, err := c.StreamChat(context.Background(), "", []domchat.PromptMessage{{Role: "user", Content: "x"}})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}

	var sawDelta bool
	var streamErr error
	for tok := range tokens {
		if tok.Delta == "partial" {
			sawDelta = true
		}
		if tok.Err != nil {
			streamErr = tok.Err
		}
	}
	if !sawDelta {
		t.Error("delta before the error was dropped")
	}
	if streamErr == nil || streamErr.Error() != "provider connection reset" {
		t.Errorf("stream error = %v", streamErr)
	}
}

func TestStreamChatNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "chat quota exceeded"})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.StreamChat(context.Background(), "", []domchat.PromptMessage{{Role: "user", Content: "x"}})
	var terr *domtasks.TransportError
	if !errors.As(err, &terr) || terr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("err = %v", err)
	}
}
