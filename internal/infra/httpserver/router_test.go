package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/reportchat/reportchat/internal/application"
	appchat "github.com/reportchat/reportchat/internal/application/chat"
	apptasks "github.com/reportchat/reportchat/internal/application/tasks"
	domchat "github.com/reportchat/reportchat/internal/domain/chat"
	domtasks "github.com/reportchat/reportchat/internal/domain/tasks"
	"github.com/reportchat/reportchat/internal/infra/taskstore"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, req domtasks.RunRequest) (domtasks.RunResult, error) {
	return domtasks.RunResult{HTMLPath: "out.html"}, nil
}

type noopArtifacts struct{}

func (noopArtifacts) Upload(ctx context.Context, localPath, key string) (string, error) {
	return "/outputs/" + key, nil
}

func (noopArtifacts) UploadAndCleanup(ctx context.Context, localPath, key string) (string, error) {
	return "/outputs/" + key, nil
}

type stubStreamer struct {
	deltas []string
	err    error // returned after deltas are emitted
}

func (s stubStreamer) Stream(ctx context.Context, req domchat.CompletionRequest, emit func(string) error) error {
	for _, d := range s.deltas {
		if err := emit(d); err != nil {
			return err
		}
	}
	return s.err
}

func newTestRouter(t *testing.T, repo domtasks.Repository, streamer domchat.CompletionStreamer) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tasksSvc := &apptasks.Service{
		Repo:      repo,
		Runner:    noopRunner{},
		Artifacts: noopArtifacts{},
		Clock:     application.SystemClock{},
		Logger:    logger,
	}
	if streamer == nil {
		streamer = stubStreamer{}
	}
	return NewRouter(tasksSvc, appchat.NewService(streamer), t.TempDir(), logger)
}

func TestStartAnalysisAccepted(t *testing.T) {
	h := newTestRouter(t, taskstore.NewMemory(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/start-analysis",
		strings.NewReader(`{"prompt":"summarize the document"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		TaskID  string `json:"task_id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.TaskID == "" || body.Message != "Analysis started." {
		t.Errorf("body = %+v", body)
	}
}

func TestStartAnalysisRejectsBadBody(t *testing.T) {
	h := newTestRouter(t, taskstore.NewMemory(), nil)

	for _, payload := range []string{`{}`, `{"prompt":"   "}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/start-analysis", strings.NewReader(payload))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("payload %q: status = %d", payload, w.Code)
		}
	}
}

func TestStatusUnknownTask(t *testing.T) {
	h := newTestRouter(t, taskstore.NewMemory(), nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/analysis-status/3f2b8c1d-1234-4abc-8def-000000000001", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error != "Task not found" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestStatusRejectsMalformedID(t *testing.T) {
	h := newTestRouter(t, taskstore.NewMemory(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/analysis-status/not-a-uuid", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestStatusCompletedPrefersInlineContent(t *testing.T) {
	repo := taskstore.NewMemory()
	id := domtasks.TaskID("3f2b8c1d-1234-4abc-8def-000000000002")
	repo.Save(context.Background(), &domtasks.AnalysisTask{
		ID:      id,
		Status:  domtasks.StatusCompleted,
		Message: "Analysis completed successfully.",
		Result: domtasks.Result{
			InlineHTML: "<html>inline</html>",
			RemoteURL:  "/outputs/should-not-appear.html",
		},
	})
	h := newTestRouter(t, repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/analysis-status/"+string(id), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["html_content"] != "<html>inline</html>" {
		t.Errorf("html_content = %v", body["html_content"])
	}
	if _, ok := body["html_url"]; ok {
		t.Error("html_url should be omitted when inline content is present")
	}
}

func TestStatusFailedCarriesErrorDetails(t *testing.T) {
	repo := taskstore.NewMemory()
	id := domtasks.TaskID("3f2b8c1d-1234-4abc-8def-000000000003")
	repo.Save(context.Background(), &domtasks.AnalysisTask{
		ID:          id,
		Status:      domtasks.StatusFailed,
		Message:     "Analysis failed: script exited 1",
		ErrorDetail: "script exited 1",
	})
	h := newTestRouter(t, repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/analysis-status/"+string(id), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "failed" || body["error_details"] != "script exited 1" {
		t.Errorf("body = %v", body)
	}
}

func chatRequest(t *testing.T, h http.Handler, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestChatStreamsNDJSON(t *testing.T) {
	h := newTestRouter(t, taskstore.NewMemory(), stubStreamer{deltas: []string{"The ", "report ", "says..."}})

	w := chatRequest(t, h, `{"messages":[{"role":"user","content":"summarize"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var deltas []string
	var done bool
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		var chunk struct {
			Delta string `json:"delta"`
			Done  bool   `json:"done"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(sc.Bytes(), &chunk); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		if chunk.Error != "" {
			t.Fatalf("unexpected error chunk: %q", chunk.Error)
		}
		if chunk.Done {
			done = true
			break
		}
		deltas = append(deltas, chunk.Delta)
	}
	if !done {
		t.Fatal("no terminal chunk")
	}
	if got := strings.Join(deltas, ""); got != "The report says..." {
		t.Errorf("assembled reply = %q", got)
	}
}

func TestChatMidStreamErrorEmitsTerminalChunk(t *testing.T) {
	h := newTestRouter(t, taskstore.NewMemory(),
		stubStreamer{deltas: []string{"partial "}, err: errors.New("provider connection reset")})

	w := chatRequest(t, h, `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	last := lines[len(lines)-1]
	var chunk struct {
		Done  bool   `json:"done"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(last), &chunk); err != nil {
		t.Fatal(err)
	}
	if !chunk.Done || !strings.Contains(chunk.Error, "provider connection reset") {
		t.Errorf("terminal chunk = %+v", chunk)
	}
}

func TestChatQuotaErrorBeforeStream(t *testing.T) {
	h := newTestRouter(t, taskstore.NewMemory(), stubStreamer{err: domchat.ErrQuotaExceeded})

	w := chatRequest(t, h, `{"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d", w.Code)
	}
}

func TestChatRejectsEmptyMessages(t *testing.T) {
	h := newTestRouter(t, taskstore.NewMemory(), nil)
	if w := chatRequest(t, h, `{"messages":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty messages: status = %d", w.Code)
	}
	if w := chatRequest(t, h, `{"model":"bad model name!","messages":[{"role":"user","content":"x"}]}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad model: status = %d", w.Code)
	}
}

func TestOutputsServesFiles(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	writeFile(t, dir+"/r.html", "<html>report</html>")

	tasksSvc := &apptasks.Service{
		Repo:      taskstore.NewMemory(),
		Runner:    noopRunner{},
		Artifacts: noopArtifacts{},
		Clock:     application.SystemClock{},
		Logger:    logger,
	}
	h := NewRouter(tasksSvc, appchat.NewService(stubStreamer{}), dir, logger)

	req := httptest.NewRequest(http.MethodGet, "/outputs/r.html", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "report") {
		t.Errorf("status = %d, body = %q", w.Code, w.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestRouter(t, taskstore.NewMemory(), nil)

	for _, path := range []string{"/health", "/livez", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, w.Code)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
