package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appchat "github.com/reportchat/reportchat/internal/application/chat"
	apptasks "github.com/reportchat/reportchat/internal/application/tasks"
	domchat "github.com/reportchat/reportchat/internal/domain/chat"
	domtasks "github.com/reportchat/reportchat/internal/domain/tasks"
	"github.com/reportchat/reportchat/internal/middleware"
)

type Router struct {
	tasksSvc *apptasks.Service
	chatSvc  *appchat.Service
	logger   *slog.Logger
}

// NewRouter wires the backend API: analysis submission and polling, report
// serving, and the chat proxy that keeps the completion API key server-side.
func NewRouter(tasksSvc *apptasks.Service, chatSvc *appchat.Service, outputDir string, logger *slog.Logger) http.Handler {
	r := &Router{tasksSvc: tasksSvc, chatSvc: chatSvc, logger: logger}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	mux.Use(middleware.LoggingMiddleware(logger))
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(60, 10))

	mux.Get("/health", middleware.HealthHandler(map[string]middleware.HealthChecker{
		"output_dir": middleware.DirChecker{Dir: outputDir},
	}))
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Post("/api/start-analysis", r.wrap(r.handleStartAnalysis))
	mux.Post("/api/start-dummy-analysis", r.wrap(r.handleStartDummy))
	mux.Get("/api/analysis-status/{taskID}", r.wrap(r.handleStatus))
	mux.Post("/api/chat", r.wrap(r.handleChat))

	fileServer := http.StripPrefix("/outputs/", http.FileServer(http.Dir(outputDir)))
	mux.Get("/outputs/*", fileServer.ServeHTTP)

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (rt *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			rt.writeError(w, err)
		}
	}
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	var verr *domtasks.ValidationError
	switch {
	case errors.Is(err, domtasks.ErrTaskNotFound):
		status = http.StatusNotFound
		message = "Task not found"
	case errors.As(err, &verr),
		errors.Is(err, domchat.ErrEmptyMessage),
		errors.Is(err, middleware.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domchat.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		rt.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// POST /api/start-analysis
// Body: {"prompt": "..."} → 202 {"task_id": "...", "message": "..."}
func (rt *Router) handleStartAnalysis(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return &domtasks.ValidationError{Reason: "missing 'prompt' in request body"}
	}
	if err := middleware.ValidatePrompt(body.Prompt); err != nil {
		return err
	}

	id, err := rt.tasksSvc.StartAnalysis(req.Context(), body.Prompt)
	if err != nil {
		return err
	}
	middleware.IncrementTasks()

	// Run in the background so the pipeline outlives this request.
	go func() {
		middleware.IncrementTasksRunning()
		defer middleware.DecrementTasksRunning()
		if err := rt.tasksSvc.RunToCompletion(id, body.Prompt); err != nil {
			middleware.IncrementTasksFailed()
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": id,
		"message": "Analysis started.",
	})
	return nil
}

// POST /api/start-dummy-analysis
func (rt *Router) handleStartDummy(w http.ResponseWriter, req *http.Request) error {
	id, err := rt.tasksSvc.StartDummyAnalysis(req.Context())
	if err != nil {
		if id != "" {
			// A failed task was recorded; report it with the id so the
			// client can still poll.
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"task_id": id,
				"error":   err.Error(),
			})
			return nil
		}
		return err
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": id,
		"message": "Dummy analysis created and completed immediately.",
	})
	return nil
}

type statusResponse struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	HTMLURL      string `json:"html_url,omitempty"`
	HTMLContent  string `json:"html_content,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`
}

// GET /api/analysis-status/{taskID}
func (rt *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "taskID")
	if err := middleware.ValidateTaskID(id); err != nil {
		return err
	}

	t, err := rt.tasksSvc.Status(req.Context(), domtasks.TaskID(id))
	if err != nil {
		return err
	}

	resp := statusResponse{
		TaskID:  string(t.ID),
		Status:  string(t.Status),
		Message: t.Message,
	}
	switch t.Status {
	case domtasks.StatusCompleted:
		if t.Result.InlineHTML != "" {
			resp.HTMLContent = t.Result.InlineHTML
		} else if t.Result.RemoteURL != "" {
			resp.HTMLURL = t.Result.RemoteURL
		}
	case domtasks.StatusFailed:
		resp.ErrorDetails = t.ErrorDetail
	}

	writeJSON(w, http.StatusOK, resp)
	return nil
}

type chatChunk struct {
	Delta string `json:"delta,omitempty"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// POST /api/chat
// Body: {"model": "...", "messages": [{"role","content"}...]}
// Response: newline-delimited JSON chunks terminated by {"done": true}.
func (rt *Router) handleChat(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Model    string                  `json:"model"`
		Messages []domchat.PromptMessage `json:"messages"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return &domtasks.ValidationError{Reason: "invalid chat request body"}
	}
	if len(body.Messages) == 0 {
		return &domtasks.ValidationError{Reason: "messages must not be empty"}
	}
	if err := middleware.ValidateModelName(body.Model); err != nil {
		return err
	}
	middleware.IncrementChatStreams()

	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support streaming")
	}

	enc := json.NewEncoder(w)
	started := false
	err := rt.chatSvc.Stream(req.Context(), domchat.CompletionRequest{
		Model:    body.Model,
		Messages: body.Messages,
	}, func(delta string) error {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("Cache-Control", "no-cache")
			started = true
		}
		if err := enc.Encode(chatChunk{Delta: delta}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		if !started {
			// Nothing sent yet, a plain error status is still possible.
			return err
		}
		// Mid-stream failure: the status line is gone, emit a terminal
		// chunk carrying the error instead.
		_ = enc.Encode(chatChunk{Done: true, Error: err.Error()})
		flusher.Flush()
		return nil
	}

	if !started {
		w.Header().Set("Content-Type", "application/x-ndjson")
	}
	_ = enc.Encode(chatChunk{Done: true})
	flusher.Flush()
	return nil
}
