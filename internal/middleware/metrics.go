package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application counters.
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	TasksTotal         uint64
	TasksRunning       uint64
	TasksFailed        uint64
	ChatStreamsTotal   uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementTasks counts a submitted analysis task.
func IncrementTasks() {
	atomic.AddUint64(&globalMetrics.TasksTotal, 1)
}

// IncrementTasksRunning counts a pipeline run entering execution.
func IncrementTasksRunning() {
	atomic.AddUint64(&globalMetrics.TasksRunning, 1)
}

// DecrementTasksRunning counts a pipeline run leaving execution.
func DecrementTasksRunning() {
	atomic.AddUint64(&globalMetrics.TasksRunning, ^uint64(0))
}

// IncrementTasksFailed counts a task that reached the failed status.
func IncrementTasksFailed() {
	atomic.AddUint64(&globalMetrics.TasksFailed, 1)
}

// IncrementChatStreams counts an opened chat completion stream.
func IncrementChatStreams() {
	atomic.AddUint64(&globalMetrics.ChatStreamsTotal, 1)
}

// GetMetrics returns a snapshot of all counters.
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"tasks_total":          atomic.LoadUint64(&globalMetrics.TasksTotal),
		"tasks_running":        atomic.LoadUint64(&globalMetrics.TasksRunning),
		"tasks_failed":         atomic.LoadUint64(&globalMetrics.TasksFailed),
		"chat_streams_total":   atomic.LoadUint64(&globalMetrics.ChatStreamsTotal),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes": m.Alloc,
			"sys_bytes":   m.Sys,
			"num_gc":      m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request counters.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
		atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
		defer atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
		} else {
			atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
		}
	})
}

// MetricsHandler returns all counters as JSON.
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
