package tasks

import (
	"time"
)

// TaskID identifies one backend analysis job. Assigned by the backend on
// submission; the client never generates one.
type TaskID string

// Status enum, as reported by the backend.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result is the report payload of a completed task. At most one field is
// set: InlineHTML carries the report body itself, RemoteURL points at a
// rendered report served separately.
type Result struct {
	InlineHTML string `json:"inline_html,omitempty"`
	RemoteURL  string `json:"remote_url,omitempty"`
}

// Empty reports whether the task produced no payload at all.
func (r Result) Empty() bool { return r.InlineHTML == "" && r.RemoteURL == "" }

// Aggregate Root: AnalysisTask.
// Invariant: once Status is terminal, exactly one of Result / ErrorDetail is
// set, never both.
type AnalysisTask struct {
	ID          TaskID    `json:"id"`
	Prompt      string    `json:"prompt,omitempty"`
	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Result      Result    `json:"result,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
