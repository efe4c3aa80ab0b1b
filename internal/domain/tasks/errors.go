package tasks

import (
	"fmt"
)

// ValidationError marks input rejected locally, before any network or
// pipeline work happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ErrEmptyPrompt rejects empty or whitespace-only prompts.
var ErrEmptyPrompt error = &ValidationError{Reason: "prompt must not be empty"}

// ErrTaskNotFound means the task id is unknown to the backend, typically
// because it expired or the backend restarted.
var ErrTaskNotFound error = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "task not found" }

// TransportError wraps a failed request or a non-success HTTP status.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: backend returned status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// BackendFailure carries the error detail of a task the backend marked
// failed.
type BackendFailure struct {
	TaskID TaskID
	Detail string
}

func (e *BackendFailure) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Detail)
}
