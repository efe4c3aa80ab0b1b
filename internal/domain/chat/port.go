package chat

import (
	"context"
	"errors"
)

// Completion roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// PromptMessage is one role-tagged entry of a completion request.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is an ordered message sequence for one streamed reply.
type CompletionRequest struct {
	Model    string
	Messages []PromptMessage
}

// ErrQuotaExceeded indicates the completion provider returned a quota/limit
// error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("chat quota exceeded")

// ErrEmptyMessage rejects empty or whitespace-only chat turns before any
// network call.
var ErrEmptyMessage = errors.New("message must not be empty")

// CompletionStreamer port: produces a streamed completion, invoking emit for
// every text delta in arrival order.
type CompletionStreamer interface {
	Stream(ctx context.Context, req CompletionRequest, emit func(delta string) error) error
}
