package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/reportchat/reportchat/internal/client/api"
	"github.com/reportchat/reportchat/internal/client/conversation"
	"github.com/reportchat/reportchat/internal/client/lifecycle"
)

// UploadedFile is an attachment collected for a submission. Only the name
// and size travel with the prompt; the bytes are never read.
type UploadedFile struct {
	Name string
	Size int64
}

// Config wires one session.
type Config struct {
	Backend      *api.Client
	Lifecycle    lifecycle.Config
	Conversation conversation.Config
}

// Session ties one lifecycle controller and one conversation controller to a
// shared backend client, and carries the attachment list between them.
type Session struct {
	Lifecycle    *lifecycle.Controller
	Conversation *conversation.Controller

	mu    sync.Mutex
	files []UploadedFile
}

func New(cfg Config) *Session {
	return &Session{
		Lifecycle:    lifecycle.New(cfg.Backend, cfg.Lifecycle),
		Conversation: conversation.New(cfg.Backend, cfg.Conversation),
	}
}

// Attach records a file by name and size. Duplicate names are kept out so a
// later Remove clears the file completely.
func (s *Session) Attach(name string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.Name == name {
			return
		}
	}
	s.files = append(s.files, UploadedFile{Name: name, Size: size})
}

// Remove drops every attachment with the given name.
func (s *Session) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.files[:0]
	for _, f := range s.files {
		if f.Name != name {
			kept = append(kept, f)
		}
	}
	s.files = kept
}

// Files returns a copy of the attachment list.
func (s *Session) Files() []UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UploadedFile, len(s.files))
	copy(out, s.files)
	return out
}

// Submit sends the prompt, annotated with any attached file names, and
// starts polling.
func (s *Session) Submit(ctx context.Context, prompt string) error {
	return s.Lifecycle.Submit(ctx, s.annotate(prompt))
}

// SubmitDummy runs the backend's demo analysis.
func (s *Session) SubmitDummy(ctx context.Context) error {
	return s.Lifecycle.SubmitDummy(ctx)
}

// AwaitReport waits for the task to finish and, on success, grounds the
// conversation in the resolved report.
func (s *Session) AwaitReport(ctx context.Context) (lifecycle.Snapshot, error) {
	snap, err := s.Lifecycle.AwaitResult(ctx)
	if err != nil {
		return snap, err
	}
	if snap.State == lifecycle.StateSuccess {
		s.Conversation.SetReport(snap.InlineHTML, snap.ReportURL)
	}
	return snap, nil
}

// Close stops the poll loop.
func (s *Session) Close() {
	s.Lifecycle.Close()
}

// annotate appends the attachment names to a non-empty prompt. An empty
// prompt passes through untouched so validation still rejects it.
func (s *Session) annotate(prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return prompt
	}
	files := s.Files()
	if len(files) == 0 {
		return prompt
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = fmt.Sprintf("%s (%d bytes)", f.Name, f.Size)
	}
	return prompt + "\n\nAttached files: " + strings.Join(names, ", ")
}
