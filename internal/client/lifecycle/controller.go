package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/reportchat/reportchat/internal/client/api"
	domtasks "github.com/reportchat/reportchat/internal/domain/tasks"
)

// State of the client-side task lifecycle. The backend only ever reports
// pending/processing/completed/failed; idle and loading exist purely on this
// side of the wire.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
)

// Backend is the slice of the API client the controller needs.
type Backend interface {
	StartAnalysis(ctx context.Context, prompt string) (string, error)
	StartDummyAnalysis(ctx context.Context) (string, error)
	TaskStatus(ctx context.Context, id string) (*api.TaskStatus, error)
	ResolveURL(ref string) string
}

// Snapshot is an immutable view of the controller state. In a terminal
// state exactly one of InlineHTML/ReportURL (success) or ErrorMessage
// (error) is populated, and TaskID is empty again.
type Snapshot struct {
	State         State
	TaskID        string
	StatusMessage string
	InlineHTML    string
	ReportURL     string
	ErrorMessage  string
}

// Config tunes the poll loop.
type Config struct {
	PollInterval time.Duration  // between status requests, default 3s
	PollTimeout  time.Duration  // per status request, default 15s
	OnUpdate     func(Snapshot) // called after every state change, may be nil
}

// Controller owns one analysis task at a time: submit it, poll it to a
// terminal state, expose the result. A new Submit discards all prior state.
type Controller struct {
	backend     Backend
	interval    time.Duration
	pollTimeout time.Duration
	onUpdate    func(Snapshot)

	mu     sync.Mutex
	snap   Snapshot
	cancel context.CancelFunc // stops the poll loop; nil when not polling
	done   chan struct{}      // closed when the current task is terminal
	gen    int                // submission generation, guards stale polls
}

func New(backend Backend, cfg Config) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 15 * time.Second
	}
	done := make(chan struct{})
	close(done)
	return &Controller{
		backend:     backend,
		interval:    cfg.PollInterval,
		pollTimeout: cfg.PollTimeout,
		onUpdate:    cfg.OnUpdate,
		snap:        Snapshot{State: StateIdle},
		done:        done,
	}
}

// Submit validates the prompt, sends it to the backend and starts polling.
// Empty or whitespace-only prompts are rejected locally, before any network
// call.
func (c *Controller) Submit(ctx context.Context, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return domtasks.ErrEmptyPrompt
	}
	return c.submit(ctx, func(ctx context.Context) (string, error) {
		return c.backend.StartAnalysis(ctx, prompt)
	})
}

// SubmitDummy starts the backend's immediately-completed demo task and polls
// it through the same lifecycle.
func (c *Controller) SubmitDummy(ctx context.Context) error {
	return c.submit(ctx, c.backend.StartDummyAnalysis)
}

func (c *Controller) submit(ctx context.Context, start func(context.Context) (string, error)) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	gen := c.gen
	c.snap = Snapshot{State: StateLoading, StatusMessage: "Submitting analysis request..."}
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()
	c.notify()

	id, err := start(ctx)
	if err != nil {
		c.finish(gen, done, Snapshot{
			State:         StateError,
			StatusMessage: "Submission failed.",
			ErrorMessage:  err.Error(),
		})
		return err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if gen != c.gen { // superseded while the request was in flight
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.cancel = cancel
	c.snap.State = StateProcessing
	c.snap.TaskID = id
	c.snap.StatusMessage = "Analysis started."
	c.mu.Unlock()
	c.notify()

	go c.poll(pollCtx, gen, done, id)
	return nil
}

// poll issues one status request per tick. Each request completes before the
// next tick is consumed, so responses are handled in request order.
func (c *Controller) poll(ctx context.Context, gen int, done chan struct{}, id string) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if terminal := c.pollOnce(ctx, gen, done, id); terminal {
			return
		}
	}
}

func (c *Controller) pollOnce(ctx context.Context, gen int, done chan struct{}, id string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	st, err := c.backend.TaskStatus(reqCtx, id)
	cancel()

	if ctx.Err() != nil {
		return true
	}
	if err != nil {
		msg := err.Error()
		if errors.Is(err, domtasks.ErrTaskNotFound) {
			msg = fmt.Sprintf("task %s is unknown to the backend; it may have expired or the backend may have restarted", id)
		}
		c.finish(gen, done, Snapshot{
			State:         StateError,
			StatusMessage: "Polling failed.",
			ErrorMessage:  msg,
		})
		return true
	}

	switch domtasks.Status(st.Status) {
	case domtasks.StatusCompleted:
		switch {
		case st.HTMLContent != "":
			c.finish(gen, done, Snapshot{
				State:         StateSuccess,
				StatusMessage: st.Message,
				InlineHTML:    st.HTMLContent,
			})
		case st.HTMLURL != "":
			c.finish(gen, done, Snapshot{
				State:         StateSuccess,
				StatusMessage: st.Message,
				ReportURL:     c.backend.ResolveURL(st.HTMLURL),
			})
		default:
			// Completed with no payload breaks the backend contract; treat
			// it as a failure rather than an empty success.
			c.finish(gen, done, Snapshot{
				State:         StateError,
				StatusMessage: st.Message,
				ErrorMessage:  fmt.Sprintf("task %s completed without report content or URL", id),
			})
		}
		return true

	case domtasks.StatusFailed:
		detail := st.ErrorDetails
		if detail == "" {
			detail = st.Message
		}
		c.finish(gen, done, Snapshot{
			State:         StateError,
			StatusMessage: st.Message,
			ErrorMessage:  detail,
		})
		return true

	default: // pending / processing
		c.setMessage(gen, st.Message)
		return false
	}
}

// finish installs a terminal snapshot, stops polling and clears the task id
// so a stale poll cannot resurrect the task.
func (c *Controller) finish(gen int, done chan struct{}, final Snapshot) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	final.TaskID = ""
	c.snap = final
	c.mu.Unlock()
	close(done)
	c.notify()
}

func (c *Controller) setMessage(gen int, msg string) {
	if msg == "" {
		return
	}
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.snap.StatusMessage = msg
	c.mu.Unlock()
	c.notify()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// AwaitResult blocks until the current task reaches a terminal state or ctx
// is cancelled.
func (c *Controller) AwaitResult(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	case <-done:
		return c.Snapshot(), nil
	}
}

// Close stops any outstanding poll loop. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

func (c *Controller) notify() {
	if c.onUpdate != nil {
		c.onUpdate(c.Snapshot())
	}
}
