package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/reportchat/reportchat/internal/client/api"
	domchat "github.com/reportchat/reportchat/internal/domain/chat"
	"github.com/reportchat/reportchat/internal/infra/ai/prompt"
)

// historyWindow caps how many prior transcript entries accompany a turn.
const historyWindow = 6

// ErrTurnInProgress rejects a new turn while a reply is still streaming.
var ErrTurnInProgress = errors.New("a reply is still streaming")

// ErrNoReport rejects chat before an analysis has produced a report.
var ErrNoReport = errors.New("no completed report to chat about")

// Streamer opens a streaming chat completion.
type Streamer interface {
	StreamChat(ctx context.Context, model string, messages []domchat.PromptMessage) (<-chan api.StreamToken, error)
}

// Config tunes the conversation.
type Config struct {
	Model         string
	StreamTimeout time.Duration      // whole-reply bound, default 5m
	OnDelta       func(delta string) // called per chunk, may be nil
}

// Controller owns the conversation layered on a completed report. One turn
// streams at a time; the transcript is append-only and the streaming reply
// grows a single entry in place.
type Controller struct {
	streamer   Streamer
	cfg        Config
	transcript *domchat.Transcript

	mu         sync.Mutex
	busy       bool
	inlineHTML string
	reportURL  string
	lastErr    string
}

func New(streamer Streamer, cfg Config) *Controller {
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 5 * time.Minute
	}
	return &Controller{
		streamer:   streamer,
		cfg:        cfg,
		transcript: domchat.NewTranscript(),
	}
}

// SetReport installs the resolved report the conversation is grounded in.
// Exactly one of inlineHTML / reportURL should be non-empty.
func (c *Controller) SetReport(inlineHTML, reportURL string) {
	c.mu.Lock()
	c.inlineHTML = inlineHTML
	c.reportURL = reportURL
	c.mu.Unlock()
}

// Transcript exposes the conversation log.
func (c *Controller) Transcript() *domchat.Transcript { return c.transcript }

// LastError returns the error message of the most recent failed turn, empty
// when the last turn succeeded.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SendTurn appends the user's message, streams the reply into a single bot
// entry and returns that entry once the stream ends. Rejected locally when
// the text is empty, no report exists yet, or another turn is streaming.
func (c *Controller) SendTurn(ctx context.Context, text string) (domchat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return domchat.Message{}, domchat.ErrEmptyMessage
	}

	c.mu.Lock()
	if c.inlineHTML == "" && c.reportURL == "" {
		c.mu.Unlock()
		return domchat.Message{}, ErrNoReport
	}
	if c.busy {
		c.mu.Unlock()
		return domchat.Message{}, ErrTurnInProgress
	}
	c.busy = true
	c.lastErr = ""
	inline, reportURL := c.inlineHTML, c.reportURL
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	// History is captured before the new turn lands in the transcript so
	// the window holds prior context only.
	history := c.transcript.History(historyWindow)
	c.transcript.Append(domchat.SenderUser, text)

	msgs := make([]domchat.PromptMessage, 0, len(history)+2)
	msgs = append(msgs, domchat.PromptMessage{
		Role:    domchat.RoleSystem,
		Content: prompt.ReportSystemPrompt(inline, reportURL),
	})
	for _, m := range history {
		msgs = append(msgs, domchat.PromptMessage{Role: roleFor(m.Sender), Content: m.Text})
	}
	msgs = append(msgs, domchat.PromptMessage{Role: domchat.RoleUser, Content: text})

	// One placeholder entry per turn; every delta grows it in place.
	reply := c.transcript.Append(domchat.SenderBot, "")

	streamCtx, cancel := context.WithTimeout(ctx, c.cfg.StreamTimeout)
	defer cancel()

	tokens, err := c.streamer.StreamChat(streamCtx, c.cfg.Model, msgs)
	if err != nil {
		return c.failTurn(reply.ID, err)
	}

	for tok := range tokens {
		if tok.Err != nil {
			return c.failTurn(reply.ID, tok.Err)
		}
		if tok.Delta != "" {
			c.transcript.AppendText(reply.ID, tok.Delta)
			if c.cfg.OnDelta != nil {
				c.cfg.OnDelta(tok.Delta)
			}
		}
		if tok.Done {
			break
		}
	}

	final, _ := c.transcript.Get(reply.ID)
	return final, nil
}

// failTurn overwrites the placeholder with the error so the transcript never
// shows a silently truncated reply.
func (c *Controller) failTurn(replyID string, err error) (domchat.Message, error) {
	msg := "Error: " + err.Error()
	c.transcript.SetText(replyID, msg)

	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()

	final, _ := c.transcript.Get(replyID)
	return final, fmt.Errorf("stream reply: %w", err)
}

func roleFor(s domchat.Sender) string {
	if s == domchat.SenderBot {
		return domchat.RoleAssistant
	}
	return domchat.RoleUser
}
