package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domchat "github.com/reportchat/reportchat/internal/domain/chat"
	domtasks "github.com/reportchat/reportchat/internal/domain/tasks"
)

// Client is a typed HTTP client for the analysis backend.
type Client struct {
	baseURL string
	http    *http.Client
	// stream requests outlive the regular timeout; they use this client and
	// rely on the caller's context for cancellation.
	streamHTTP *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		streamHTTP: &http.Client{},
	}
}

// TaskStatus mirrors GET /api/analysis-status/{task_id}.
type TaskStatus struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	HTMLURL      string `json:"html_url,omitempty"`
	HTMLContent  string `json:"html_content,omitempty"`
	ErrorDetails string `json:"error_details,omitempty"`
}

// StartAnalysis submits a prompt and returns the backend-assigned task id.
func (c *Client) StartAnalysis(ctx context.Context, prompt string) (string, error) {
	return c.start(ctx, "/api/start-analysis", map[string]string{"prompt": prompt})
}

// StartDummyAnalysis requests the immediately-completed demo task.
func (c *Client) StartDummyAnalysis(ctx context.Context) (string, error) {
	return c.start(ctx, "/api/start-dummy-analysis", struct{}{})
}

func (c *Client) start(ctx context.Context, path string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &domtasks.TransportError{Op: "start analysis", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &domtasks.TransportError{
			Op:         "start analysis",
			StatusCode: resp.StatusCode,
			Err:        decodeError(resp.Body),
		}
	}

	var out struct {
		TaskID string `json:"task_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode start response: %w", err)
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("backend returned no task_id")
	}
	return out.TaskID, nil
}

// TaskStatus fetches the current status of a task. A 404 maps to
// tasks.ErrTaskNotFound so callers can give it a distinct message.
func (c *Client) TaskStatus(ctx context.Context, id string) (*TaskStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/analysis-status/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domtasks.TransportError{Op: "poll status", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("task %s: %w", id, domtasks.ErrTaskNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domtasks.TransportError{
			Op:         "poll status",
			StatusCode: resp.StatusCode,
			Err:        decodeError(resp.Body),
		}
	}

	var st TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &st, nil
}

// ResolveURL qualifies a backend-relative report URL against the base
// address; absolute URLs pass through unchanged.
func (c *Client) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return c.baseURL + ref
}

// StreamToken is one increment of a streamed chat reply.
type StreamToken struct {
	Delta string
	Done  bool
	Err   error
}

// StreamChat opens a streaming chat completion against the backend proxy and
// emits tokens in arrival order. The channel is closed after the terminal
// token.
func (c *Client) StreamChat(ctx context.Context, model string, messages []domchat.PromptMessage) (<-chan StreamToken, error) {
	payload, err := json.Marshal(map[string]any{
		"model":    model,
		"messages": messages,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return nil, &domtasks.TransportError{Op: "chat", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &domtasks.TransportError{
			Op:         "chat",
			StatusCode: resp.StatusCode,
			Err:        decodeError(resp.Body),
		}
	}

	ch := make(chan StreamToken, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				ch <- StreamToken{Done: true, Err: ctx.Err()}
				return
			default:
			}

			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk struct {
				Delta string `json:"delta"`
				Done  bool   `json:"done"`
				Error string `json:"error"`
			}
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue // skip malformed lines
			}
			if chunk.Error != "" {
				ch <- StreamToken{Done: true, Err: errors.New(chunk.Error)}
				return
			}
			ch <- StreamToken{Delta: chunk.Delta, Done: chunk.Done}
			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			ch <- StreamToken{Done: true, Err: err}
		} else {
			ch <- StreamToken{Done: true}
		}
	}()
	return ch, nil
}

func decodeError(r io.Reader) error {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&e); err == nil && e.Error != "" {
		return errors.New(e.Error)
	}
	return nil
}
