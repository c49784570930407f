// Package assistant is the client for the upstream assistants API: an
// append-only thread of messages plus a streamed "run" that may pause for
// tool outputs. REST calls share one pooled http.Client; streaming calls
// use a second client without an overall timeout so long runs are not cut
// off mid-stream.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"greenstorm/pkg/models"
)

// DefaultBaseURL is the provider endpoint used when config leaves it empty.
const DefaultBaseURL = "https://api.openai.com/v1"

// APIError is a non-2xx provider response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("assistant api: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the assistants API.
type Client struct {
	baseURL   string
	apiKey    string
	rest      *http.Client
	streaming *http.Client
}

// NewClient builds a client. timeout applies to REST calls only.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		rest:      &http.Client{Timeout: timeout},
		streaming: &http.Client{},
	}
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")
}

// doJSON issues a REST request and decodes the response into out (when
// out is non-nil). Non-2xx responses become *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.rest.Do(req)
	if err != nil {
		return fmt.Errorf("assistant request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := string(b)
	if json.Unmarshal(b, &e) == nil && e.Error.Message != "" {
		msg = e.Error.Message
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// apiMessage is the provider wire shape for a thread message.
type apiMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
	Content   []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

func (m apiMessage) toModel() models.Message {
	out := models.Message{ID: m.ID, Role: m.Role, CreatedTS: m.CreatedAt}
	for _, c := range m.Content {
		if c.Type == "text" {
			out.Content = c.Text.Value
			break
		}
	}
	return out
}

// CreateThread creates a new conversation thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/threads", map[string]any{}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateMessage appends a message to the thread.
func (c *Client) CreateMessage(ctx context.Context, threadID, role, content string) error {
	body := map[string]string{"role": role, "content": content}
	return c.doJSON(ctx, http.MethodPost, "/threads/"+url.PathEscape(threadID)+"/messages", body, nil)
}

// ListMessages returns up to limit messages of the thread. order is "asc"
// or "desc" (provider default is desc / newest first).
func (c *Client) ListMessages(ctx context.Context, threadID string, limit int, order string) ([]models.Message, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if order != "" {
		q.Set("order", order)
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out struct {
		Data []apiMessage `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(out.Data))
	for _, m := range out.Data {
		msgs = append(msgs, m.toModel())
	}
	return msgs, nil
}

// DeleteMessage removes a message from the thread.
func (c *Client) DeleteMessage(ctx context.Context, threadID, messageID string) error {
	path := "/threads/" + url.PathEscape(threadID) + "/messages/" + url.PathEscape(messageID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}
