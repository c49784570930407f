// Package client implements the terminal chat front end: a thin HTTP
// client for the server's endpoints, an SSE consumer, and a typing
// renderer that paces chunk display.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
)

// StreamEvent is one decoded SSE frame from the server.
type StreamEvent struct {
	Text      string
	Err       string
	Cancelled bool
	Done      bool
}

// HistoryEntry is one message from GET /history.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to the chat server. The cookie jar carries the session.
type Client struct {
	base string
	http *http.Client
}

// New builds a Client for the given server base URL, e.g.
// "http://localhost:8080".
func New(base string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Jar: jar},
	}, nil
}

// Login starts a session for the given first name.
func (c *Client) Login(ctx context.Context, firstName string) error {
	body, _ := json.Marshal(map[string]string{"first_name": firstName})
	resp, err := c.post(ctx, "/login", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// History fetches the conversation so far, oldest first.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/history", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out struct {
		History []HistoryEntry `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// Send posts a user message and returns a channel of stream events. The
// channel closes after the Done or error frame.
func (c *Client) Send(ctx context.Context, message string) (<-chan StreamEvent, error) {
	body, _ := json.Marshal(map[string]string{"message": message})
	return c.stream(ctx, "/assistant/send", body)
}

// TryAgain replays the last user message.
func (c *Client) TryAgain(ctx context.Context) (<-chan StreamEvent, error) {
	return c.stream(ctx, "/assistant/try_again", nil)
}

// EditMessage replaces the last user message and streams the new answer.
func (c *Client) EditMessage(ctx context.Context, newMessage string) (<-chan StreamEvent, error) {
	body, _ := json.Marshal(map[string]string{"new_message": newMessage})
	return c.stream(ctx, "/assistant/edit_message", body)
}

// DeleteMessage removes the last exchange.
func (c *Client) DeleteMessage(ctx context.Context) error {
	resp, err := c.post(ctx, "/assistant/delete_message", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// StopResponse asks the server to cancel the in-flight stream.
func (c *Client) StopResponse(ctx context.Context) error {
	resp, err := c.post(ctx, "/assistant/stop_response", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func (c *Client) stream(ctx context.Context, path string, body []byte) (<-chan StreamEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}

	events := make(chan StreamEvent, 16)
	go consumeSSE(resp.Body, events)
	return events, nil
}

// consumeSSE reads "data:" frames until the [DONE] sentinel or EOF and
// closes the channel.
func consumeSSE(body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var data []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			if len(data) == 0 {
				continue
			}
			payload := strings.Join(data, "\n")
			data = data[:0]
			if payload == "[DONE]" {
				events <- StreamEvent{Done: true}
				return
			}
			var frame struct {
				Text   string `json:"text"`
				Error  string `json:"error"`
				Status string `json:"status"`
			}
			if err := json.Unmarshal([]byte(payload), &frame); err != nil {
				continue
			}
			switch {
			case frame.Error != "":
				events <- StreamEvent{Err: frame.Error}
			case frame.Status == "cancelled":
				events <- StreamEvent{Cancelled: true}
			case frame.Text != "":
				events <- StreamEvent{Text: frame.Text}
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(rest, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		events <- StreamEvent{Err: err.Error()}
	}
}

func apiError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	var out struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &out) == nil && out.Error != "" {
		return fmt.Errorf("%s", out.Error)
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
