package assistant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"greenstorm/pkg/models"
)

// sseReader parses Server-Sent Events from a response body. It tolerates
// CRLF line endings and multi-line data fields; id/retry/comment lines are
// ignored.
type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReader(r)}
}

// readEvent returns the next (event type, data) pair. io.EOF ends the stream.
func (s *sseReader) readEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			return "", nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			eventType = ""
			continue
		}
		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
	}
}

// RunStream is one live run consumption. Next yields tagged events until
// io.EOF; Close releases the underlying connection.
type RunStream struct {
	body io.ReadCloser
	sse  *sseReader
}

// Close releases the stream's connection. Safe to call more than once.
func (s *RunStream) Close() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}

// deltaPayload is the wire shape of thread.message.delta data.
type deltaPayload struct {
	Delta struct {
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"delta"`
}

// runPayload is the wire shape of run-level events (requires_action, failed).
type runPayload struct {
	ID             string `json:"id"`
	ThreadID       string `json:"thread_id"`
	LastError      *struct {
		Message string `json:"message"`
	} `json:"last_error"`
	RequiredAction *struct {
		SubmitToolOutputs struct {
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action"`
}

// Next returns the next tagged event. It skips provider events that the
// dispatcher does not consume and returns io.EOF once the wire stream ends
// without a terminal event.
func (s *RunStream) Next(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		default:
		}

		eventType, data, err := s.sse.readEvent()
		if err != nil {
			return Event{}, err
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			return Event{Type: EventDone}, nil
		}

		switch eventType {
		case "thread.message.delta":
			var p deltaPayload
			if json.Unmarshal(data, &p) != nil {
				continue
			}
			var text string
			for _, c := range p.Delta.Content {
				if c.Type == "text" {
					text = c.Text.Value
					break
				}
			}
			if text == "" {
				continue
			}
			return Event{Type: EventTextDelta, Text: text}, nil

		case "thread.run.requires_action":
			var p runPayload
			if err := json.Unmarshal(data, &p); err != nil || p.RequiredAction == nil {
				continue
			}
			ev := Event{Type: EventRequiresAction, RunID: p.ID, ThreadID: p.ThreadID}
			for _, tc := range p.RequiredAction.SubmitToolOutputs.ToolCalls {
				ev.ToolCalls = append(ev.ToolCalls, models.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
			return ev, nil

		case "thread.run.completed":
			return Event{Type: EventDone}, nil

		case "thread.run.failed", "thread.run.cancelled", "thread.run.expired":
			var p runPayload
			msg := "run " + eventType[len("thread.run."):]
			if json.Unmarshal(data, &p) == nil && p.LastError != nil && p.LastError.Message != "" {
				msg = p.LastError.Message
			}
			return Event{Type: EventError, Message: msg}, nil

		case "error":
			var p struct {
				Message string `json:"message"`
			}
			msg := string(data)
			if json.Unmarshal(data, &p) == nil && p.Message != "" {
				msg = p.Message
			}
			return Event{Type: EventError, Message: msg}, nil
		}
	}
}

func (c *Client) openStream(ctx context.Context, path string, body any) (*RunStream, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streaming.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	return &RunStream{body: resp.Body, sse: newSSEReader(resp.Body)}, nil
}

// StreamRun starts a streamed run of the assistant against the thread.
func (c *Client) StreamRun(ctx context.Context, threadID, assistantID string) (*RunStream, error) {
	body := map[string]any{"assistant_id": assistantID, "stream": true}
	return c.openStream(ctx, "/threads/"+url.PathEscape(threadID)+"/runs", body)
}

// SubmitToolOutputsStream submits the batched tool outputs of a paused run
// and resumes streaming.
func (c *Client) SubmitToolOutputsStream(ctx context.Context, threadID, runID string, outputs []models.ToolOutput) (*RunStream, error) {
	body := map[string]any{"tool_outputs": outputs, "stream": true}
	path := "/threads/" + url.PathEscape(threadID) + "/runs/" + url.PathEscape(runID) + "/submit_tool_outputs"
	return c.openStream(ctx, path, body)
}
