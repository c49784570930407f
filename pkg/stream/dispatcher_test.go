package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"greenstorm/pkg/assistant"
	"greenstorm/pkg/models"
)

type captureEmitter struct {
	texts  []string
	errMsg string
	done   bool
}

func (c *captureEmitter) Text(chunk string) { c.texts = append(c.texts, chunk) }
func (c *captureEmitter) Error(msg string)  { c.errMsg = msg }
func (c *captureEmitter) Done()             { c.done = true }

type scriptedTools struct {
	seen []models.ToolCall
}

func (s *scriptedTools) Dispatch(_ context.Context, _ string, call models.ToolCall) models.ToolOutput {
	s.seen = append(s.seen, call)
	return models.ToolOutput{ToolCallID: call.ID, Output: "out-" + call.Name}
}

func writeSSE(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// TestDispatcherRunHappyPath verifies a run with a tool-call pause: deltas
// before the pause, batch resolution, resumed deltas, then completion. The
// emitted chunks must concatenate to the full provider text.
func TestDispatcherRunHappyPath(t *testing.T) {
	var submitted struct {
		ToolOutputs []models.ToolOutput `json:"tool_outputs"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		switch {
		case strings.HasSuffix(r.URL.Path, "/runs"):
			writeSSE(w, "thread.message.delta",
				`{"delta":{"content":[{"type":"text","text":{"value":"The first part of the answer is ready. "}}]}}`)
			writeSSE(w, "thread.run.requires_action",
				`{"id":"run_1","thread_id":"t1","required_action":{"submit_tool_outputs":{"tool_calls":[`+
					`{"id":"call_a","function":{"name":"get_current_time","arguments":"{}"}},`+
					`{"id":"call_b","function":{"name":"search_web","arguments":"{\"search_term\":\"go\"}"}}]}}}`)
		case strings.HasSuffix(r.URL.Path, "/submit_tool_outputs"):
			if err := json.NewDecoder(r.Body).Decode(&submitted); err != nil {
				t.Errorf("decode submit body: %v", err)
			}
			writeSSE(w, "thread.message.delta",
				`{"delta":{"content":[{"type":"text","text":{"value":"And here is the rest."}}]}}`)
			writeSSE(w, "thread.run.completed", `{"id":"run_1"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := assistant.NewClient(srv.URL, "test-key", 5*time.Second)
	tools := &scriptedTools{}
	em := &captureEmitter{}

	d := NewDispatcher(client, tools)
	if err := d.Run(context.Background(), "alice", "t1", "asst_1", em); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !em.done {
		t.Fatalf("Done not called")
	}
	if em.errMsg != "" {
		t.Fatalf("unexpected error emission %q", em.errMsg)
	}
	full := strings.Join(em.texts, "")
	if full != "The first part of the answer is ready. And here is the rest." {
		t.Fatalf("reassembled text %q", full)
	}

	if len(tools.seen) != 2 {
		t.Fatalf("tool calls dispatched: %d", len(tools.seen))
	}
	if len(submitted.ToolOutputs) != 2 {
		t.Fatalf("tool outputs submitted: %d", len(submitted.ToolOutputs))
	}
	// Outputs must preserve the batch order regardless of completion order.
	if submitted.ToolOutputs[0].ToolCallID != "call_a" || submitted.ToolOutputs[1].ToolCallID != "call_b" {
		t.Fatalf("batch order not preserved: %+v", submitted.ToolOutputs)
	}
	if submitted.ToolOutputs[0].Output != "out-get_current_time" {
		t.Fatalf("wrong output payload: %+v", submitted.ToolOutputs[0])
	}
}

type mixedTools struct{}

func (mixedTools) Dispatch(_ context.Context, _ string, call models.ToolCall) models.ToolOutput {
	if call.Name == "search_web" {
		return models.ToolOutput{ToolCallID: call.ID, Output: `{"error":"Search failed."}`}
	}
	return models.ToolOutput{ToolCallID: call.ID, Output: "3:04 pm"}
}

// TestDispatcherRunMixedToolBatch verifies a batch where one handler fails
// and one succeeds still submits both outputs together: the error payload
// rides in the batch as an output, it does not abort the run.
func TestDispatcherRunMixedToolBatch(t *testing.T) {
	var submitted struct {
		ToolOutputs []models.ToolOutput `json:"tool_outputs"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		switch {
		case strings.HasSuffix(r.URL.Path, "/runs"):
			writeSSE(w, "thread.run.requires_action",
				`{"id":"run_2","thread_id":"t1","required_action":{"submit_tool_outputs":{"tool_calls":[`+
					`{"id":"call_s","function":{"name":"search_web","arguments":"{\"search_term\":\"tides\"}"}},`+
					`{"id":"call_t","function":{"name":"get_current_time","arguments":"{}"}}]}}}`)
		case strings.HasSuffix(r.URL.Path, "/submit_tool_outputs"):
			if err := json.NewDecoder(r.Body).Decode(&submitted); err != nil {
				t.Errorf("decode submit body: %v", err)
			}
			writeSSE(w, "thread.message.delta",
				`{"delta":{"content":[{"type":"text","text":{"value":"Used what I could."}}]}}`)
			writeSSE(w, "thread.run.completed", `{"id":"run_2"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := assistant.NewClient(srv.URL, "test-key", 5*time.Second)
	em := &captureEmitter{}
	d := NewDispatcher(client, mixedTools{})
	if err := d.Run(context.Background(), "alice", "t1", "asst_1", em); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !em.done {
		t.Fatalf("Done not called")
	}
	if len(submitted.ToolOutputs) != 2 {
		t.Fatalf("tool outputs submitted: %d", len(submitted.ToolOutputs))
	}
	if submitted.ToolOutputs[0].ToolCallID != "call_s" || submitted.ToolOutputs[0].Output != `{"error":"Search failed."}` {
		t.Fatalf("failed output: %+v", submitted.ToolOutputs[0])
	}
	if submitted.ToolOutputs[1].ToolCallID != "call_t" || submitted.ToolOutputs[1].Output != "3:04 pm" {
		t.Fatalf("succeeded output: %+v", submitted.ToolOutputs[1])
	}
}

// TestDispatcherRunFailure verifies a failed run surfaces the provider's
// last error through the emitter and the returned error.
func TestDispatcherRunFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeSSE(w, "thread.run.failed", `{"id":"run_1","last_error":{"message":"rate limited upstream"}}`)
	}))
	defer srv.Close()

	client := assistant.NewClient(srv.URL, "test-key", 5*time.Second)
	em := &captureEmitter{}
	d := NewDispatcher(client, &scriptedTools{})
	err := d.Run(context.Background(), "alice", "t1", "asst_1", em)
	if err == nil {
		t.Fatalf("expected error")
	}
	if em.errMsg != "rate limited upstream" {
		t.Fatalf("error emission %q", em.errMsg)
	}
	if em.done {
		t.Fatalf("Done called after error")
	}
}

// TestDispatcherRunCancellation verifies cancellation aborts the loop with
// ctx.Err and without a Done emission.
func TestDispatcherRunCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := assistant.NewClient(srv.URL, "test-key", 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	em := &captureEmitter{}
	d := NewDispatcher(client, &scriptedTools{})
	err := d.Run(ctx, "alice", "t1", "asst_1", em)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if em.done {
		t.Fatalf("Done called after cancellation")
	}
}
