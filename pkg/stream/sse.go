package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"greenstorm/pkg/logger"
)

// doneSentinel terminates every event stream, success or failure.
const doneSentinel = "[DONE]"

// SSEWriter adapts an http.ResponseWriter into an Emitter that frames
// chunks as server-sent events. All writes are serialized; once the
// stream is terminated further emissions are dropped silently.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
}

// NewSSEWriter prepares w for event streaming and writes the SSE headers.
// It fails when the underlying writer cannot flush, since buffered
// delivery would defeat incremental rendering.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Text emits one text chunk frame.
func (s *SSEWriter) Text(chunk string) {
	s.send(map[string]string{"text": chunk}, false)
}

// Error emits an error frame followed by the termination sentinel and
// closes the stream.
func (s *SSEWriter) Error(msg string) {
	s.send(map[string]string{"error": msg}, true)
}

// Cancelled emits a cancellation frame followed by the termination
// sentinel and closes the stream.
func (s *SSEWriter) Cancelled() {
	s.send(map[string]string{"status": "cancelled"}, true)
}

// Done emits the termination sentinel and closes the stream.
func (s *SSEWriter) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.writeFrame(doneSentinel)
}

func (s *SSEWriter) send(payload map[string]string, terminal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logger.Error("sse_marshal_failed", "error", err)
		return
	}
	s.writeFrame(string(b))
	if terminal {
		s.closed = true
		s.writeFrame(doneSentinel)
	}
}

// writeFrame writes one "data:" frame and flushes. Callers hold s.mu.
func (s *SSEWriter) writeFrame(data string) {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		// Client went away; stop emitting.
		s.closed = true
		return
	}
	s.flusher.Flush()
}
