package client

import (
	"io"
	"strings"
	"testing"
)

func collect(raw string) []StreamEvent {
	events := make(chan StreamEvent, 32)
	go consumeSSE(io.NopCloser(strings.NewReader(raw)), events)
	var out []StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

// TestConsumeSSETextFrames verifies text frames decode in order and the
// sentinel yields a Done event and closes the channel.
func TestConsumeSSETextFrames(t *testing.T) {
	got := collect("data: {\"text\":\"Hello \"}\n\n" +
		"data: {\"text\":\"world.\"}\n\n" +
		"data: [DONE]\n\n")
	if len(got) != 3 {
		t.Fatalf("events %+v", got)
	}
	if got[0].Text != "Hello " || got[1].Text != "world." {
		t.Fatalf("text events %+v", got[:2])
	}
	if !got[2].Done {
		t.Fatalf("missing done: %+v", got[2])
	}
}

// TestConsumeSSEErrorAndCancel verifies error and cancellation frames map
// to their event kinds.
func TestConsumeSSEErrorAndCancel(t *testing.T) {
	got := collect("data: {\"error\":\"upstream broke\"}\n\ndata: [DONE]\n\n")
	if len(got) != 2 || got[0].Err != "upstream broke" || !got[1].Done {
		t.Fatalf("events %+v", got)
	}

	got = collect("data: {\"status\":\"cancelled\"}\n\ndata: [DONE]\n\n")
	if len(got) != 2 || !got[0].Cancelled || !got[1].Done {
		t.Fatalf("events %+v", got)
	}
}

// TestConsumeSSEMultilineData verifies multi-line data fields join with a
// newline per the SSE format.
func TestConsumeSSEMultilineData(t *testing.T) {
	// A frame split across two data lines; the joined payload is invalid
	// JSON only if the split ignores the newline rule.
	got := collect("data: {\"text\":\ndata: \"two\"}\n\ndata: [DONE]\n\n")
	if len(got) != 2 || got[0].Text != "two" {
		t.Fatalf("events %+v", got)
	}
}

// TestConsumeSSEEOFWithoutSentinel verifies the channel still closes when
// the connection drops before [DONE].
func TestConsumeSSEEOFWithoutSentinel(t *testing.T) {
	got := collect("data: {\"text\":\"partial\"}\n\n")
	if len(got) != 1 || got[0].Text != "partial" {
		t.Fatalf("events %+v", got)
	}
}

// TestConsumeSSESkipsMalformedFrames verifies junk payloads are dropped
// without killing the stream.
func TestConsumeSSESkipsMalformedFrames(t *testing.T) {
	got := collect("data: not json\n\ndata: {\"text\":\"ok\"}\n\ndata: [DONE]\n\n")
	if len(got) != 2 || got[0].Text != "ok" || !got[1].Done {
		t.Fatalf("events %+v", got)
	}
}
