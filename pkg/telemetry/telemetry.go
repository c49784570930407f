// Package telemetry exposes prometheus collectors for the streaming
// pipeline. Collectors are registered on the default registry and served
// via /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StreamsStarted counts streaming sessions by entry point
	// (send, try_again, edit_message).
	StreamsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenstorm_streams_started_total",
		Help: "Streaming sessions started, by entry point.",
	}, []string{"op"})

	// StreamsCompleted counts sessions that reached normal completion.
	StreamsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenstorm_streams_completed_total",
		Help: "Streaming sessions that completed normally.",
	})

	// StreamsErrored counts sessions terminated by an upstream error.
	StreamsErrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenstorm_streams_errored_total",
		Help: "Streaming sessions terminated by an error.",
	})

	// ActiveSessions tracks in-flight streaming sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenstorm_active_sessions",
		Help: "In-flight streaming sessions.",
	})

	// ChunksEmitted counts text chunks written to SSE clients.
	ChunksEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenstorm_chunks_emitted_total",
		Help: "Text chunks delivered over SSE.",
	})

	// ChunksDropped counts chunks discarded by the bounded ready queue.
	ChunksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenstorm_chunks_dropped_total",
		Help: "Chunks dropped by buffer overflow.",
	})

	// ToolCalls counts tool-call dispatches by function name and outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenstorm_tool_calls_total",
		Help: "Tool calls dispatched, by function and outcome.",
	}, []string{"function", "outcome"})
)
