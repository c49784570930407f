package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"greenstorm/pkg/assistant"
	"greenstorm/pkg/logger"
	"greenstorm/pkg/models"
	"greenstorm/pkg/telemetry"
)

// ToolRunner resolves one tool call into exactly one output. Implementations
// must never return an error; failures are encoded in the output payload so
// a failing call cannot abort its siblings.
type ToolRunner interface {
	Dispatch(ctx context.Context, userID string, call models.ToolCall) models.ToolOutput
}

// Emitter receives the dispatcher's ordered emissions. Exactly one of
// Error or Done terminates the sequence.
type Emitter interface {
	Text(chunk string)
	Error(msg string)
	Done()
}

// Dispatcher consumes a provider run as an explicit loop over run phases
// (active -> requires-action -> resumed -> active ...), feeding text deltas
// through a chunk Buffer and resolving tool-call batches via the ToolRunner.
type Dispatcher struct {
	client *assistant.Client
	tools  ToolRunner
}

// NewDispatcher builds a dispatcher over the given provider client and
// tool runner.
func NewDispatcher(client *assistant.Client, tools ToolRunner) *Dispatcher {
	return &Dispatcher{client: client, tools: tools}
}

// Run executes one streaming session: it starts a run of assistantID
// against threadID and forwards chunks to em in the exact order the
// provider produced the text. Tool-call batches pause consumption until
// every output is collected, then resume on a fresh stream. Run returns
// after em.Done or em.Error has been called; ctx cancellation aborts both
// the consumption loop and the upstream calls.
func (d *Dispatcher) Run(ctx context.Context, userID, threadID, assistantID string, em Emitter) error {
	telemetry.ActiveSessions.Inc()
	defer telemetry.ActiveSessions.Dec()

	buf := NewBuffer(0, 0)

	rs, err := d.client.StreamRun(ctx, threadID, assistantID)
	if err != nil {
		logger.Error("run_start_failed", "thread", threadID, "error", err)
		telemetry.StreamsErrored.Inc()
		em.Error(err.Error())
		return err
	}
	defer func() {
		if rs != nil {
			_ = rs.Close()
		}
	}()

loop:
	for {
		ev, err := rs.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				logger.Warn("stream_cancelled", "thread", threadID)
				return ctx.Err()
			}
			logger.Error("stream_read_failed", "thread", threadID, "error", err)
			telemetry.StreamsErrored.Inc()
			em.Error(err.Error())
			return err
		}

		switch ev.Type {
		case assistant.EventTextDelta:
			buf.AddText(ev.Text)
			d.drain(buf, em)

		case assistant.EventRequiresAction:
			outputs := d.resolveToolCalls(ctx, userID, ev.ToolCalls)
			_ = rs.Close()
			threadForRun := ev.ThreadID
			if threadForRun == "" {
				threadForRun = threadID
			}
			rs, err = d.client.SubmitToolOutputsStream(ctx, threadForRun, ev.RunID, outputs)
			if err != nil {
				logger.Error("submit_tool_outputs_failed", "thread", threadID, "run", ev.RunID, "error", err)
				telemetry.StreamsErrored.Inc()
				em.Error(err.Error())
				return err
			}

		case assistant.EventError:
			logger.Error("run_failed", "thread", threadID, "error", ev.Message)
			telemetry.StreamsErrored.Inc()
			em.Error(ev.Message)
			return errors.New(ev.Message)

		case assistant.EventDone:
			break loop
		}
	}

	buf.Flush()
	d.drain(buf, em)
	telemetry.StreamsCompleted.Inc()
	em.Done()
	return nil
}

// drain forwards every ready chunk, preserving order.
func (d *Dispatcher) drain(buf *Buffer, em Emitter) {
	for {
		chunk, ok := buf.NextReadyChunk()
		if !ok {
			return
		}
		telemetry.ChunksEmitted.Inc()
		em.Text(chunk)
	}
}

// resolveToolCalls runs every pending tool call concurrently and returns
// one output per call, in the batch's original order. Handler failures are
// already encoded as {error} payloads by the ToolRunner, so the batch is
// always complete.
func (d *Dispatcher) resolveToolCalls(ctx context.Context, userID string, calls []models.ToolCall) []models.ToolOutput {
	outputs := make([]models.ToolOutput, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call models.ToolCall) {
			defer wg.Done()
			outputs[i] = d.tools.Dispatch(ctx, userID, call)
		}(i, call)
	}
	wg.Wait()
	return outputs
}
