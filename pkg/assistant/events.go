package assistant

import "greenstorm/pkg/models"

// EventType tags the variants surfaced by a run stream. The provider's
// event zoo is collapsed to the four cases the dispatcher cares about;
// everything else is skipped at the parsing layer.
type EventType int

const (
	// EventTextDelta carries an incremental piece of assistant text.
	EventTextDelta EventType = iota
	// EventRequiresAction carries the pending tool calls of a paused run.
	EventRequiresAction
	// EventDone signals normal completion of the run.
	EventDone
	// EventError signals a provider-side failure; the run is dead.
	EventError
)

// Event is one tagged provider event. Exactly the fields implied by Type
// are populated.
type Event struct {
	Type EventType

	// Text is set for EventTextDelta.
	Text string

	// RunID/ThreadID and ToolCalls are set for EventRequiresAction.
	RunID     string
	ThreadID  string
	ToolCalls []models.ToolCall

	// Message is set for EventError.
	Message string
}
