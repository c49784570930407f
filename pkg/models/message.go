package models

// Role values used on thread messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry in a conversation thread. Messages are append-only;
// the only mutation is the delete issued by the conversation editor.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
	// Created timestamp (unix seconds) as reported by the provider
	CreatedTS int64 `json:"created_ts,omitempty"`
}

// ToolCall is a structured request from the upstream assistant to invoke a
// named local capability. Arguments is the raw JSON string as emitted by the
// provider.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolOutput is the resolved result for a single tool call. Every tool call
// id observed during a run must receive exactly one output before the run
// resumes.
type ToolOutput struct {
	ToolCallID string `json:"tool_call_id"`
	Output     string `json:"output"`
}
