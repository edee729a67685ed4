package chat

import "time"

// Role identifies who (or what) produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"

	// RoleInterruptedTool marks a tool call that was aborted while it was
	// still streaming or executing. Permanently terminal; never resumed.
	RoleInterruptedTool Role = "interrupted_streaming_tool"

	// RoleCheckpoint is a marker message delimiting an "undo to here"
	// boundary. Checkpoints carry no content and are never sent to a
	// provider.
	RoleCheckpoint Role = "checkpoint"
)

// Message is one entry in a thread's history. Messages are append-only:
// only the currently streaming tail (the assistant message being built, or
// the latest tool message before it reaches a terminal status) is mutated
// in place, and it becomes immutable once committed.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning,omitempty"`
	ToolCall  *ToolCall `json:"tool_call,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsTerminalTool reports whether the message is a tool message whose call
// reached a terminal status.
func (m *Message) IsTerminalTool() bool {
	if m.Role == RoleInterruptedTool {
		return true
	}
	if m.Role != RoleTool || m.ToolCall == nil {
		return false
	}
	return m.ToolCall.Status.Terminal()
}
