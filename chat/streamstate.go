package chat

// RunState says what, if anything, a thread's current turn is doing.
type RunState string

const (
	// RunNone means no turn is active.
	RunNone RunState = ""

	// RunLLM: consuming a streamed model response.
	RunLLM RunState = "LLM"

	// RunTool: a tool call is executing.
	RunTool RunState = "tool"

	// RunIdle: a turn exists but is between the LLM and a tool (or winding
	// down); nothing is awaited from the user.
	RunIdle RunState = "idle"

	// RunAwaitingUser: a tool request is waiting for approve/reject.
	RunAwaitingUser RunState = "awaiting_user"
)

// LLMProgress holds the in-flight pieces of a streaming model response.
type LLMProgress struct {
	DisplayContentSoFar string
	ReasoningSoFar      string
	ToolCallSoFar       *ToolCall
}

// StreamState is a thread's current streaming status. Err is data for the
// front end to render and dismiss, never a panic escaping the orchestrator.
// Invariant: LLM is non-nil iff Running != RunNone.
type StreamState struct {
	Running RunState     `json:"-"`
	Err     string       `json:"-"`
	LLM     *LLMProgress `json:"-"`
}

// IsRunning reports whether any turn is active on the thread.
func (s *StreamState) IsRunning() bool { return s.Running != RunNone }
