package chat

import (
	"context"

	"anvil/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ToolCallFragment is a partial piece of a tool call observed mid-stream.
// Providers emit fragments as soon as structure is known so the front end
// can show partial state (filename known, content still streaming).
type ToolCallFragment struct {
	// ID and Name may be empty until the provider has seen them.
	ID   string
	Name string

	// Key names the parameter the delta belongs to; empty when the
	// provider only has raw, unattributed argument bytes.
	Key        string
	ValueDelta string

	// Value carries a complete non-string parameter value (number, bool,
	// nested object). Set only together with KeyDone; string parameters
	// stream through ValueDelta instead.
	Value any

	// KeyDone marks Key as fully received (structural delimiter seen).
	KeyDone bool

	// CallDone marks the whole call as fully received.
	CallDone bool
}

// StreamEvent is one increment of a streamed model response. Exactly the
// fields that arrived are set; a terminal error is the callback's return
// path, not an event.
type StreamEvent struct {
	ContentDelta   string
	ReasoningDelta string
	Fragment       *ToolCallFragment

	// ToolCalls carries complete, parsed calls for providers that only
	// surface tool calls once finished (Ollama, OpenAI accumulator).
	ToolCalls []*ToolCall
}

// StreamCallback receives stream events. Returning an error stops the
// stream and propagates out of the provider call.
type StreamCallback func(ev StreamEvent) error

// Provider abstracts LLM backends (Ollama, OpenAI, OpenRouter, Anthropic)
// using anvil's provider-agnostic types.
//
// Defined here rather than in the provider package so implementations can
// import chat without a cycle.
type Provider interface {
	// Chat streams a response for the given history.
	Chat(ctx context.Context, messages []Message, cb StreamCallback) error

	// ChatWithTools streams a response with tool definitions offered.
	ChatWithTools(ctx context.Context, messages []Message, tools []mcptypes.Tool, cb StreamCallback) error

	// ListModels returns the models this provider can serve.
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)

	// GetModel returns the active model's API name.
	GetModel() string

	// GetDisplayName returns the model name for display (vendor prefix
	// stripped where applicable).
	GetDisplayName() string

	// SetModel changes the active model.
	SetModel(model string)

	// Ping checks reachability.
	Ping(ctx context.Context) error
}
