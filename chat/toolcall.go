package chat

import (
	"sort"

	"github.com/google/uuid"
)

// ToolCallStatus is the lifecycle state of a tool call.
//
// tool_request → running_now → {success, tool_error, rejected, invalid_params}
//
// A call aborted mid-stream or mid-execution becomes interrupted, which is
// terminal and distinct from rejected (the user never saw or answered it).
type ToolCallStatus string

const (
	StatusToolRequest   ToolCallStatus = "tool_request"
	StatusRunningNow    ToolCallStatus = "running_now"
	StatusSuccess       ToolCallStatus = "success"
	StatusToolError     ToolCallStatus = "tool_error"
	StatusRejected      ToolCallStatus = "rejected"
	StatusInvalidParams ToolCallStatus = "invalid_params"
	StatusInterrupted   ToolCallStatus = "interrupted"
)

// Terminal reports whether the status is a terminal state.
func (s ToolCallStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusToolError, StatusRejected, StatusInvalidParams, StatusInterrupted:
		return true
	}
	return false
}

// ToolCall is a structured request, emitted by the model (or synthesized by
// the heuristic detector), to invoke a named external capability.
type ToolCall struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`

	// DoneKeys records which parameter keys have been fully received.
	// A key present in Params but absent here is still streaming; this
	// distinguishes "not yet started" from "streamed as empty string".
	DoneKeys map[string]bool `json:"done_keys,omitempty"`

	Status ToolCallStatus `json:"status"`
	Result string         `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// NewToolCall returns a call in tool_request state with a fresh identifier
// and all parameters considered complete.
func NewToolCall(name string, params map[string]any) *ToolCall {
	if params == nil {
		params = map[string]any{}
	}
	done := make(map[string]bool, len(params))
	for k := range params {
		done[k] = true
	}
	return &ToolCall{
		ID:       uuid.New().String(),
		Name:     name,
		Params:   params,
		DoneKeys: done,
		Status:   StatusToolRequest,
	}
}

// PendingKeys returns the parameter keys that have started streaming but are
// not yet complete, sorted for stable display.
func (tc *ToolCall) PendingKeys() []string {
	var pending []string
	for k := range tc.Params {
		if !tc.DoneKeys[k] {
			pending = append(pending, k)
		}
	}
	sort.Strings(pending)
	return pending
}

// ToolCallBuilder accumulates a tool call from streamed fragments. Parameters
// may arrive one key at a time; the builder tracks per-key completion
// explicitly instead of inferring it from key presence.
type ToolCallBuilder struct {
	id     string
	name   string
	params map[string]any
	done   map[string]bool
}

// NewToolCallBuilder starts accumulating a call. An empty id gets a fresh
// uuid, matching providers that omit call identifiers.
func NewToolCallBuilder(id, name string) *ToolCallBuilder {
	if id == "" {
		id = uuid.New().String()
	}
	return &ToolCallBuilder{
		id:     id,
		name:   name,
		params: map[string]any{},
		done:   map[string]bool{},
	}
}

// Name returns the tool name seen so far (may be empty early in the stream).
func (b *ToolCallBuilder) Name() string { return b.name }

// SetName records the tool name once it is known.
func (b *ToolCallBuilder) SetName(name string) {
	if name != "" {
		b.name = name
	}
}

// AppendParam appends a streamed delta to a string parameter. Non-string
// values overwrite.
func (b *ToolCallBuilder) AppendParam(key string, delta any) {
	if key == "" {
		return
	}
	if s, ok := delta.(string); ok {
		prev, _ := b.params[key].(string)
		b.params[key] = prev + s
		return
	}
	b.params[key] = delta
}

// MarkDone records that a parameter finished streaming.
func (b *ToolCallBuilder) MarkDone(key string) {
	if key == "" {
		return
	}
	if _, ok := b.params[key]; !ok {
		b.params[key] = ""
	}
	b.done[key] = true
}

// Done reports whether a parameter finished streaming.
func (b *ToolCallBuilder) Done(key string) bool { return b.done[key] }

// Snapshot returns the partially built call for display. The returned call
// shares no state with the builder.
func (b *ToolCallBuilder) Snapshot() *ToolCall {
	params := make(map[string]any, len(b.params))
	for k, v := range b.params {
		params[k] = v
	}
	done := make(map[string]bool, len(b.done))
	for k, v := range b.done {
		done[k] = v
	}
	return &ToolCall{
		ID:       b.id,
		Name:     b.name,
		Params:   params,
		DoneKeys: done,
		Status:   StatusToolRequest,
	}
}

// Build finalizes the call, marking every seen parameter as done.
func (b *ToolCallBuilder) Build() *ToolCall {
	for k := range b.params {
		b.done[k] = true
	}
	return b.Snapshot()
}
