// Package agent owns chat threads and drives the tool-calling turn loop:
// it streams model output, accumulates tool calls, runs them through the
// approval pipeline and the tool service, and feeds results back to the
// model until the turn settles.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"anvil/chat"
	"anvil/config"
	"anvil/storage"
	"anvil/tools"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// fallback when the config carries no iteration cap
const defaultMaxIterations = 25

// EventKind classifies orchestrator events sent to the front end.
type EventKind string

const (
	EventContentDelta   EventKind = "content_delta"
	EventReasoningDelta EventKind = "reasoning_delta"
	EventToolCallUpdate EventKind = "tool_call_update"
	EventToolRequest    EventKind = "tool_request"
	EventToolResult     EventKind = "tool_result"
	EventTurnDone       EventKind = "turn_done"
	EventTurnError      EventKind = "turn_error"
)

// Event is a front-end notification. Call, when set, is a snapshot safe to
// read without holding any lock.
type Event struct {
	ThreadID string
	Kind     EventKind
	Text     string
	Call     *chat.ToolCall
}

// ToolSource supplies externally provided tool definitions (MCP plugins).
type ToolSource interface {
	Tools() []mcptypes.Tool
}

// turnState is the cancellable runtime of one in-flight turn.
type turnState struct {
	cancel   context.CancelFunc
	approval chan bool
	done     chan struct{}
}

// Orchestrator coordinates every thread's turn lifecycle. All thread
// mutation goes through it; at most one turn runs per thread at a time.
type Orchestrator struct {
	mu       sync.Mutex
	cfg      *config.Config
	provider chat.Provider
	service  *tools.Service
	plugins  ToolSource
	store    *storage.ThreadStorage
	index    *storage.SearchIndex
	mode     chat.Mode
	threads  map[string]*chat.Thread
	running  map[string]*turnState
	onEvent  func(Event)
}

// NewOrchestrator wires the orchestrator to its collaborators. Storage,
// search index and plugin tools are optional and attached separately.
func NewOrchestrator(cfg *config.Config, provider chat.Provider, service *tools.Service) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		provider: provider,
		service:  service,
		mode:     chat.ParseMode(cfg.DefaultChatMode),
		threads:  map[string]*chat.Thread{},
		running:  map[string]*turnState{},
	}
}

// SetStorage attaches thread persistence. Threads are saved after every
// settled turn; index may be nil to skip message search indexing.
func (o *Orchestrator) SetStorage(store *storage.ThreadStorage, index *storage.SearchIndex) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.store = store
	o.index = index
}

// SetPlugins attaches an external tool source consulted in agent mode.
func (o *Orchestrator) SetPlugins(src ToolSource) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.plugins = src
}

// OnEvent registers the front-end notification callback. The callback runs
// on the turn goroutine and must not block for long.
func (o *Orchestrator) OnEvent(fn func(Event)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onEvent = fn
}

// SetProvider swaps the active provider. Running turns keep the provider
// they started with.
func (o *Orchestrator) SetProvider(p chat.Provider) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.provider = p
}

// Provider returns the active provider.
func (o *Orchestrator) Provider() chat.Provider {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.provider
}

// SetMode changes the chat mode for subsequent turns.
func (o *Orchestrator) SetMode(mode chat.Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = mode
}

// Mode returns the current chat mode.
func (o *Orchestrator) Mode() chat.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// NewThread creates and registers an empty thread.
func (o *Orchestrator) NewThread(name string) *chat.Thread {
	t := chat.NewThread(name)
	o.mu.Lock()
	o.threads[t.ID] = t
	o.mu.Unlock()
	return t
}

// OpenThread registers a thread loaded from storage.
func (o *Orchestrator) OpenThread(t *chat.Thread) {
	o.mu.Lock()
	o.threads[t.ID] = t
	o.mu.Unlock()
}

// Thread returns a registered thread by ID, or nil.
func (o *Orchestrator) Thread(id string) *chat.Thread {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.threads[id]
}

// AnythingRunning reports whether any thread has an active turn. Front-end
// affordance only (e.g. disabling checkpoint navigation).
func (o *Orchestrator) AnythingRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running) > 0
}

// DismissError clears a thread's dismissible error.
func (o *Orchestrator) DismissError(threadID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t := o.threads[threadID]; t != nil {
		t.Stream.Err = ""
	}
}

// AddUserMessageAndStreamResponse appends a user message and starts a turn.
// Returns an error, leaving the thread untouched, if a turn is already
// running on the thread.
func (o *Orchestrator) AddUserMessageAndStreamResponse(threadID, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.threads[threadID]
	if t == nil {
		return fmt.Errorf("unknown thread %s", threadID)
	}
	if t.Stream.IsRunning() {
		return fmt.Errorf("a turn is already running on thread %s", threadID)
	}
	if t.Name == "" {
		t.Name = storage.GenerateThreadName(text)
	}
	t.AppendCheckpoint()
	t.Append(chat.Message{Role: chat.RoleUser, Content: text})
	o.startTurnLocked(t)
	return nil
}

// EditUserMessageAndStreamResponse truncates the thread at msgIdx, replaces
// that user message and restarts streaming from there. The thread must be
// idle; abort any running turn first.
func (o *Orchestrator) EditUserMessageAndStreamResponse(threadID string, msgIdx int, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.threads[threadID]
	if t == nil {
		return fmt.Errorf("unknown thread %s", threadID)
	}
	if t.Stream.IsRunning() {
		return fmt.Errorf("a turn is running on thread %s; abort it first", threadID)
	}
	if msgIdx < 0 || msgIdx >= len(t.Messages) || t.Messages[msgIdx].Role != chat.RoleUser {
		return fmt.Errorf("message %d is not an editable user message", msgIdx)
	}
	t.Truncate(msgIdx)
	if last := t.Last(); last == nil || last.Role != chat.RoleCheckpoint {
		t.AppendCheckpoint()
	}
	t.Append(chat.Message{Role: chat.RoleUser, Content: text})
	o.startTurnLocked(t)
	return nil
}

// ApproveLatestToolRequest lets a pending tool request run. A no-op when
// the thread is not awaiting approval; duplicate calls are harmless.
func (o *Orchestrator) ApproveLatestToolRequest(threadID string) {
	o.answerLatestToolRequest(threadID, true)
}

// RejectLatestToolRequest rejects a pending tool request, ending the turn.
// A no-op when the thread is not awaiting approval.
func (o *Orchestrator) RejectLatestToolRequest(threadID string) {
	o.answerLatestToolRequest(threadID, false)
}

func (o *Orchestrator) answerLatestToolRequest(threadID string, approved bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.threads[threadID]
	ts := o.running[threadID]
	if t == nil || ts == nil || t.Stream.Running != chat.RunAwaitingUser {
		return
	}
	msg, _ := t.LatestToolMessage()
	if msg == nil || msg.Role != chat.RoleTool || msg.ToolCall == nil || msg.ToolCall.Status != chat.StatusToolRequest {
		return
	}
	select {
	case ts.approval <- approved:
	default:
	}
}

// AbortRunning cancels the thread's in-flight turn and waits for it to wind
// down. Safe to call in any state; a no-op when nothing is running. Partial
// assistant text is committed; a mid-flight tool call is marked interrupted.
func (o *Orchestrator) AbortRunning(threadID string) {
	o.mu.Lock()
	ts := o.running[threadID]
	o.mu.Unlock()
	if ts == nil {
		return
	}
	ts.cancel()
	<-ts.done
}

// JumpToCheckpointBeforeMessageIdx moves the thread's checkpoint pointer to
// the nearest checkpoint before msgIdx. Later messages are ghosted, never
// deleted. Idempotent; requires the thread to be idle.
func (o *Orchestrator) JumpToCheckpointBeforeMessageIdx(threadID string, msgIdx int) (int, error) {
	o.mu.Lock()
	t := o.threads[threadID]
	if t == nil {
		o.mu.Unlock()
		return -1, fmt.Errorf("unknown thread %s", threadID)
	}
	if t.Stream.IsRunning() {
		o.mu.Unlock()
		return -1, fmt.Errorf("a turn is running on thread %s", threadID)
	}
	idx := t.SetCheckpointBefore(msgIdx)
	store := o.store
	o.mu.Unlock()
	if store != nil {
		if err := store.Save(t); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("agent: save after checkpoint jump: %v", err)
		}
	}
	return idx, nil
}

// startTurnLocked begins a turn goroutine. Caller holds o.mu and has
// verified the thread is idle.
func (o *Orchestrator) startTurnLocked(t *chat.Thread) {
	ctx, cancel := context.WithCancel(context.Background())
	ts := &turnState{
		cancel:   cancel,
		approval: make(chan bool, 1),
		done:     make(chan struct{}),
	}
	o.running[t.ID] = ts
	t.Stream = chat.StreamState{Running: chat.RunLLM, LLM: &chat.LLMProgress{}}
	provider := o.provider
	mode := o.mode
	go o.runTurn(ctx, t, ts, provider, mode)
}

func (o *Orchestrator) runTurn(ctx context.Context, t *chat.Thread, ts *turnState, provider chat.Provider, mode chat.Mode) {
	defer o.finishTurn(t, ts)

	maxIter := o.cfg.Tools.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	for iteration := 0; ; iteration++ {
		content, reasoning, calls, partial, err := o.streamOnce(ctx, t, provider, mode)

		o.mu.Lock()
		if content != "" || reasoning != "" {
			t.Append(chat.Message{Role: chat.RoleAssistant, Content: content, Reasoning: reasoning})
		}
		if err != nil {
			if ctx.Err() != nil {
				// aborted mid-stream: keep the partial text, stub out
				// whatever call was still arriving
				if partial != nil {
					partial.Status = chat.StatusInterrupted
					t.Append(chat.Message{Role: chat.RoleInterruptedTool, ToolCall: partial})
				}
				o.mu.Unlock()
				return
			}
			t.Stream.Err = err.Error()
			o.mu.Unlock()
			o.emit(Event{ThreadID: t.ID, Kind: EventTurnError, Text: err.Error()})
			return
		}
		o.mu.Unlock()

		if len(calls) == 0 {
			if c := DetectNarratedToolCall(content, mode); c != nil {
				if config.DebugLog != nil {
					config.DebugLog.Printf("agent: synthesized %s call from narrated text", c.Name)
				}
				calls = []*chat.ToolCall{c}
			}
		}
		if len(calls) == 0 {
			return
		}
		if iteration >= maxIter {
			msg := fmt.Sprintf("stopped after %d tool iterations", maxIter)
			o.mu.Lock()
			t.Stream.Err = msg
			o.mu.Unlock()
			o.emit(Event{ThreadID: t.ID, Kind: EventTurnError, Text: msg})
			return
		}
		for _, call := range calls {
			if !o.runToolCall(ctx, t, ts, call) {
				return
			}
		}
	}
}

// streamOnce drives one provider round trip, accumulating content and tool
// calls. partial is the last still-streaming call, for abort stubbing.
func (o *Orchestrator) streamOnce(ctx context.Context, t *chat.Thread, provider chat.Provider, mode chat.Mode) (content, reasoning string, calls []*chat.ToolCall, partial *chat.ToolCall, err error) {
	o.mu.Lock()
	msgs := t.ContextMessages()
	if sp := o.cfg.DefaultSystemPrompt; sp != "" && (len(msgs) == 0 || msgs[0].Role != chat.RoleSystem) {
		msgs = append([]chat.Message{{Role: chat.RoleSystem, Content: sp}}, msgs...)
	}
	t.Stream.Running = chat.RunLLM
	t.Stream.LLM = &chat.LLMProgress{}
	o.mu.Unlock()

	var (
		contentBuf   strings.Builder
		reasoningBuf strings.Builder
		builders     = map[string]*chat.ToolCallBuilder{}
		order        []string
		currentID    string
	)

	cb := func(ev chat.StreamEvent) error {
		var out []Event
		o.mu.Lock()
		if ev.ContentDelta != "" {
			contentBuf.WriteString(ev.ContentDelta)
			t.Stream.LLM.DisplayContentSoFar = contentBuf.String()
			out = append(out, Event{ThreadID: t.ID, Kind: EventContentDelta, Text: ev.ContentDelta})
		}
		if ev.ReasoningDelta != "" {
			reasoningBuf.WriteString(ev.ReasoningDelta)
			t.Stream.LLM.ReasoningSoFar = reasoningBuf.String()
			out = append(out, Event{ThreadID: t.ID, Kind: EventReasoningDelta, Text: ev.ReasoningDelta})
		}
		if f := ev.Fragment; f != nil {
			if f.ID != "" {
				currentID = f.ID
			}
			b := builders[currentID]
			if b == nil {
				b = chat.NewToolCallBuilder(f.ID, f.Name)
				builders[currentID] = b
				order = append(order, currentID)
			}
			b.SetName(f.Name)
			if f.Key != "" {
				if f.Value != nil {
					b.AppendParam(f.Key, f.Value)
				} else if f.ValueDelta != "" {
					b.AppendParam(f.Key, f.ValueDelta)
				}
				if f.KeyDone {
					b.MarkDone(f.Key)
				}
			}
			snap := b.Snapshot()
			t.Stream.LLM.ToolCallSoFar = snap
			out = append(out, Event{ThreadID: t.ID, Kind: EventToolCallUpdate, Call: snap})
		}
		if len(ev.ToolCalls) > 0 {
			calls = append(calls, ev.ToolCalls...)
		}
		o.mu.Unlock()
		for _, e := range out {
			o.emit(e)
		}
		return nil
	}

	if mode == chat.ModeNormal {
		err = provider.Chat(ctx, msgs, cb)
	} else {
		err = provider.ChatWithTools(ctx, msgs, o.toolDefs(mode), cb)
	}

	content = contentBuf.String()
	reasoning = reasoningBuf.String()

	// fragment-streaming providers never repeat finished calls as complete
	// ones, so builders materialize only when no complete calls arrived
	if err == nil && len(calls) == 0 {
		for _, id := range order {
			calls = append(calls, builders[id].Build())
		}
	}
	if err != nil && len(order) > 0 {
		partial = builders[order[len(order)-1]].Snapshot()
	}
	return content, reasoning, calls, partial, err
}

// runToolCall appends the call as a tool message, runs the approval pipeline
// and executes it. Returns false when the turn must end (rejection, abort).
func (o *Orchestrator) runToolCall(ctx context.Context, t *chat.Thread, ts *turnState, call *chat.ToolCall) bool {
	o.mu.Lock()
	call.Status = chat.StatusToolRequest
	t.Append(chat.Message{Role: chat.RoleTool, ToolCall: call})
	idx := len(t.Messages) - 1
	needsApproval := tools.ApprovalFor(o.cfg, call.Name) == config.ApprovalRequired
	if needsApproval {
		t.Stream.Running = chat.RunAwaitingUser
	}
	o.mu.Unlock()

	if needsApproval {
		o.emit(Event{ThreadID: t.ID, Kind: EventToolRequest, Call: snapshotCall(call)})
		select {
		case approved := <-ts.approval:
			if !approved {
				o.mu.Lock()
				t.Messages[idx].ToolCall.Status = chat.StatusRejected
				o.mu.Unlock()
				o.emit(Event{ThreadID: t.ID, Kind: EventToolResult, Call: snapshotCall(call)})
				return false
			}
		case <-ctx.Done():
			o.mu.Lock()
			t.Messages[idx].Role = chat.RoleInterruptedTool
			t.Messages[idx].ToolCall.Status = chat.StatusInterrupted
			o.mu.Unlock()
			return false
		}
	}

	o.mu.Lock()
	t.Messages[idx].ToolCall.Status = chat.StatusRunningNow
	t.Stream.Running = chat.RunTool
	o.mu.Unlock()

	result, err := o.service.Execute(ctx, call)

	o.mu.Lock()
	if ctx.Err() != nil {
		t.Messages[idx].Role = chat.RoleInterruptedTool
		t.Messages[idx].ToolCall.Status = chat.StatusInterrupted
		o.mu.Unlock()
		return false
	}
	switch {
	case err != nil:
		var verr *tools.ValidationError
		if errors.As(err, &verr) {
			t.Messages[idx].ToolCall.Status = chat.StatusInvalidParams
		} else {
			t.Messages[idx].ToolCall.Status = chat.StatusToolError
		}
		t.Messages[idx].ToolCall.Error = err.Error()
	default:
		t.Messages[idx].ToolCall.Status = chat.StatusSuccess
		t.Messages[idx].ToolCall.Result = result
	}
	t.Stream.Running = chat.RunIdle
	o.mu.Unlock()
	o.emit(Event{ThreadID: t.ID, Kind: EventToolResult, Call: snapshotCall(call)})
	return true
}

func (o *Orchestrator) toolDefs(mode chat.Mode) []mcptypes.Tool {
	defs := tools.Definitions(mode)
	o.mu.Lock()
	plugins := o.plugins
	o.mu.Unlock()
	if mode == chat.ModeAgent && plugins != nil {
		defs = append(defs, plugins.Tools()...)
	}
	return defs
}

func (o *Orchestrator) finishTurn(t *chat.Thread, ts *turnState) {
	o.mu.Lock()
	t.Stream = chat.StreamState{Err: t.Stream.Err}
	delete(o.running, t.ID)
	store, index := o.store, o.index
	o.mu.Unlock()

	if store != nil {
		if err := store.Save(t); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("agent: save thread %s: %v", t.ID, err)
			}
		} else if index != nil {
			if err := index.IndexThread(t); err != nil && config.DebugLog != nil {
				config.DebugLog.Printf("agent: index thread %s: %v", t.ID, err)
			}
		}
	}
	o.emit(Event{ThreadID: t.ID, Kind: EventTurnDone})
	close(ts.done)
}

func (o *Orchestrator) emit(ev Event) {
	o.mu.Lock()
	fn := o.onEvent
	o.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func snapshotCall(call *chat.ToolCall) *chat.ToolCall {
	cp := *call
	return &cp
}
