package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"anvil/chat"
	"anvil/config"
	"anvil/provider/testutil"
	"anvil/tools"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

type testHarness struct {
	orch      *Orchestrator
	workspace string

	mu     sync.Mutex
	events []Event

	turnDone chan struct{}
	toolReq  chan *chat.ToolCall
}

func newTestHarness(t *testing.T, p chat.Provider, cfgEdit func(*config.Config)) *testHarness {
	t.Helper()
	workspace := t.TempDir()
	cfg := &config.Config{
		DefaultChatMode: "agent",
		Tools:           config.ToolsConfig{Workspace: workspace},
	}
	if cfgEdit != nil {
		cfgEdit(cfg)
	}
	h := &testHarness{
		workspace: workspace,
		turnDone:  make(chan struct{}, 4),
		toolReq:   make(chan *chat.ToolCall, 4),
	}
	h.orch = NewOrchestrator(cfg, p, tools.NewService(workspace, nil))
	h.orch.OnEvent(func(ev Event) {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
		switch ev.Kind {
		case EventTurnDone:
			h.turnDone <- struct{}{}
		case EventToolRequest:
			h.toolReq <- ev.Call
		}
	})
	return h
}

func (h *testHarness) waitTurn(t *testing.T) {
	t.Helper()
	select {
	case <-h.turnDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the turn to finish")
	}
}

func (h *testHarness) waitToolRequest(t *testing.T) *chat.ToolCall {
	t.Helper()
	select {
	case call := <-h.toolReq:
		return call
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a tool request")
		return nil
	}
}

func (h *testHarness) eventKinds() []EventKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	kinds := make([]EventKind, len(h.events))
	for i, ev := range h.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func contentEvents(evs ...chat.StreamEvent) []chat.StreamEvent { return evs }

func toolCallEvent(name string, params map[string]any) chat.StreamEvent {
	return chat.StreamEvent{ToolCalls: []*chat.ToolCall{chat.NewToolCall(name, params)}}
}

func TestAddUserMessageStreamsResponse(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(
			chat.StreamEvent{ContentDelta: "Hello, "},
			chat.StreamEvent{ContentDelta: "world"},
		),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "say hello to the world"); err != nil {
		t.Fatalf("AddUserMessageAndStreamResponse: %v", err)
	}
	h.waitTurn(t)

	if thread.Stream.IsRunning() {
		t.Error("thread still running after the turn finished")
	}
	if h.orch.AnythingRunning() {
		t.Error("AnythingRunning true after the turn finished")
	}
	roles := messageRoles(thread)
	want := []chat.Role{chat.RoleCheckpoint, chat.RoleUser, chat.RoleAssistant}
	if !rolesEqual(roles, want) {
		t.Fatalf("message roles = %v, want %v", roles, want)
	}
	if got := thread.Messages[2].Content; got != "Hello, world" {
		t.Errorf("assistant content = %q, want %q", got, "Hello, world")
	}
	if thread.Name == "" {
		t.Error("thread was not auto-named from the first message")
	}
}

func TestAddRejectedWhileTurnRunning(t *testing.T) {
	release := make(chan struct{})
	p := testutil.NewMockProvider("test-model")
	p.ChatWithToolsFunc = func(ctx context.Context, messages []chat.Message, defs []mcptypes.Tool, cb chat.StreamCallback) error {
		<-release
		return cb(chat.StreamEvent{ContentDelta: "late"})
	}
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("busy")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "first message here"); err != nil {
		t.Fatalf("first add: %v", err)
	}
	msgCount := len(thread.Messages)
	err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "second message here")
	if err == nil {
		t.Fatal("expected an error submitting while a turn is running")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Errorf("error = %q, want mention of a running turn", err)
	}
	if len(thread.Messages) != msgCount {
		t.Error("rejected submission mutated the thread")
	}

	close(release)
	h.waitTurn(t)
}

func TestToolApprovalFlow(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(toolCallEvent("create_file", map[string]any{
			"path":    "notes.txt",
			"content": "remember this",
		})),
		contentEvents(chat.StreamEvent{ContentDelta: "File created."}),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("approve")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "write a note for me please"); err != nil {
		t.Fatalf("add: %v", err)
	}
	req := h.waitToolRequest(t)
	if req.Name != "create_file" {
		t.Fatalf("requested tool = %q, want create_file", req.Name)
	}
	if thread.Stream.Running != chat.RunAwaitingUser {
		t.Errorf("Running = %q while awaiting approval, want %q", thread.Stream.Running, chat.RunAwaitingUser)
	}

	h.orch.ApproveLatestToolRequest(thread.ID)
	h.waitTurn(t)

	toolMsg, _ := thread.LatestToolMessage()
	if toolMsg == nil || toolMsg.ToolCall.Status != chat.StatusSuccess {
		t.Fatalf("tool call did not succeed: %+v", toolMsg)
	}
	data, err := os.ReadFile(filepath.Join(h.workspace, "notes.txt"))
	if err != nil {
		t.Fatalf("reading created file: %v", err)
	}
	if string(data) != "remember this" {
		t.Errorf("file content = %q", data)
	}
	last := thread.Last()
	if last.Role != chat.RoleAssistant || last.Content != "File created." {
		t.Errorf("final message = %+v, want the follow-up assistant text", last)
	}
}

func TestRejectionEndsTurn(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(toolCallEvent("run_command", map[string]any{"command": "rm -rf /"})),
		contentEvents(chat.StreamEvent{ContentDelta: "should never stream"}),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("reject")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "clean up the machine now"); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.waitToolRequest(t)
	h.orch.RejectLatestToolRequest(thread.ID)
	h.waitTurn(t)

	toolMsg, _ := thread.LatestToolMessage()
	if toolMsg.ToolCall.Status != chat.StatusRejected {
		t.Errorf("status = %q, want %q", toolMsg.ToolCall.Status, chat.StatusRejected)
	}
	last := thread.Last()
	if last.Role != chat.RoleTool {
		t.Errorf("turn continued past the rejection: last message %+v", last)
	}
}

func TestApproveIsNoOpWhenNotAwaiting(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(chat.StreamEvent{ContentDelta: "plain answer"}),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("noop")

	// nothing running at all
	h.orch.ApproveLatestToolRequest(thread.ID)
	h.orch.RejectLatestToolRequest(thread.ID)
	h.orch.ApproveLatestToolRequest("no-such-thread")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "just answer a question"); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.waitTurn(t)

	// settled turn, latest tool message absent
	h.orch.ApproveLatestToolRequest(thread.ID)
	if thread.Stream.IsRunning() {
		t.Error("no-op approve restarted the thread")
	}
}

func TestReadOnlyToolAutoApproves(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(toolCallEvent("ls_dir", map[string]any{"path": "."})),
		contentEvents(chat.StreamEvent{ContentDelta: "The directory is empty."}),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("auto")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "what is in this directory"); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.waitTurn(t)

	for _, kind := range h.eventKinds() {
		if kind == EventToolRequest {
			t.Fatal("read-only builtin raised an approval request")
		}
	}
	toolMsg, _ := thread.LatestToolMessage()
	if toolMsg.ToolCall.Status != chat.StatusSuccess {
		t.Errorf("status = %q, want success", toolMsg.ToolCall.Status)
	}
}

func TestInvalidParamsDoesNotEndTurn(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(toolCallEvent("read_file", map[string]any{})),
		contentEvents(chat.StreamEvent{ContentDelta: "I could not read that."}),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("invalid")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "read the mystery file"); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.waitTurn(t)

	toolMsg, _ := thread.LatestToolMessage()
	if toolMsg.ToolCall.Status != chat.StatusInvalidParams {
		t.Errorf("status = %q, want %q", toolMsg.ToolCall.Status, chat.StatusInvalidParams)
	}
	if toolMsg.ToolCall.Error == "" {
		t.Error("invalid call has no error text")
	}
	last := thread.Last()
	if last.Role != chat.RoleAssistant {
		t.Errorf("the model never saw the validation error: last message %+v", last)
	}
}

func TestAbortDuringStreaming(t *testing.T) {
	p := testutil.NewMockProvider("test-model")
	streamed := make(chan struct{})
	p.ChatWithToolsFunc = func(ctx context.Context, messages []chat.Message, defs []mcptypes.Tool, cb chat.StreamCallback) error {
		if err := cb(chat.StreamEvent{ContentDelta: "partial answer"}); err != nil {
			return err
		}
		close(streamed)
		<-ctx.Done()
		return ctx.Err()
	}
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("abort")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "long rambling question"); err != nil {
		t.Fatalf("add: %v", err)
	}
	<-streamed
	h.orch.AbortRunning(thread.ID)

	if thread.Stream.IsRunning() {
		t.Error("thread still running after abort")
	}
	last := thread.Last()
	if last.Role != chat.RoleAssistant || last.Content != "partial answer" {
		t.Errorf("partial content was not committed: %+v", last)
	}
	if thread.Stream.Err != "" {
		t.Errorf("abort left a dismissible error: %q", thread.Stream.Err)
	}

	// safe to call again with nothing in flight
	h.orch.AbortRunning(thread.ID)
	h.orch.AbortRunning("no-such-thread")
}

func TestAbortWhileAwaitingApproval(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(toolCallEvent("run_command", map[string]any{"command": "sleep 100"})),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("abort-approval")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "run something slow please"); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.waitToolRequest(t)
	h.orch.AbortRunning(thread.ID)

	msg, _ := thread.LatestToolMessage()
	if msg.Role != chat.RoleInterruptedTool {
		t.Errorf("role = %q, want %q", msg.Role, chat.RoleInterruptedTool)
	}
	if msg.ToolCall.Status != chat.StatusInterrupted {
		t.Errorf("status = %q, want %q", msg.ToolCall.Status, chat.StatusInterrupted)
	}
	for _, m := range thread.ContextMessages() {
		if m.Role == chat.RoleInterruptedTool {
			t.Error("interrupted tool stub leaked into provider context")
		}
	}
}

func TestIterationCap(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(toolCallEvent("ls_dir", map[string]any{"path": "."})),
	)
	h := newTestHarness(t, p, func(cfg *config.Config) {
		cfg.Tools.MaxIterations = 2
	})
	thread := h.orch.NewThread("cap")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "loop forever listing files"); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.waitTurn(t)

	if !strings.Contains(thread.Stream.Err, "iterations") {
		t.Errorf("Stream.Err = %q, want an iteration-cap notice", thread.Stream.Err)
	}
	var toolMsgs int
	for _, m := range thread.Messages {
		if m.Role == chat.RoleTool {
			toolMsgs++
		}
	}
	if toolMsgs != 2 {
		t.Errorf("executed %d tool calls, want 2", toolMsgs)
	}

	h.orch.DismissError(thread.ID)
	if thread.Stream.Err != "" {
		t.Error("DismissError did not clear the error")
	}
}

func TestProviderErrorSurfacesOnThread(t *testing.T) {
	p := testutil.NewMockProvider("test-model")
	p.ChatWithToolsFunc = func(ctx context.Context, messages []chat.Message, defs []mcptypes.Tool, cb chat.StreamCallback) error {
		return errors.New("connection refused")
	}
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("err")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "this one will not connect"); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.waitTurn(t)

	if thread.Stream.Err != "connection refused" {
		t.Errorf("Stream.Err = %q", thread.Stream.Err)
	}
	if thread.Stream.IsRunning() {
		t.Error("thread stuck running after a provider error")
	}
}

func TestFragmentAccumulation(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(
			chat.StreamEvent{Fragment: &chat.ToolCallFragment{ID: "c1", Name: "create_file"}},
			chat.StreamEvent{Fragment: &chat.ToolCallFragment{Key: "path", ValueDelta: "a.txt", KeyDone: true}},
			chat.StreamEvent{Fragment: &chat.ToolCallFragment{Key: "content", ValueDelta: "hel"}},
			chat.StreamEvent{Fragment: &chat.ToolCallFragment{Key: "content", ValueDelta: "lo", KeyDone: true, CallDone: true}},
		),
		contentEvents(chat.StreamEvent{ContentDelta: "Wrote the file."}),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("fragments")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "write hello into a.txt"); err != nil {
		t.Fatalf("add: %v", err)
	}
	req := h.waitToolRequest(t)
	if req.Params["path"] != "a.txt" || req.Params["content"] != "hello" {
		t.Fatalf("accumulated params = %v", req.Params)
	}
	if !req.DoneKeys["path"] || !req.DoneKeys["content"] {
		t.Errorf("done keys = %v, want both complete", req.DoneKeys)
	}
	h.orch.ApproveLatestToolRequest(thread.ID)
	h.waitTurn(t)

	data, err := os.ReadFile(filepath.Join(h.workspace, "a.txt"))
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("file content = %q", data)
	}
}

func TestEditUserMessageRestartsFromThere(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(chat.StreamEvent{ContentDelta: "first answer"}),
		contentEvents(chat.StreamEvent{ContentDelta: "second answer"}),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("edit")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "original question text"); err != nil {
		t.Fatalf("add: %v", err)
	}
	h.waitTurn(t)

	userIdx := -1
	for i, m := range thread.Messages {
		if m.Role == chat.RoleUser {
			userIdx = i
		}
	}
	if err := h.orch.EditUserMessageAndStreamResponse(thread.ID, userIdx, "revised question text"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	h.waitTurn(t)

	roles := messageRoles(thread)
	want := []chat.Role{chat.RoleCheckpoint, chat.RoleUser, chat.RoleAssistant}
	if !rolesEqual(roles, want) {
		t.Fatalf("message roles after edit = %v, want %v", roles, want)
	}
	if thread.Messages[1].Content != "revised question text" {
		t.Errorf("user message = %q", thread.Messages[1].Content)
	}
	if thread.Messages[2].Content != "second answer" {
		t.Errorf("assistant = %q, want the restarted answer", thread.Messages[2].Content)
	}

	if err := h.orch.EditUserMessageAndStreamResponse(thread.ID, 0, "x"); err == nil {
		t.Error("editing a checkpoint message should fail")
	}
}

func TestJumpToCheckpoint(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(chat.StreamEvent{ContentDelta: "answer one"}),
		contentEvents(chat.StreamEvent{ContentDelta: "answer two"}),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("jump")

	for _, q := range []string{"the first question here", "the second question here"} {
		if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, q); err != nil {
			t.Fatalf("add: %v", err)
		}
		h.waitTurn(t)
	}
	// layout: cp, user, assistant, cp, user, assistant
	secondUserIdx := 4

	idx, err := h.orch.JumpToCheckpointBeforeMessageIdx(thread.ID, secondUserIdx)
	if err != nil {
		t.Fatalf("jump: %v", err)
	}
	if idx != 3 {
		t.Errorf("activated checkpoint %d, want 3", idx)
	}
	if len(thread.Messages) != 6 {
		t.Errorf("jump deleted messages: %d left", len(thread.Messages))
	}
	ghosts := thread.GhostedIndices()
	if len(ghosts) != 2 || ghosts[0] != 4 || ghosts[1] != 5 {
		t.Errorf("ghosted = %v, want [4 5]", ghosts)
	}

	// idempotent
	again, err := h.orch.JumpToCheckpointBeforeMessageIdx(thread.ID, secondUserIdx)
	if err != nil || again != idx {
		t.Errorf("second jump = (%d, %v), want (%d, nil)", again, err, idx)
	}
}

// recordContexts wraps a provider so tests can inspect the exact message
// history each round trip received.
func recordContexts(p *testutil.MockProvider) func() [][]chat.Message {
	var mu sync.Mutex
	var contexts [][]chat.Message
	inner := p.ChatWithToolsFunc
	p.ChatWithToolsFunc = func(ctx context.Context, messages []chat.Message, defs []mcptypes.Tool, cb chat.StreamCallback) error {
		mu.Lock()
		contexts = append(contexts, messages)
		mu.Unlock()
		return inner(ctx, messages, defs, cb)
	}
	return func() [][]chat.Message {
		mu.Lock()
		defer mu.Unlock()
		return contexts
	}
}

func contextContents(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestConversationContinuesAfterJump(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(chat.StreamEvent{ContentDelta: "first answer"}),
		contentEvents(chat.StreamEvent{ContentDelta: "second answer"}),
		contentEvents(chat.StreamEvent{ContentDelta: "third answer"}),
	)
	contexts := recordContexts(p)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("rollback")

	for _, q := range []string{"question one goes here", "question two goes here"} {
		if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, q); err != nil {
			t.Fatalf("add: %v", err)
		}
		h.waitTurn(t)
	}
	// layout: cp, user, assistant, cp, user, assistant
	if _, err := h.orch.JumpToCheckpointBeforeMessageIdx(thread.ID, 4); err != nil {
		t.Fatalf("jump: %v", err)
	}

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "question three after rollback"); err != nil {
		t.Fatalf("add after jump: %v", err)
	}
	h.waitTurn(t)

	all := contexts()
	got := contextContents(all[len(all)-1])
	found := false
	for _, c := range got {
		if c == "question three after rollback" {
			found = true
		}
		if c == "question two goes here" || c == "second answer" {
			t.Errorf("rolled-back message %q sent to the provider", c)
		}
	}
	if !found {
		t.Fatalf("new user message missing from provider context %v", got)
	}

	last := thread.Last()
	if last.Role != chat.RoleAssistant || last.Content != "third answer" {
		t.Fatalf("post-jump turn did not complete: %+v", last)
	}
	if thread.IsGhosted(len(thread.Messages) - 1) {
		t.Error("post-jump messages are ghosted")
	}
	if ghosts := thread.GhostedIndices(); len(ghosts) != 2 {
		t.Errorf("ghosted = %v, want the rolled-back turn only", ghosts)
	}
}

func TestEditWithEarlierCheckpointActive(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(chat.StreamEvent{ContentDelta: "first answer"}),
		contentEvents(chat.StreamEvent{ContentDelta: "second answer"}),
		contentEvents(chat.StreamEvent{ContentDelta: "revised answer"}),
	)
	contexts := recordContexts(p)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("edit-after-jump")

	for _, q := range []string{"question one goes here", "question two goes here"} {
		if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, q); err != nil {
			t.Fatalf("add: %v", err)
		}
		h.waitTurn(t)
	}
	// activate the earliest checkpoint, ghosting everything after it
	if _, err := h.orch.JumpToCheckpointBeforeMessageIdx(thread.ID, 1); err != nil {
		t.Fatalf("jump: %v", err)
	}

	if err := h.orch.EditUserMessageAndStreamResponse(thread.ID, 4, "question two revised"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	h.waitTurn(t)

	all := contexts()
	got := contextContents(all[len(all)-1])
	found := false
	for _, c := range got {
		if c == "question two revised" {
			found = true
		}
	}
	if !found {
		t.Fatalf("edited message missing from provider context %v", got)
	}
	last := thread.Last()
	if last.Role != chat.RoleAssistant || last.Content != "revised answer" {
		t.Fatalf("edit turn did not complete: %+v", last)
	}
	if thread.IsGhosted(len(thread.Messages) - 1) {
		t.Error("messages appended by the edit are ghosted")
	}
}

func messageRoles(t *chat.Thread) []chat.Role {
	roles := make([]chat.Role, len(t.Messages))
	for i, m := range t.Messages {
		roles[i] = m.Role
	}
	return roles
}

func rolesEqual(a, b []chat.Role) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
