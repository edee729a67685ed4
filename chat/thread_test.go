package chat

import (
	"testing"
)

func TestThreadCheckpointGhosting(t *testing.T) {
	thread := NewThread("test")
	thread.AppendCheckpoint() // 0
	thread.Append(Message{Role: RoleUser, Content: "first"})       // 1
	thread.Append(Message{Role: RoleAssistant, Content: "answer"}) // 2
	thread.AppendCheckpoint() // 3
	thread.Append(Message{Role: RoleUser, Content: "second"})       // 4
	thread.Append(Message{Role: RoleAssistant, Content: "another"}) // 5

	if thread.CheckpointIdx != -1 {
		t.Fatalf("new thread has active checkpoint %d", thread.CheckpointIdx)
	}

	idx := thread.SetCheckpointBefore(4)
	if idx != 3 {
		t.Fatalf("SetCheckpointBefore(4) = %d, want 3", idx)
	}
	for i := 0; i <= 3; i++ {
		if thread.IsGhosted(i) {
			t.Errorf("message %d ghosted, want visible", i)
		}
	}
	for i := 4; i <= 5; i++ {
		if !thread.IsGhosted(i) {
			t.Errorf("message %d visible, want ghosted", i)
		}
	}
	if got := thread.GhostedIndices(); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("GhostedIndices = %v, want [4 5]", got)
	}
	if len(thread.Messages) != 6 {
		t.Errorf("ghosting deleted messages: %d left", len(thread.Messages))
	}

	// idempotent
	if again := thread.SetCheckpointBefore(4); again != 3 {
		t.Errorf("second SetCheckpointBefore(4) = %d, want 3", again)
	}

	// jump to the very first checkpoint
	if idx := thread.SetCheckpointBefore(1); idx != 0 {
		t.Errorf("SetCheckpointBefore(1) = %d, want 0", idx)
	}
	if got := thread.GhostedIndices(); len(got) != 5 {
		t.Errorf("ghosted %d messages, want 5", len(got))
	}

	// no checkpoint in range
	if idx := thread.SetCheckpointBefore(0); idx != -1 {
		t.Errorf("SetCheckpointBefore(0) = %d, want -1", idx)
	}

	thread.SetCheckpointBefore(4)
	thread.ClearCheckpoint()
	if thread.IsGhosted(5) {
		t.Error("ClearCheckpoint left messages ghosted")
	}
}

func TestMessagesAfterJumpStayLive(t *testing.T) {
	thread := NewThread("test")
	thread.AppendCheckpoint() // 0
	thread.Append(Message{Role: RoleUser, Content: "first"})       // 1
	thread.Append(Message{Role: RoleAssistant, Content: "answer"}) // 2
	thread.AppendCheckpoint() // 3
	thread.Append(Message{Role: RoleUser, Content: "second"})      // 4
	thread.Append(Message{Role: RoleAssistant, Content: "stale"})  // 5

	if idx := thread.SetCheckpointBefore(4); idx != 3 {
		t.Fatalf("SetCheckpointBefore(4) = %d, want 3", idx)
	}

	// the conversation continues after the rollback
	thread.AppendCheckpoint() // 6
	thread.Append(Message{Role: RoleUser, Content: "take two"})   // 7
	thread.Append(Message{Role: RoleAssistant, Content: "fresh"}) // 8

	for i := 6; i <= 8; i++ {
		if thread.IsGhosted(i) {
			t.Errorf("post-jump message %d ghosted, want live", i)
		}
	}
	if got := thread.GhostedIndices(); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("GhostedIndices = %v, want [4 5]", got)
	}

	ctx := thread.ContextMessages()
	var contents []string
	for _, m := range ctx {
		contents = append(contents, m.Content)
	}
	want := []string{"first", "answer", "take two", "fresh"}
	if len(contents) != len(want) {
		t.Fatalf("context = %v, want %v", contents, want)
	}
	for i := range want {
		if contents[i] != want[i] {
			t.Fatalf("context = %v, want %v", contents, want)
		}
	}
}

func TestContextMessagesFiltering(t *testing.T) {
	thread := NewThread("test")
	thread.AppendCheckpoint()
	thread.Append(Message{Role: RoleUser, Content: "question"})
	thread.Append(Message{Role: RoleAssistant, Content: "let me check"})
	thread.Append(Message{Role: RoleInterruptedTool, ToolCall: &ToolCall{Name: "run_command", Status: StatusInterrupted}})
	thread.AppendCheckpoint()
	thread.Append(Message{Role: RoleUser, Content: "try again"})
	thread.Append(Message{Role: RoleAssistant, Content: "done"})

	ctx := thread.ContextMessages()
	if len(ctx) != 4 {
		t.Fatalf("ContextMessages len = %d, want 4", len(ctx))
	}
	for _, m := range ctx {
		switch m.Role {
		case RoleCheckpoint, RoleInterruptedTool:
			t.Errorf("role %q leaked into provider context", m.Role)
		}
	}

	// ghosted messages drop out too
	thread.SetCheckpointBefore(5)
	ctx = thread.ContextMessages()
	if len(ctx) != 2 {
		t.Fatalf("ContextMessages after jump = %d, want 2", len(ctx))
	}
	if ctx[1].Content != "let me check" {
		t.Errorf("last context message = %q", ctx[1].Content)
	}
}

func TestTruncate(t *testing.T) {
	thread := NewThread("test")
	thread.AppendCheckpoint()
	thread.Append(Message{Role: RoleUser, Content: "one"})
	thread.Append(Message{Role: RoleAssistant, Content: "two"})
	thread.SetCheckpointBefore(1)

	thread.Truncate(1)
	if len(thread.Messages) != 1 {
		t.Fatalf("len = %d, want 1", len(thread.Messages))
	}
	if thread.CheckpointIdx != 0 {
		t.Errorf("CheckpointIdx = %d, want 0 kept", thread.CheckpointIdx)
	}

	// the ghost range shrinks with the truncation, so messages appended
	// in place of the removed ones are live
	thread.Append(Message{Role: RoleUser, Content: "replacement"})
	if thread.IsGhosted(1) {
		t.Error("message appended after truncation is ghosted")
	}

	thread.Truncate(0)
	if len(thread.Messages) != 0 {
		t.Fatalf("len = %d, want 0", len(thread.Messages))
	}
	if thread.CheckpointIdx != -1 {
		t.Errorf("CheckpointIdx = %d, want reset", thread.CheckpointIdx)
	}

	// out of range is a no-op
	thread.Truncate(5)
	thread.Truncate(-1)
}

func TestLatestToolMessage(t *testing.T) {
	thread := NewThread("test")
	if msg, idx := thread.LatestToolMessage(); msg != nil || idx != -1 {
		t.Fatalf("empty thread returned (%v, %d)", msg, idx)
	}

	thread.Append(Message{Role: RoleUser, Content: "go"})
	thread.Append(Message{Role: RoleTool, ToolCall: &ToolCall{Name: "ls_dir", Status: StatusSuccess}})
	thread.Append(Message{Role: RoleInterruptedTool, ToolCall: &ToolCall{Name: "run_command", Status: StatusInterrupted}})
	thread.Append(Message{Role: RoleAssistant, Content: "partial"})

	msg, idx := thread.LatestToolMessage()
	if idx != 2 {
		t.Fatalf("idx = %d, want 2", idx)
	}
	if msg.ToolCall.Name != "run_command" {
		t.Errorf("tool = %q, want run_command", msg.ToolCall.Name)
	}
}
