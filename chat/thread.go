package chat

import (
	"time"

	"github.com/google/uuid"
)

// Thread is one independent conversation: an ordered, append-only message
// history plus the current streaming state and checkpoint pointer. Threads
// are owned by the orchestrator and mutated only through its API.
type Thread struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `json:"messages"`

	// CheckpointIdx is the index of the active checkpoint message, or -1.
	// Messages between the active checkpoint and GhostEnd are ghosted:
	// rendered deemphasized and excluded from provider context, but never
	// deleted.
	CheckpointIdx int `json:"checkpoint_idx"`

	// GhostEnd is the end (exclusive) of the ghosted range, frozen at
	// jump time so messages appended afterwards stay live. -1 when no
	// checkpoint is active.
	GhostEnd int `json:"ghost_end"`

	Stream StreamState `json:"-"`
}

// NewThread creates an empty thread.
func NewThread(name string) *Thread {
	now := time.Now()
	return &Thread{
		ID:            uuid.New().String(),
		Name:          name,
		CreatedAt:     now,
		UpdatedAt:     now,
		CheckpointIdx: -1,
		GhostEnd:      -1,
	}
}

// Append adds a committed message to the history.
func (t *Thread) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = time.Now()
}

// AppendCheckpoint adds a checkpoint marker message.
func (t *Thread) AppendCheckpoint() {
	t.Append(Message{Role: RoleCheckpoint})
}

// Last returns the last message, or nil for an empty thread.
func (t *Thread) Last() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	return &t.Messages[len(t.Messages)-1]
}

// LatestToolMessage returns the most recent tool message and its index, or
// (nil, -1) if the thread has none.
func (t *Thread) LatestToolMessage() (*Message, int) {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleTool || t.Messages[i].Role == RoleInterruptedTool {
			return &t.Messages[i], i
		}
	}
	return nil, -1
}

// Truncate drops messages from idx onward. Used by message editing; the
// caller is responsible for ensuring no turn is running.
func (t *Thread) Truncate(idx int) {
	if idx < 0 || idx >= len(t.Messages) {
		return
	}
	t.Messages = t.Messages[:idx]
	if t.CheckpointIdx >= idx {
		t.CheckpointIdx = -1
		t.GhostEnd = -1
	} else if t.GhostEnd > idx {
		t.GhostEnd = idx
	}
	t.UpdatedAt = time.Now()
}

// SetCheckpointBefore activates the nearest checkpoint at or before msgIdx
// and freezes the ghosted range at the current history length, so the
// conversation can continue live past the rollback. Returns the activated
// checkpoint index, or -1 when none exists in range. Calling twice with the
// same index yields the same ghosted set.
func (t *Thread) SetCheckpointBefore(msgIdx int) int {
	if msgIdx > len(t.Messages) {
		msgIdx = len(t.Messages)
	}
	for i := msgIdx - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleCheckpoint {
			t.CheckpointIdx = i
			t.GhostEnd = len(t.Messages)
			return i
		}
	}
	t.CheckpointIdx = -1
	t.GhostEnd = -1
	return -1
}

// ClearCheckpoint deactivates the checkpoint pointer, un-ghosting history.
func (t *Thread) ClearCheckpoint() {
	t.CheckpointIdx = -1
	t.GhostEnd = -1
}

// IsGhosted reports whether the message at idx falls inside the ghosted
// range. Messages appended after a jump land past GhostEnd and stay live.
func (t *Thread) IsGhosted(idx int) bool {
	return t.CheckpointIdx >= 0 && idx > t.CheckpointIdx && idx < t.GhostEnd
}

// GhostedIndices returns the indices of all ghosted messages.
func (t *Thread) GhostedIndices() []int {
	if t.CheckpointIdx < 0 {
		return nil
	}
	end := t.GhostEnd
	if end > len(t.Messages) {
		end = len(t.Messages)
	}
	var out []int
	for i := t.CheckpointIdx + 1; i < end; i++ {
		out = append(out, i)
	}
	return out
}

// ContextMessages returns the messages to send to a provider: checkpoint
// markers, interrupted tool stubs and ghosted messages are excluded.
func (t *Thread) ContextMessages() []Message {
	var out []Message
	for i, msg := range t.Messages {
		if t.IsGhosted(i) {
			continue
		}
		switch msg.Role {
		case RoleCheckpoint, RoleInterruptedTool:
			continue
		}
		out = append(out, msg)
	}
	return out
}
