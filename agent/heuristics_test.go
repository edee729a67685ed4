package agent

import (
	"testing"

	"anvil/chat"
	"anvil/provider/testutil"
)

func TestDetectNarratedToolCall(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		mode       chat.Mode
		wantTool   string
		wantParams map[string]string
	}{
		{
			name: "inactive outside agent mode",
			text: "I'll run `go test ./...` to check the build.",
			mode: chat.ModeGather,
		},
		{
			name: "short text skipped",
			text: "run `ls` now",
			mode: chat.ModeAgent,
		},
		{
			name:       "run command",
			text:       "Let me run the command: `go test ./...` and see what happens.",
			mode:       chat.ModeAgent,
			wantTool:   "run_command",
			wantParams: map[string]string{"command": "go test ./..."},
		},
		{
			name:       "execute variant",
			text:       "I'm going to execute `make lint` before committing anything.",
			mode:       chat.ModeAgent,
			wantTool:   "run_command",
			wantParams: map[string]string{"command": "make lint"},
		},
		{
			name:       "create file",
			text:       "I'll create a file named config/settings.toml with the defaults.",
			mode:       chat.ModeAgent,
			wantTool:   "create_file",
			wantParams: map[string]string{"path": "config/settings.toml"},
		},
		{
			name:       "edit file",
			text:       "Next I will edit the file main.go to add the missing import.",
			mode:       chat.ModeAgent,
			wantTool:   "edit_file",
			wantParams: map[string]string{"path": "main.go"},
		},
		{
			name:       "read file",
			text:       "First, let me read the file internal/server.go for context.",
			mode:       chat.ModeAgent,
			wantTool:   "read_file",
			wantParams: map[string]string{"path": "internal/server.go"},
		},
		{
			name:       "list directory",
			text:       "I'm going to list the directory `src` to see the layout.",
			mode:       chat.ModeAgent,
			wantTool:   "ls_dir",
			wantParams: map[string]string{"path": "src"},
		},
		{
			name:       "search for pattern",
			text:       "Let me search the codebase for `func main` to find entry points.",
			mode:       chat.ModeAgent,
			wantTool:   "search_files",
			wantParams: map[string]string{"pattern": "func main"},
		},
		{
			name: "plain prose does not match",
			text: "The refactor went smoothly and everything looks correct to me.",
			mode: chat.ModeAgent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectNarratedToolCall(tt.text, tt.mode)
			if tt.wantTool == "" {
				if got != nil {
					t.Fatalf("detected %q in %q, want no detection", got.Name, tt.text)
				}
				return
			}
			if got == nil {
				t.Fatalf("no detection in %q, want %q", tt.text, tt.wantTool)
			}
			if got.Name != tt.wantTool {
				t.Errorf("tool = %q, want %q", got.Name, tt.wantTool)
			}
			for key, want := range tt.wantParams {
				if v, _ := got.Params[key].(string); v != want {
					t.Errorf("params[%q] = %q, want %q", key, v, want)
				}
			}
			if got.ID == "" {
				t.Error("synthesized call has no identifier")
			}
			if len(got.DoneKeys) != 0 {
				t.Errorf("synthesized call marked keys done: %v", got.DoneKeys)
			}
			if got.Status != chat.StatusToolRequest {
				t.Errorf("status = %q, want %q", got.Status, chat.StatusToolRequest)
			}
		})
	}
}

func TestNarratedCallRoutedThroughApproval(t *testing.T) {
	p := testutil.NewScriptedProvider("test-model",
		contentEvents(chat.StreamEvent{
			ContentDelta: "I'm going to run the command: `echo narrated` for you.",
		}),
		contentEvents(chat.StreamEvent{ContentDelta: "Done."}),
	)
	h := newTestHarness(t, p, nil)
	thread := h.orch.NewThread("narrated")

	if err := h.orch.AddUserMessageAndStreamResponse(thread.ID, "echo something for me please"); err != nil {
		t.Fatalf("add: %v", err)
	}
	req := h.waitToolRequest(t)
	if req.Name != "run_command" {
		t.Fatalf("synthesized tool = %q, want run_command", req.Name)
	}
	h.orch.ApproveLatestToolRequest(thread.ID)
	h.waitTurn(t)

	toolMsg, _ := thread.LatestToolMessage()
	if toolMsg.ToolCall.Status != chat.StatusSuccess {
		t.Fatalf("status = %q: %s", toolMsg.ToolCall.Status, toolMsg.ToolCall.Error)
	}
	if toolMsg.ToolCall.Result != "narrated\n" {
		t.Errorf("result = %q", toolMsg.ToolCall.Result)
	}
}
