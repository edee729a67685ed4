package provider

import (
	"testing"

	"anvil/chat"
)

func TestParseLeakedJSONToolCalls(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCalls int
		wantName  string
		wantArgs  map[string]any
	}{
		{
			name:      "object with arguments key",
			content:   `I'll check that. {"name": "read_file", "arguments": {"path": "main.go"}}`,
			wantCalls: 1,
			wantName:  "read_file",
			wantArgs:  map[string]any{"path": "main.go"},
		},
		{
			name:      "object with parameters key",
			content:   `{"name": "ls_dir", "parameters": {"path": "."}}`,
			wantCalls: 1,
			wantName:  "ls_dir",
			wantArgs:  map[string]any{"path": "."},
		},
		{
			name:      "plain prose",
			content:   "I'll read the file and get back to you.",
			wantCalls: 0,
		},
		{
			name:      "malformed arguments skipped",
			content:   `{"name": "read_file", "arguments": {bad json}}`,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := ParseLeakedJSONToolCalls(tt.content)
			if len(calls) != tt.wantCalls {
				t.Fatalf("got %d calls, want %d", len(calls), tt.wantCalls)
			}
			if tt.wantCalls == 0 {
				return
			}
			assertLeakedCall(t, calls[0], tt.wantName, tt.wantArgs)
		})
	}
}

func TestParseLeakedXMLToolCalls(t *testing.T) {
	t.Run("tool_call envelope", func(t *testing.T) {
		content := `<tool_call><name>search_files</name><arguments>{"pattern": "TODO"}</arguments></tool_call>`
		calls := ParseLeakedXMLToolCalls(content)
		if len(calls) != 1 {
			t.Fatalf("got %d calls, want 1", len(calls))
		}
		assertLeakedCall(t, calls[0], "search_files", map[string]any{"pattern": "TODO"})
	})

	t.Run("qwen function parameter style", func(t *testing.T) {
		content := `<function=edit_file><parameter=path>main.go</parameter><parameter=old_text>foo</parameter></function>`
		calls := ParseLeakedXMLToolCalls(content)
		if len(calls) != 1 {
			t.Fatalf("got %d calls, want 1", len(calls))
		}
		assertLeakedCall(t, calls[0], "edit_file", map[string]any{
			"path":     "main.go",
			"old_text": "foo",
		})
	})

	t.Run("no markup", func(t *testing.T) {
		if calls := ParseLeakedXMLToolCalls("regular response text"); len(calls) != 0 {
			t.Errorf("got %d calls, want 0", len(calls))
		}
	})
}

func TestCleanLeakedToolCalls(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "strips json object",
			content: `Running it now. {"name": "run_command", "arguments": {"command": "ls"}}`,
			want:    "Running it now.",
		},
		{
			name:    "strips xml envelope",
			content: `Before <tool_call><name>ls_dir</name><arguments>{}</arguments></tool_call> after`,
			want:    "Before  after",
		},
		{
			name:    "strips qwen tags",
			content: `Done. <function=read_file><parameter=path>a.go</parameter></function>`,
			want:    "Done.",
		},
		{
			name:    "strips system reminder",
			content: "hello <system-reminder>internal note</system-reminder> world",
			want:    "hello  world",
		},
		{
			name:    "leaves clean text alone",
			content: "Just a normal answer.",
			want:    "Just a normal answer.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanLeakedToolCalls(tt.content); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEmitLeakedToolCalls(t *testing.T) {
	content := `{"name": "read_file", "arguments": {"path": "go.mod"}}`

	var received []*chat.ToolCall
	err := emitLeakedToolCalls(content, func(name string) string { return "fs." + name }, func(ev chat.StreamEvent) error {
		received = append(received, ev.ToolCalls...)
		return nil
	})
	if err != nil {
		t.Fatalf("emitLeakedToolCalls() error = %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("got %d calls, want 1", len(received))
	}
	if received[0].Name != "fs.read_file" {
		t.Errorf("mapName not applied: got %q", received[0].Name)
	}
}

func assertLeakedCall(t *testing.T, call *chat.ToolCall, wantName string, wantArgs map[string]any) {
	t.Helper()
	if call.Name != wantName {
		t.Errorf("name: got %q, want %q", call.Name, wantName)
	}
	if call.Status != chat.StatusToolRequest {
		t.Errorf("status: got %q, want %q", call.Status, chat.StatusToolRequest)
	}
	if len(call.Params) != len(wantArgs) {
		t.Fatalf("params: got %v, want %v", call.Params, wantArgs)
	}
	for k, want := range wantArgs {
		if got := call.Params[k]; got != want {
			t.Errorf("param %q: got %v, want %v", k, got, want)
		}
	}
}
