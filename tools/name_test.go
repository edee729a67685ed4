package tools

import (
	"testing"

	"anvil/config"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		input  string
		want   Name
		wantOK bool
	}{
		{"ls_dir", NameLsDir, true},
		{"read_file", NameReadFile, true},
		{"create_file", NameCreateFile, true},
		{"edit_file", NameEditFile, true},
		{"search_files", NameSearchFiles, true},
		{"run_command", NameRunCommand, true},
		{"delete_everything", "", false},
		{"weather.get_forecast", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseName(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseName(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIsExternal(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"read_file", false},
		{"weather.get_forecast", true},
		{"github.search.issues", true},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsExternal(tt.name); got != tt.want {
			t.Errorf("IsExternal(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDefaultApproval(t *testing.T) {
	tests := []struct {
		name Name
		want config.ApprovalType
	}{
		{NameLsDir, config.ApprovalAuto},
		{NameReadFile, config.ApprovalAuto},
		{NameSearchFiles, config.ApprovalAuto},
		{NameCreateFile, config.ApprovalRequired},
		{NameEditFile, config.ApprovalRequired},
		{NameRunCommand, config.ApprovalRequired},
	}

	for _, tt := range tests {
		if got := tt.name.DefaultApproval(); got != tt.want {
			t.Errorf("%s.DefaultApproval() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestApprovalFor(t *testing.T) {
	cfg := &config.Config{}
	cfg.Tools.AutoApprove = []string{"run_command", "weather.get_forecast"}
	cfg.Tools.AlwaysAsk = []string{"read_file"}

	tests := []struct {
		tool string
		want config.ApprovalType
	}{
		{"ls_dir", config.ApprovalAuto},                // builtin default
		{"edit_file", config.ApprovalRequired},         // builtin default
		{"run_command", config.ApprovalAuto},           // user override
		{"read_file", config.ApprovalRequired},         // always_ask wins
		{"weather.get_forecast", config.ApprovalAuto},  // external override
		{"github.create_issue", config.ApprovalRequired}, // external default
	}

	for _, tt := range tests {
		if got := ApprovalFor(cfg, tt.tool); got != tt.want {
			t.Errorf("ApprovalFor(%q) = %q, want %q", tt.tool, got, tt.want)
		}
	}
}
