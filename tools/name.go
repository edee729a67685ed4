package tools

import (
	"strings"

	"anvil/config"
)

// Name identifies a built-in tool. The set is closed: every dispatch site
// switches over these constants exhaustively, and anything else must be an
// external (MCP) tool.
type Name string

const (
	NameLsDir       Name = "ls_dir"
	NameReadFile    Name = "read_file"
	NameCreateFile  Name = "create_file"
	NameEditFile    Name = "edit_file"
	NameSearchFiles Name = "search_files"
	NameRunCommand  Name = "run_command"
)

// Builtins returns every built-in tool name in definition order.
func Builtins() []Name {
	return []Name{
		NameLsDir,
		NameReadFile,
		NameCreateFile,
		NameEditFile,
		NameSearchFiles,
		NameRunCommand,
	}
}

// ParseName maps a tool-call name to a built-in Name. External tool names
// never parse; check IsExternal first.
func ParseName(s string) (Name, bool) {
	switch Name(s) {
	case NameLsDir, NameReadFile, NameCreateFile, NameEditFile, NameSearchFiles, NameRunCommand:
		return Name(s), true
	default:
		return "", false
	}
}

// IsExternal reports whether a tool-call name refers to an MCP plugin
// tool. Plugin tools are namespaced "pluginID.toolName"; builtin names
// never contain a dot.
func IsExternal(name string) bool {
	return strings.Contains(name, ".")
}

// ReadOnly reports whether the tool only inspects the workspace. Gather
// mode offers exactly the read-only builtins.
func (n Name) ReadOnly() bool {
	switch n {
	case NameLsDir, NameReadFile, NameSearchFiles:
		return true
	case NameCreateFile, NameEditFile, NameRunCommand:
		return false
	}
	return false
}

// DefaultApproval returns the approval class a tool gets before user
// overrides: read-only builtins run unprompted, everything else asks.
func (n Name) DefaultApproval() config.ApprovalType {
	if n.ReadOnly() {
		return config.ApprovalAuto
	}
	return config.ApprovalRequired
}

// ApprovalFor resolves the effective approval for any tool-call name,
// builtin or external, applying user config overrides. External tools and
// unknown names always default to asking.
func ApprovalFor(cfg *config.Config, toolName string) config.ApprovalType {
	toolDefault := config.ApprovalRequired
	if name, ok := ParseName(toolName); ok {
		toolDefault = name.DefaultApproval()
	}
	return cfg.ResolveApproval(toolName, toolDefault)
}
