package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"anvil/chat"
	"anvil/config"
)

// ExternalCaller executes a namespaced plugin tool. The MCP aggregator
// satisfies this; the indirection keeps tools free of the plugin host.
type ExternalCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Service executes tool calls against a workspace directory. All file
// paths are resolved inside the workspace; attempts to escape it fail
// before touching the filesystem.
type Service struct {
	workspace string
	external  ExternalCaller
}

// NewService creates a tool execution service rooted at workspace.
// external may be nil when no MCP plugins are configured.
func NewService(workspace string, external ExternalCaller) *Service {
	return &Service{
		workspace: workspace,
		external:  external,
	}
}

// Workspace returns the directory tool calls operate in.
func (s *Service) Workspace() string {
	return s.workspace
}

// Execute runs a tool call and returns its textual result. A
// *ValidationError return means the call was malformed (invalid_params);
// any other error is a runtime tool failure (tool_error). Execution
// honors ctx cancellation, though a tool that ignores it still counts as
// interrupted once ctx is done.
func (s *Service) Execute(ctx context.Context, call *chat.ToolCall) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Tools] Executing %s with %d parameters", call.Name, len(call.Params))
	}

	if IsExternal(call.Name) {
		if s.external == nil {
			return "", fmt.Errorf("no plugin host available for tool %q", call.Name)
		}
		return s.external.CallTool(ctx, call.Name, call.Params)
	}

	name, ok := ParseName(call.Name)
	if !ok {
		return "", &ValidationError{Tool: call.Name, Reason: "unknown tool"}
	}
	if err := ValidateParams(name, call.Params); err != nil {
		return "", err
	}

	switch name {
	case NameLsDir:
		return s.lsDir(call.Params)
	case NameReadFile:
		return s.readFile(call.Params)
	case NameCreateFile:
		return s.createFile(call.Params)
	case NameEditFile:
		return s.editFile(call.Params)
	case NameSearchFiles:
		return s.searchFiles(ctx, call.Params)
	case NameRunCommand:
		return s.runCommand(ctx, call.Params)
	}
	return "", &ValidationError{Tool: call.Name, Reason: "unknown tool"}
}

// resolvePath joins a tool-supplied path onto the workspace root and
// rejects anything that resolves outside it.
func (s *Service) resolvePath(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path %q must be relative to the workspace", rel)
	}

	abs := filepath.Join(s.workspace, filepath.Clean(rel))
	inside, err := filepath.Rel(s.workspace, abs)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return abs, nil
}
