package config

// ApprovalType classifies how a tool call gets permission to run.
type ApprovalType string

const (
	// ApprovalAuto runs without asking the user
	ApprovalAuto ApprovalType = "auto"
	// ApprovalRequired pauses the turn until the user approves or rejects
	ApprovalRequired ApprovalType = "required"
)

// ResolveApproval returns the approval type for a tool name, applying
// user overrides on top of the tool's own default. AlwaysAsk wins over
// AutoApprove when a name appears in both lists.
func (c *Config) ResolveApproval(toolName string, toolDefault ApprovalType) ApprovalType {
	for _, name := range c.Tools.AlwaysAsk {
		if name == toolName {
			return ApprovalRequired
		}
	}
	for _, name := range c.Tools.AutoApprove {
		if name == toolName {
			return ApprovalAuto
		}
	}
	return toolDefault
}
