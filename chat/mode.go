package chat

// Mode controls which tools a turn may use.
type Mode string

const (
	// ModeNormal: plain conversation, no tools offered.
	ModeNormal Mode = "normal"

	// ModeGather: read-only tools only; the model may inspect but not
	// mutate the workspace or run commands.
	ModeGather Mode = "gather"

	// ModeAgent: all tools, plus the narrated-tool-call heuristic detector.
	ModeAgent Mode = "agent"
)

// ParseMode maps a config string to a Mode, defaulting to normal.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeGather:
		return ModeGather
	case ModeAgent:
		return ModeAgent
	default:
		return ModeNormal
	}
}
