package agent

import (
	"regexp"
	"strings"

	"anvil/chat"
	"anvil/tools"

	"github.com/google/uuid"
)

// Some models narrate an action in prose instead of emitting a structured
// call ("I'll run `go test` now"). The detector scans assistant text for
// that phrasing and synthesizes a best-effort call; false positives and
// negatives are both tolerated since every candidate still goes through
// the approval pipeline.

// minNarratedLen skips detection on very short text to avoid matching
// greetings.
const minNarratedLen = 20

type narratedPattern struct {
	re    *regexp.Regexp
	build func(m []string) *chat.ToolCall
}

// ordered: first match wins
var narratedPatterns = []narratedPattern{
	{
		re: regexp.MustCompile("(?i)\\b(?:run|running|execute|executing|start)\\b(?:\\s+the)?(?:\\s+command)?[:\\s]*`([^`\n]+)`"),
		build: func(m []string) *chat.ToolCall {
			return narratedCall(tools.NameRunCommand, map[string]any{"command": strings.TrimSpace(m[1])})
		},
	},
	{
		re: regexp.MustCompile("(?i)\\bcreat(?:e|ing)\\b(?:\\s+a)?(?:\\s+new)?\\s+file(?:\\s+(?:named|called|at))?\\s+[`\"]?([\\w./\\\\-]+)[`\"]?"),
		build: func(m []string) *chat.ToolCall {
			return narratedCall(tools.NameCreateFile, map[string]any{"path": m[1]})
		},
	},
	{
		re: regexp.MustCompile("(?i)\\b(?:edit|editing|modify|modifying|update|updating)\\b(?:\\s+the)?\\s+file\\s+[`\"]?([\\w./\\\\-]+)[`\"]?"),
		build: func(m []string) *chat.ToolCall {
			return narratedCall(tools.NameEditFile, map[string]any{"path": m[1]})
		},
	},
	{
		re: regexp.MustCompile("(?i)\\bread(?:ing)?\\b(?:\\s+the)?(?:\\s+contents?\\s+of)?\\s+(?:the\\s+)?file\\s+[`\"]?([\\w./\\\\-]+)[`\"]?"),
		build: func(m []string) *chat.ToolCall {
			return narratedCall(tools.NameReadFile, map[string]any{"path": m[1]})
		},
	},
	{
		re: regexp.MustCompile("(?i)\\blist(?:ing)?\\b(?:\\s+the)?\\s+(?:directory|folder|files)(?:\\s+(?:in|of|at|under))?\\s*[`\"]?([\\w./\\\\-]*)[`\"]?"),
		build: func(m []string) *chat.ToolCall {
			path := m[1]
			if path == "" {
				path = "."
			}
			return narratedCall(tools.NameLsDir, map[string]any{"path": path})
		},
	},
	{
		re: regexp.MustCompile("(?i)\\bsearch(?:ing)?\\b(?:\\s+the\\s+(?:codebase|files|workspace))?(?:\\s+for)?\\s+[`\"]([^`\"\n]+)[`\"]"),
		build: func(m []string) *chat.ToolCall {
			return narratedCall(tools.NameSearchFiles, map[string]any{"pattern": m[1]})
		},
	},
}

// DetectNarratedToolCall scans assistant text for natural-language phrasing
// that implies an action and synthesizes a tool call when the model failed
// to emit one in the expected format. Active only in agent mode; returns
// nil when nothing matches.
func DetectNarratedToolCall(text string, mode chat.Mode) *chat.ToolCall {
	if mode != chat.ModeAgent {
		return nil
	}
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minNarratedLen {
		return nil
	}
	for _, p := range narratedPatterns {
		if m := p.re.FindStringSubmatch(trimmed); m != nil {
			return p.build(m)
		}
	}
	return nil
}

// narratedCall builds a synthesized candidate. DoneKeys stays empty: the
// parameters were guessed from prose, not received from the model.
func narratedCall(name tools.Name, params map[string]any) *chat.ToolCall {
	return &chat.ToolCall{
		ID:       uuid.New().String(),
		Name:     string(name),
		Params:   params,
		DoneKeys: map[string]bool{},
		Status:   chat.StatusToolRequest,
	}
}
