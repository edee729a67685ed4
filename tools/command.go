package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// maxCommandOutput caps run_command output fed back to the model.
const maxCommandOutput = 64 * 1024

// truncateOutput cuts text to at most max bytes without splitting a
// multi-byte rune.
func truncateOutput(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func (s *Service) runCommand(ctx context.Context, params map[string]any) (string, error) {
	command := GetStringParam(params, "command", "")

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.workspace

	output, err := cmd.CombinedOutput()
	text := strings.TrimRight(string(output), "\n")
	if len(text) > maxCommandOutput {
		text = truncateOutput(text, maxCommandOutput) + "\n(output truncated)"
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return text, ctxErr
	}
	if err != nil {
		if text != "" {
			return "", fmt.Errorf("command failed: %w\n%s", err, text)
		}
		return "", fmt.Errorf("command failed: %w", err)
	}

	if text == "" {
		return "(no output)", nil
	}
	return text, nil
}
