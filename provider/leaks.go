package provider

import (
	"encoding/json"
	"regexp"
	"strings"

	"anvil/chat"
)

// Some models print their tool call as text instead of using the tool
// calling API: a JSON blob, an XML envelope, or qwen's function/parameter
// tags. These parsers recover structured calls from that text so the turn
// can continue, and CleanLeakedToolCalls strips the noise before the text
// reaches history or the next provider request.

var (
	leakJSONArrayRegex = regexp.MustCompile(`\[\s*\{\s*"name"\s*:\s*"[^"]+"\s*,\s*"(?:arguments|param|parameters|input)"\s*:\s*\{[^}]*\}\s*\}\s*\]`)
	leakJSONObjRegex   = regexp.MustCompile(`\{\s*"name"\s*:\s*"([^"]+)"\s*,\s*"(?:arguments|param|parameters|input)"\s*:\s*(\{[^}]*\})\s*\}`)
	leakXMLRegex       = regexp.MustCompile(`<(?:tool_call|function_call)>\s*<name>([^<]+)</name>\s*<arguments>([^<]*)</arguments>\s*</(?:tool_call|function_call)>`)
	leakQwenFuncRegex  = regexp.MustCompile(`(?s)<function=([^>]+)>(.*?)</function>`)
	leakQwenParamRegex = regexp.MustCompile(`(?s)<parameter=([^>]+)>(.*?)</parameter>`)
	leakQwenCleanRegex = regexp.MustCompile(`(?s)<function=[^>]+><parameter=[^>]+>.*?</parameter></function>(?:</tool_call>)?`)
	sysReminderRegex   = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)
)

// ParseLeakedJSONToolCalls extracts tool calls leaked as JSON text.
// Handles both single objects and arrays of {"name": ..., "arguments": ...}
// with the common argument-key variations.
func ParseLeakedJSONToolCalls(content string) []*chat.ToolCall {
	var calls []*chat.ToolCall

	for _, match := range leakJSONObjRegex.FindAllStringSubmatch(content, -1) {
		name := match[1]
		var args map[string]any
		if err := json.Unmarshal([]byte(match[2]), &args); err != nil {
			continue
		}
		calls = append(calls, chat.NewToolCall(name, args))
	}

	return calls
}

// ParseLeakedXMLToolCalls extracts tool calls leaked as XML text.
// Handles <tool_call>/<function_call> envelopes and qwen3-coder's
// <function=NAME><parameter=KEY>VALUE</parameter></function> style.
func ParseLeakedXMLToolCalls(content string) []*chat.ToolCall {
	var calls []*chat.ToolCall

	for _, match := range leakXMLRegex.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(match[1])
		argsText := strings.TrimSpace(match[2])

		args := map[string]any{}
		if argsText != "" {
			if err := json.Unmarshal([]byte(argsText), &args); err != nil {
				args = map[string]any{"input": argsText}
			}
		}
		calls = append(calls, chat.NewToolCall(name, args))
	}

	for _, match := range leakQwenFuncRegex.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(match[1])
		args := map[string]any{}
		for _, param := range leakQwenParamRegex.FindAllStringSubmatch(match[2], -1) {
			args[strings.TrimSpace(param[1])] = strings.TrimSpace(param[2])
		}
		calls = append(calls, chat.NewToolCall(name, args))
	}

	return calls
}

// CleanLeakedToolCalls removes leaked JSON/XML tool call text from content
// so it doesn't pollute model context or user display.
func CleanLeakedToolCalls(content string) string {
	content = leakJSONArrayRegex.ReplaceAllString(content, "")
	content = leakJSONObjRegex.ReplaceAllString(content, "")
	content = leakXMLRegex.ReplaceAllString(content, "")
	content = leakQwenCleanRegex.ReplaceAllString(content, "")
	content = sysReminderRegex.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// emitLeakedToolCalls runs both leak parsers over accumulated content and
// forwards anything found, applying mapName (may be nil) to recovered
// names.
func emitLeakedToolCalls(content string, mapName func(string) string, cb chat.StreamCallback) error {
	emit := func(calls []*chat.ToolCall) error {
		if len(calls) == 0 {
			return nil
		}
		if mapName != nil {
			for _, call := range calls {
				call.Name = mapName(call.Name)
			}
		}
		return cb(chat.StreamEvent{ToolCalls: calls})
	}

	if err := emit(ParseLeakedJSONToolCalls(content)); err != nil {
		return err
	}
	return emit(ParseLeakedXMLToolCalls(content))
}
