package tools

import (
	"fmt"
)

// ValidationError marks a tool call whose parameters do not fit the
// tool's schema. The orchestrator maps it to the invalid_params status
// instead of tool_error, because it is a protocol failure by the model,
// not a runtime failure of the tool.
type ValidationError struct {
	Tool   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameters for %s: %s", e.Tool, e.Reason)
}

// ValidateParams checks a built-in tool's parameters against its schema
// before execution: required keys present, values of the right type.
func ValidateParams(name Name, params map[string]any) error {
	switch name {
	case NameLsDir:
		return requireStrings(name, params, nil, []string{"path"})
	case NameReadFile:
		return requireStrings(name, params, []string{"path"}, nil)
	case NameCreateFile:
		return requireStrings(name, params, []string{"path"}, []string{"content"})
	case NameEditFile:
		return requireStrings(name, params, []string{"path", "old_text", "new_text"}, nil)
	case NameSearchFiles:
		return requireStrings(name, params, []string{"pattern"}, []string{"path"})
	case NameRunCommand:
		return requireStrings(name, params, []string{"command"}, nil)
	}
	return &ValidationError{Tool: string(name), Reason: "unknown tool"}
}

// requireStrings enforces that the required keys are present non-empty
// strings and the optional keys, when present, are strings.
func requireStrings(name Name, params map[string]any, required, optional []string) error {
	for _, key := range required {
		value, ok := params[key]
		if !ok {
			return &ValidationError{Tool: string(name), Reason: fmt.Sprintf("missing required parameter %q", key)}
		}
		s, ok := value.(string)
		if !ok {
			return &ValidationError{Tool: string(name), Reason: fmt.Sprintf("parameter %q must be a string", key)}
		}
		if s == "" && key != "content" && key != "new_text" {
			return &ValidationError{Tool: string(name), Reason: fmt.Sprintf("parameter %q must not be empty", key)}
		}
	}
	for _, key := range optional {
		if value, ok := params[key]; ok {
			if _, ok := value.(string); !ok {
				return &ValidationError{Tool: string(name), Reason: fmt.Sprintf("parameter %q must be a string", key)}
			}
		}
	}
	return nil
}

// GetStringParam reads a string parameter with a default.
func GetStringParam(params map[string]any, key, fallback string) string {
	if value, ok := params[key].(string); ok {
		return value
	}
	return fallback
}
