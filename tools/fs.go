package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxReadSize caps read_file output so a model can't pull a huge blob
// into context.
const maxReadSize = 256 * 1024

func (s *Service) lsDir(params map[string]any) (string, error) {
	rel := GetStringParam(params, "path", ".")
	dir, err := s.resolvePath(rel)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	if len(entries) == 0 {
		return "(empty directory)", nil
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&b, "%s/\n", entry.Name())
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(&b, "%s\n", entry.Name())
			continue
		}
		fmt.Fprintf(&b, "%s (%d bytes)\n", entry.Name(), info.Size())
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (s *Service) readFile(params map[string]any) (string, error) {
	path, err := s.resolvePath(GetStringParam(params, "path", ""))
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory, not a file", GetStringParam(params, "path", ""))
	}
	if info.Size() > maxReadSize {
		return "", fmt.Errorf("file is too large to read (%d bytes, limit %d)", info.Size(), maxReadSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

func (s *Service) createFile(params map[string]any) (string, error) {
	rel := GetStringParam(params, "path", "")
	path, err := s.resolvePath(rel)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("file %s already exists", rel)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create parent directory: %w", err)
	}

	content := GetStringParam(params, "content", "")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	return fmt.Sprintf("Created %s (%d bytes)", rel, len(content)), nil
}

func (s *Service) editFile(params map[string]any) (string, error) {
	rel := GetStringParam(params, "path", "")
	path, err := s.resolvePath(rel)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	oldText := GetStringParam(params, "old_text", "")
	newText := GetStringParam(params, "new_text", "")

	content := string(data)
	switch count := strings.Count(content, oldText); count {
	case 0:
		return "", fmt.Errorf("old_text not found in %s", rel)
	case 1:
		// fall through to replace
	default:
		return "", fmt.Errorf("old_text matches %d locations in %s, must match exactly one", count, rel)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return fmt.Sprintf("Edited %s", rel), nil
}
