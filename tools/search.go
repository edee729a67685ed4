package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	maxSearchMatches  = 100
	maxSearchLineSize = 1024 * 1024
)

// skipDirs are directories never worth searching.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	".cache":       true,
}

func (s *Service) searchFiles(ctx context.Context, params map[string]any) (string, error) {
	pattern, err := regexp.Compile(GetStringParam(params, "pattern", ""))
	if err != nil {
		return "", &ValidationError{Tool: string(NameSearchFiles), Reason: fmt.Sprintf("bad pattern: %v", err)}
	}

	root, err := s.resolvePath(GetStringParam(params, "path", "."))
	if err != nil {
		return "", err
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(matches) >= maxSearchMatches {
			return filepath.SkipAll
		}

		rel, relErr := filepath.Rel(s.workspace, path)
		if relErr != nil {
			rel = path
		}
		fileMatches, scanErr := scanFile(path, rel, pattern, maxSearchMatches-len(matches))
		if scanErr != nil {
			return nil
		}
		matches = append(matches, fileMatches...)
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}

	if len(matches) == 0 {
		return "No matches found.", nil
	}

	result := strings.Join(matches, "\n")
	if len(matches) >= maxSearchMatches {
		result += fmt.Sprintf("\n(stopped after %d matches)", maxSearchMatches)
	}
	return result, nil
}

func scanFile(path, rel string, pattern *regexp.Regexp, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxSearchLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			// binary file, skip the rest
			return matches, nil
		}
		if pattern.MatchString(line) {
			matches = append(matches, fmt.Sprintf("%s:%d: %s", rel, lineNo, strings.TrimSpace(line)))
			if len(matches) >= limit {
				return matches, nil
			}
		}
	}
	return matches, scanner.Err()
}
