package tools

import (
	"errors"
	"testing"
)

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name    string
		tool    Name
		params  map[string]any
		wantErr bool
	}{
		{
			name:   "ls_dir with no params",
			tool:   NameLsDir,
			params: map[string]any{},
		},
		{
			name:   "ls_dir with path",
			tool:   NameLsDir,
			params: map[string]any{"path": "src"},
		},
		{
			name:    "ls_dir path wrong type",
			tool:    NameLsDir,
			params:  map[string]any{"path": 42},
			wantErr: true,
		},
		{
			name:   "read_file valid",
			tool:   NameReadFile,
			params: map[string]any{"path": "main.go"},
		},
		{
			name:    "read_file missing path",
			tool:    NameReadFile,
			params:  map[string]any{},
			wantErr: true,
		},
		{
			name:    "read_file empty path",
			tool:    NameReadFile,
			params:  map[string]any{"path": ""},
			wantErr: true,
		},
		{
			name:   "create_file without content",
			tool:   NameCreateFile,
			params: map[string]any{"path": "new.txt"},
		},
		{
			name:    "create_file content wrong type",
			tool:    NameCreateFile,
			params:  map[string]any{"path": "new.txt", "content": []string{"x"}},
			wantErr: true,
		},
		{
			name:   "edit_file valid with empty replacement",
			tool:   NameEditFile,
			params: map[string]any{"path": "a.go", "old_text": "foo", "new_text": ""},
		},
		{
			name:    "edit_file missing old_text",
			tool:    NameEditFile,
			params:  map[string]any{"path": "a.go", "new_text": "bar"},
			wantErr: true,
		},
		{
			name:   "search_files valid",
			tool:   NameSearchFiles,
			params: map[string]any{"pattern": "TODO"},
		},
		{
			name:    "search_files missing pattern",
			tool:    NameSearchFiles,
			params:  map[string]any{"path": "src"},
			wantErr: true,
		},
		{
			name:   "run_command valid",
			tool:   NameRunCommand,
			params: map[string]any{"command": "ls"},
		},
		{
			name:    "run_command command wrong type",
			tool:    NameRunCommand,
			params:  map[string]any{"command": true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.tool, tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("error %T is not a *ValidationError", err)
				}
			}
		})
	}
}
