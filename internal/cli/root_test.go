package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantErr: false,
		},
		{
			name:    "help flag",
			args:    []string{"--help"},
			wantErr: false,
		},
		{
			name:    "unknown command",
			args:    []string{"nonexistent-command"},
			wantErr: true,
		},
		{
			name:    "history without room",
			args:    []string{"history"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			var stdout, stderr bytes.Buffer
			rootCmd.SetOut(&stdout)
			rootCmd.SetErr(&stderr)

			err := rootCmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Errorf("rootCmd.Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRootCommand_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomchat.yaml")
	if err := os.WriteFile(path, []byte("broker: [not, a, map"), 0o600); err != nil {
		t.Fatal(err)
	}
	rootCmd.SetArgs([]string{"--config", path, "history", "1"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	defer func() { configPath = "" }()

	if err := rootCmd.Execute(); err == nil {
		t.Error("Execute() should fail on an unreadable config")
	}
}
