package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/justinpbarnett/devcompanion/internal/session"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const testConfig = `
session:
  debounce_ms: 500
api:
  token: secret-token
`

func TestConfigCommand(t *testing.T) {
	path := writeConfigFile(t, "devcompanion.yaml", testConfig)

	tests := []struct {
		name     string
		args     []string
		contains []string
		excludes []string
	}{
		{
			name:     "yaml masks token",
			args:     []string{"config", "--config", path},
			contains: []string{"debounce_ms: 500", "********"},
			excludes: []string{"secret-token"},
		},
		{
			name:     "toml",
			args:     []string{"config", "--config", path, "--format", "toml"},
			contains: []string{"[session]", "debounce_ms = 500"},
			excludes: []string{"secret-token"},
		},
		{
			name:     "show token",
			args:     []string{"config", "--config", path, "--show-token"},
			contains: []string{"secret-token"},
		},
		{
			name:     "flags override file",
			args:     []string{"config", "--config", path, "--dir", "/tmp/transcripts", "--log-json"},
			contains: []string{"dir: /tmp/transcripts", "json: true"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCmd(t, tt.args...)
			if err != nil {
				t.Fatalf("config: %v", err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(out, s) {
					t.Errorf("output missing %q:\n%s", s, out)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(out, s) {
					t.Errorf("output should not contain %q", s)
				}
			}
		})
	}
}

func TestConfigCommandUnknownFormat(t *testing.T) {
	path := writeConfigFile(t, "devcompanion.yaml", testConfig)
	if _, err := runCmd(t, "config", "--config", path, "--format", "ini"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestConfigCommandMissingFile(t *testing.T) {
	if _, err := runCmd(t, "config", "--config", filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestExecCommand(t *testing.T) {
	path := writeConfigFile(t, "devcompanion.yaml", testConfig)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "here.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"echo", []string{"exec", "--config", path, "--", "echo", "hi"}, "hi\n"},
		{"cwd", []string{"exec", "--config", path, "--cwd", dir, "--", "ls"}, "here.txt\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCmd(t, tt.args...)
			if err != nil {
				t.Fatalf("exec: %v", err)
			}
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestExecCommandBlocked(t *testing.T) {
	path := writeConfigFile(t, "devcompanion.yaml", testConfig)
	out, err := runCmd(t, "exec", "--config", path, "--", "rm", "-rf", "/")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if !strings.Contains(out, "blocked by security policy") {
		t.Errorf("output = %q, want blocked message", out)
	}
}

func TestVersionCommandNoCheck(t *testing.T) {
	out, err := runCmd(t, "version", "--no-check")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "devcompanion version dev\n" {
		t.Errorf("output = %q", out)
	}
}

func TestEventPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newEventPrinter(&buf)
	p.Emit(session.Event{
		Time:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Kind:      session.EventError,
		Code:      session.CodeRemoteFailed,
		Message:   "remote execution failed",
		SessionID: "srv-1",
		Err:       errors.New("dial failed"),
	})
	p.Emit(session.Event{Kind: session.EventStatus, Code: session.CodeSessionIdle})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	var first eventLine
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	want := eventLine{
		Time:      "2026-01-02T03:04:05Z",
		Kind:      "error",
		Code:      "remote_execution_failed",
		Message:   "remote execution failed",
		SessionID: "srv-1",
		Error:     "dial failed",
	}
	if first != want {
		t.Errorf("first = %+v, want %+v", first, want)
	}
	if strings.Contains(lines[1], `"error"`) || strings.Contains(lines[1], `"session_id"`) {
		t.Errorf("empty fields should be omitted: %s", lines[1])
	}
}
