package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// ProjectLogDir returns the transcript directory Claude Code keeps for a
// project: <claudeHome>/projects/<abs path with every non-alphanumeric rune
// replaced by '-'>.
func ProjectLogDir(claudeHome, projectPath string) (string, error) {
	home, err := ExpandHome(claudeHome)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return "", fmt.Errorf("resolve project path: %w", err)
	}
	sanitized := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '-'
	}, abs)
	return filepath.Join(home, "projects", sanitized), nil
}

// WatchDir resolves the directory to watch: watch.dir when set, otherwise the
// project's transcript directory under watch.claude_home.
func (c *Config) WatchDir() (string, error) {
	if c.Watch.Dir != "" {
		return ExpandHome(c.Watch.Dir)
	}
	project := c.Watch.Project
	if project == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		project = cwd
	}
	return ProjectLogDir(c.Watch.ClaudeHome, project)
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Watch.ScanIntervalMS) * time.Millisecond
}

func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Session.DebounceMS) * time.Millisecond
}

func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.Timeout) * time.Second
}
