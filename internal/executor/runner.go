package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/justinpbarnett/devcompanion/internal/config"
	"github.com/justinpbarnett/devcompanion/internal/safety"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 10 * 1024 * 1024
	truncationMarker = "\n[Output truncated]"
	errorPrefix      = "Command execution error: "
	defaultShell     = "/bin/sh"
	processWaitDelay = 2 * time.Second
)

// Runner executes shell commands on behalf of the remote peer. It never
// returns an error: every failure is rendered into the output text, since
// the protocol has no separate error result.
type Runner struct {
	shell     string
	timeout   time.Duration
	maxOutput int
	workDir   string
	guard     *safety.Guard
	logger    *slog.Logger
}

func NewRunner(cfg config.ExecutorConfig, guard *safety.Guard, logger *slog.Logger) *Runner {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if limit := time.Duration(cfg.MaxTimeout) * time.Second; limit > 0 && timeout > limit {
		timeout = limit
	}
	maxOutput := cfg.MaxOutputSize
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	shell := cfg.Shell
	if shell == "" {
		shell = defaultShell
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		shell:     shell,
		timeout:   timeout,
		maxOutput: maxOutput,
		workDir:   cfg.WorkDir,
		guard:     guard,
		logger:    logger.With("component", "executor"),
	}
}

// Run executes command through the shell in cwd and returns stdout and
// stderr interleaved in the order they were written. An empty command
// yields "".
func (r *Runner) Run(ctx context.Context, command, cwd string) string {
	if strings.TrimSpace(command) == "" {
		return ""
	}
	if err := r.guard.Allow(command); err != nil {
		r.logger.Warn("refusing command", "command", command, "err", err)
		return errorPrefix + err.Error()
	}

	dir, err := r.resolveDir(cwd)
	if err != nil {
		return errorPrefix + err.Error()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// One writer for both streams keeps delivery order; os/exec serializes
	// writes when Stdout and Stderr are the same value.
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Dir = dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = processWaitDelay

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	text := strings.ToValidUTF8(out.String(), "�")
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		text += fmt.Sprintf("\nCommand timed out after %s", r.timeout)
	case errors.As(err, &exitErr):
		// A non-zero exit is a normal result; the output speaks for itself.
	default:
		r.logger.Warn("command failed to run", "command", command, "err", err)
		text = appendError(text, err)
	}

	r.logger.Debug("command finished", "command", command, "dir", dir, "elapsed", elapsed, "bytes", len(text))
	return r.limit(text)
}

// appendError adds the error line after any output the command produced.
func appendError(text string, err error) string {
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + errorPrefix + err.Error()
}

func (r *Runner) resolveDir(cwd string) (string, error) {
	dir := cwd
	if dir == "" {
		dir = r.workDir
	}
	if dir == "" {
		return "", nil
	}
	dir, err := config.ExpandHome(dir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("invalid working directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("invalid working directory %s: not a directory", dir)
	}
	return dir, nil
}

func (r *Runner) limit(s string) string {
	if len(s) <= r.maxOutput {
		return s
	}
	return strings.ToValidUTF8(s[:r.maxOutput], "") + truncationMarker
}
