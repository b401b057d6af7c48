package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const inspectTimeout = 5 * time.Second

// ErrNotRepository is returned when dir is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Info describes the state of the repository a session ran in.
type Info struct {
	Branch        string `json:"branch,omitempty"`
	CommitHash    string `json:"commit_hash,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
	Author        string `json:"author,omitempty"`
	IsDirty       bool   `json:"is_dirty"`
	DiffStat      string `json:"diff_stat,omitempty"`
}

// Inspect collects branch, HEAD and working-tree state for dir. Fields that
// cannot be read (an empty repository has no HEAD) are left blank.
func Inspect(ctx context.Context, dir string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, inspectTimeout)
	defer cancel()

	if out, err := run(ctx, dir, "rev-parse", "--is-inside-work-tree"); err != nil || out != "true" {
		return Info{}, fmt.Errorf("%s: %w", dir, ErrNotRepository)
	}

	var info Info
	info.Branch, _ = run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
	info.CommitHash, _ = run(ctx, dir, "rev-parse", "HEAD")
	info.CommitMessage, _ = run(ctx, dir, "log", "-1", "--pretty=%B")
	info.Author, _ = run(ctx, dir, "log", "-1", "--pretty=%an")

	status, err := run(ctx, dir, "status", "--porcelain")
	if err != nil {
		return info, err
	}
	info.IsDirty = status != ""
	if info.IsDirty && info.CommitHash != "" {
		info.DiffStat, _ = run(ctx, dir, "diff", "--color=never", "--stat", "HEAD")
	}
	return info, nil
}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}
