// Copyright (c) 2025 dogwoodfire
// MouseEye - timelapse deploy orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

// package gitx wraps the local git binary for the handful of operations the
// deploy pipeline needs: stage-and-commit, push, and reading HEAD. Git is
// consumed as a black box; its output and exit status are surfaced verbatim,
// except for the one outcome the pipeline tolerates (an empty commit).
package gitx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrNothingToCommit reports that the working tree had no changes to commit.
// The deploy pipeline treats this as a tolerated outcome, not a failure.
var ErrNothingToCommit = errors.New("nothing to commit")

// RunFunc executes one git invocation and returns its combined output.
// It exists so tests can substitute a fake for the real binary.
type RunFunc func(ctx context.Context, args ...string) ([]byte, error)

// execGit runs the real git binary.
func execGit(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	return cmd.CombinedOutput()
}

// Client issues git commands against the repository in the current working
// directory.
type Client struct {
	run RunFunc
}

// New returns a Client backed by the system git binary.
func New() *Client {
	return &Client{run: execGit}
}

// NewWithRunner returns a Client that executes git through the given RunFunc.
func NewWithRunner(run RunFunc) *Client {
	return &Client{run: run}
}

// CommitAll stages all changes and commits them with the given message.
// A clean working tree returns ErrNothingToCommit; any other git failure is
// returned with git's own output attached.
func (c *Client) CommitAll(ctx context.Context, message string) error {
	if out, err := c.run(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("git add -A: %w: %s", err, strings.TrimSpace(string(out)))
	}

	out, err := c.run(ctx, "commit", "-m", message)
	if err != nil {
		if isNothingToCommitOutput(string(out)) {
			return ErrNothingToCommit
		}
		return fmt.Errorf("git commit: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Push pushes the given branch to the remote named origin.
func (c *Client) Push(ctx context.Context, branch string) error {
	if out, err := c.run(ctx, "push", "origin", branch); err != nil {
		return fmt.Errorf("git push origin %s: %w: %s", branch, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Head returns the commit hash the local branch currently points at.
func (c *Client) Head(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// isNothingToCommitOutput recognizes git's clean-working-tree commit refusal.
// Git exits non-zero in this case, so the output text is the only signal.
func isNothingToCommitOutput(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "nothing to commit") ||
		strings.Contains(lower, "nothing added to commit") ||
		strings.Contains(lower, "no changes added to commit")
}
