// Package git captures repository state snapshots for audit. Only read-only
// inspection commands are issued; the orchestrator never mutates the target
// repository.
package git

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common git failures.
var (
	// ErrNotAGitRepo indicates the directory is not a git repository.
	ErrNotAGitRepo = errors.New("not a git repository")

	// ErrNoCommits indicates the repository has no commits yet.
	ErrNoCommits = errors.New("repository has no commits")
)

// GitError represents a git command error with additional context.
type GitError struct {
	// Command is the git command that failed.
	Command string
	// Output is the stderr output from the command.
	Output string
	// Err is the underlying error (typically a sentinel error).
	Err error
}

// Error returns a formatted error message.
func (e *GitError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("git command %q failed: %s", e.Command, e.Output)
	}
	return fmt.Sprintf("git command %q failed", e.Command)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *GitError) Unwrap() error {
	return e.Err
}

// Recorder captures before/after repository snapshots for a task. Snapshots
// are written unconditionally, regardless of the task's terminal outcome, so
// a post-mortem always has a before/after artifact pair. No other component
// reads or interprets these files.
type Recorder interface {
	// CaptureBefore saves a status listing and diff patch before the
	// task's first iteration, namespaced by prefix.
	CaptureBefore(ctx context.Context, prefix string) error

	// CaptureAfter saves a status listing and diff patch after the task
	// concludes, namespaced by prefix.
	CaptureAfter(ctx context.Context, prefix string) error

	// CurrentBranch returns the name of the current branch.
	CurrentBranch(ctx context.Context) (string, error)
}
