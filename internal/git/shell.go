package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ShellRecorder implements the Recorder interface by shelling out to git.
type ShellRecorder struct {
	repoRoot  string
	reportDir string
}

// NewShellRecorder creates a ShellRecorder capturing snapshots of repoRoot
// into reportDir.
func NewShellRecorder(repoRoot, reportDir string) *ShellRecorder {
	return &ShellRecorder{
		repoRoot:  repoRoot,
		reportDir: reportDir,
	}
}

// runGit executes a git command and returns its stdout.
func (r *ShellRecorder) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		stderrStr := stderr.String()
		stderrLower := strings.ToLower(stderrStr)

		if strings.Contains(stderrLower, "not a git repository") {
			return "", &GitError{
				Command: "git " + strings.Join(args, " "),
				Output:  stderrStr,
				Err:     ErrNotAGitRepo,
			}
		}

		if strings.Contains(stderrLower, "ambiguous argument 'head'") ||
			strings.Contains(stderrLower, "unknown revision") {
			return "", &GitError{
				Command: "git " + strings.Join(args, " "),
				Output:  stderrStr,
				Err:     ErrNoCommits,
			}
		}

		return "", &GitError{
			Command: "git " + strings.Join(args, " "),
			Output:  stderrStr,
			Err:     err,
		}
	}

	return stdout.String(), nil
}

// CaptureBefore saves the pre-task snapshot pair.
func (r *ShellRecorder) CaptureBefore(ctx context.Context, prefix string) error {
	return r.capture(ctx, prefix, "before")
}

// CaptureAfter saves the post-task snapshot pair.
func (r *ShellRecorder) CaptureAfter(ctx context.Context, prefix string) error {
	return r.capture(ctx, prefix, "after")
}

// capture writes <prefix>_<phase>_status.txt and <prefix>_diff_<phase>.patch
// into the report directory.
func (r *ShellRecorder) capture(ctx context.Context, prefix, phase string) error {
	if err := os.MkdirAll(r.reportDir, 0755); err != nil {
		return fmt.Errorf("failed to create report dir %s: %w", r.reportDir, err)
	}

	status, err := r.runGit(ctx, "status", "--porcelain=v1")
	if err != nil {
		return err
	}
	statusPath := filepath.Join(r.reportDir, fmt.Sprintf("%s_%s_status.txt", prefix, phase))
	if err := os.WriteFile(statusPath, []byte(status), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", statusPath, err)
	}

	diff, err := r.runGit(ctx, "diff")
	if err != nil {
		return err
	}
	diffPath := filepath.Join(r.reportDir, fmt.Sprintf("%s_diff_%s.patch", prefix, phase))
	if err := os.WriteFile(diffPath, []byte(diff), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", diffPath, err)
	}

	return nil
}

// CurrentBranch returns the name of the current branch, or "HEAD" when
// detached.
func (r *ShellRecorder) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.runGit(ctx, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	branch := strings.TrimSpace(out)
	if branch == "" {
		return "HEAD", nil
	}
	return branch, nil
}
