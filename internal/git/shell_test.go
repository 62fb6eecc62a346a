package git

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRepo creates a temporary git repository for testing
func setupTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, string(out))
	}

	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")
	run("config", "commit.gpgsign", "false")

	return dir
}

// commitTestFile adds and commits a file
func commitTestFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))

	cmd := exec.Command("git", "add", name)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to stage file: %s", string(out))

	cmd = exec.Command("git", "commit", "-m", message)
	cmd.Dir = dir
	out, err = cmd.CombinedOutput()
	require.NoError(t, err, "failed to commit file: %s", string(out))
}

func TestShellRecorder_ImplementsInterface(t *testing.T) {
	var _ Recorder = (*ShellRecorder)(nil)
}

func TestCaptureBefore_WritesSnapshotPair(t *testing.T) {
	repo := setupTestRepo(t)
	commitTestFile(t, repo, "main.go", "package main\n", "initial")
	reportDir := t.TempDir()

	// Dirty the working tree so status and diff have content
	require.NoError(t, os.WriteFile(filepath.Join(repo, "main.go"), []byte("package main\n\nvar x = 1\n"), 0644))

	rec := NewShellRecorder(repo, reportDir)
	require.NoError(t, rec.CaptureBefore(context.Background(), "01_task_20260830_120000"))

	status, err := os.ReadFile(filepath.Join(reportDir, "01_task_20260830_120000_before_status.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(status), "main.go")

	diff, err := os.ReadFile(filepath.Join(reportDir, "01_task_20260830_120000_diff_before.patch"))
	require.NoError(t, err)
	assert.Contains(t, string(diff), "var x = 1")
}

func TestCaptureAfter_WritesSnapshotPair(t *testing.T) {
	repo := setupTestRepo(t)
	commitTestFile(t, repo, "main.go", "package main\n", "initial")
	reportDir := t.TempDir()

	rec := NewShellRecorder(repo, reportDir)
	require.NoError(t, rec.CaptureAfter(context.Background(), "01_task_20260830_120000"))

	_, err := os.Stat(filepath.Join(reportDir, "01_task_20260830_120000_after_status.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(reportDir, "01_task_20260830_120000_diff_after.patch"))
	assert.NoError(t, err)
}

func TestCapture_CleanTreeWritesEmptyFiles(t *testing.T) {
	repo := setupTestRepo(t)
	commitTestFile(t, repo, "main.go", "package main\n", "initial")
	reportDir := t.TempDir()

	rec := NewShellRecorder(repo, reportDir)
	require.NoError(t, rec.CaptureBefore(context.Background(), "p"))

	status, err := os.ReadFile(filepath.Join(reportDir, "p_before_status.txt"))
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestCapture_NotAGitRepo(t *testing.T) {
	dir := t.TempDir()
	rec := NewShellRecorder(dir, t.TempDir())

	err := rec.CaptureBefore(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAGitRepo))

	var gitErr *GitError
	require.ErrorAs(t, err, &gitErr)
	assert.Contains(t, gitErr.Command, "git status")
}

func TestCapture_CreatesReportDir(t *testing.T) {
	repo := setupTestRepo(t)
	commitTestFile(t, repo, "main.go", "package main\n", "initial")
	reportDir := filepath.Join(t.TempDir(), "nested", "reports")

	rec := NewShellRecorder(repo, reportDir)
	require.NoError(t, rec.CaptureBefore(context.Background(), "p"))

	_, err := os.Stat(filepath.Join(reportDir, "p_before_status.txt"))
	assert.NoError(t, err)
}

func TestCurrentBranch(t *testing.T) {
	repo := setupTestRepo(t)
	commitTestFile(t, repo, "main.go", "package main\n", "initial")

	rec := NewShellRecorder(repo, t.TempDir())
	branch, err := rec.CurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestCurrentBranch_Detached(t *testing.T) {
	repo := setupTestRepo(t)
	commitTestFile(t, repo, "main.go", "package main\n", "initial")

	cmd := exec.Command("git", "checkout", "--detach")
	cmd.Dir = repo
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	rec := NewShellRecorder(repo, t.TempDir())
	branch, err := rec.CurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HEAD", branch)
}
