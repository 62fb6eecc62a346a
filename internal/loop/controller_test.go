package loop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarlson/refbatch/internal/config"
	"github.com/yarlson/refbatch/internal/invoker"
	"github.com/yarlson/refbatch/internal/prompt"
	"github.com/yarlson/refbatch/internal/state"
	"github.com/yarlson/refbatch/internal/task"
)

// fakeInvoker writes scripted log content per role and call, capturing the
// composed prompts it was handed.
type fakeInvoker struct {
	implLogs   []string
	reviewLogs []string

	implErr error

	implCalls   int
	reviewCalls int

	implPrompts   []string
	reviewPrompts []string
}

func (f *fakeInvoker) Invoke(_ context.Context, req invoker.Request) error {
	promptText, _ := os.ReadFile(req.PromptPath)

	var content string
	switch req.Role {
	case invoker.RoleImplementer:
		content = scripted(f.implLogs, f.implCalls)
		f.implCalls++
		f.implPrompts = append(f.implPrompts, string(promptText))
	default:
		content = scripted(f.reviewLogs, f.reviewCalls)
		f.reviewCalls++
		f.reviewPrompts = append(f.reviewPrompts, string(promptText))
	}

	if err := os.WriteFile(req.LogPath, []byte(content), 0644); err != nil {
		return err
	}
	if req.Role == invoker.RoleImplementer && f.implErr != nil {
		return f.implErr
	}
	return nil
}

// scripted returns the entry for call n, repeating the last entry.
func scripted(logs []string, n int) string {
	if len(logs) == 0 {
		return ""
	}
	if n >= len(logs) {
		return logs[len(logs)-1]
	}
	return logs[n]
}

func defaultTokens() config.TokensConfig {
	return config.TokensConfig{
		TestsPass:  "TESTS_PASS",
		TestsFail:  "TESTS_FAIL",
		ReviewPass: "REVIEW_PASS",
		ReviewFail: "REVIEW_FAIL",
	}
}

func newTestController(t *testing.T, inv invoker.Invoker, maxIters int, dryRun bool) (*Controller, string) {
	t.Helper()
	reportDir := t.TempDir()
	tokens := defaultTokens()
	composer := prompt.NewComposer(tokens.TestsPass, tokens.TestsFail, tokens.ReviewPass, tokens.ReviewFail)

	ctrl := NewController(ControllerDeps{
		Invoker:     inv,
		Composer:    composer,
		Tokens:      tokens,
		ModelImpl:   "devstral",
		ModelReview: "glm-4.7",
		ReportDir:   reportDir,
		MaxIters:    maxIters,
		DryRun:      dryRun,
	})
	return ctrl, reportDir
}

func newTestTask(t *testing.T, content string) task.Task {
	t.Helper()
	path := filepath.Join(t.TempDir(), "01_rename_service.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return task.New(path, 1)
}

func TestRunTask_CleanPass(t *testing.T) {
	inv := &fakeInvoker{
		implLogs:   []string{"did the work\nTESTS_PASS\n"},
		reviewLogs: []string{"looks good\nREVIEW_PASS\n"},
	}
	ctrl, reportDir := newTestController(t, inv, 3, false)
	tk := newTestTask(t, "# Rename the service\n")

	result := ctrl.RunTask(context.Background(), tk, "20260830_120000")

	assert.Equal(t, TaskPassed, result.Outcome)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 1, inv.implCalls)
	assert.Equal(t, 1, inv.reviewCalls)

	// Iteration 1 implementer prompt is the raw task content, verbatim
	require.Len(t, inv.implPrompts, 1)
	assert.Equal(t, "# Rename the service\n", inv.implPrompts[0])

	// All four per-iteration artifacts exist under the stamp
	tag := "01_rename_service_20260830_120000_iter1"
	for _, name := range []string{
		tag + "_impl_prompt.md",
		tag + "_impl.log",
		tag + "_review_prompt.md",
		tag + "_review.log",
	} {
		_, err := os.Stat(filepath.Join(reportDir, name))
		assert.NoError(t, err, name)
	}

	// One record with both gates
	require.Len(t, result.Records, 1)
	assert.Equal(t, "pass", result.Records[0].ImplGate)
	assert.Equal(t, "pass", result.Records[0].ReviewGate)

	entries, err := os.ReadDir(state.RecordsDirPath(reportDir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunTask_ReworkThenPass(t *testing.T) {
	inv := &fakeInvoker{
		implLogs: []string{"TESTS_PASS\n"},
		reviewLogs: []string{
			"tests pass but the naming is off in handler.go\nREVIEW_FAIL\n",
			"REVIEW_PASS\n",
		},
	}
	ctrl, _ := newTestController(t, inv, 3, false)
	tk := newTestTask(t, "# Task\n")

	result := ctrl.RunTask(context.Background(), tk, "20260830_120000")

	assert.Equal(t, TaskPassed, result.Outcome)
	assert.Equal(t, 2, result.Iterations)
	assert.Len(t, result.Records, 2)

	// The rework prompt carries the previous reviewer feedback
	require.Len(t, inv.implPrompts, 2)
	assert.Contains(t, inv.implPrompts[1], "## Reviewer Feedback from Previous Iteration")
	assert.Contains(t, inv.implPrompts[1], "the naming is off in handler.go")
}

func TestRunTask_ImplementerFailHalts(t *testing.T) {
	inv := &fakeInvoker{
		implLogs: []string{"could not make the tests green\nTESTS_FAIL\n"},
	}
	ctrl, _ := newTestController(t, inv, 3, false)
	tk := newTestTask(t, "# Task\n")

	result := ctrl.RunTask(context.Background(), tk, "20260830_120000")

	assert.Equal(t, TaskHalted, result.Outcome)
	assert.Contains(t, result.Message, "implementer gate fail at iteration 1")
	assert.Equal(t, 0, inv.reviewCalls)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "fail", result.Records[0].ImplGate)
}

func TestRunTask_ImplementerUnknownHalts(t *testing.T) {
	inv := &fakeInvoker{
		implLogs: []string{"the agent rambled and never concluded\n"},
	}
	ctrl, _ := newTestController(t, inv, 3, false)
	tk := newTestTask(t, "# Task\n")

	result := ctrl.RunTask(context.Background(), tk, "20260830_120000")

	assert.Equal(t, TaskHalted, result.Outcome)
	assert.Contains(t, result.Message, "unknown")
	assert.Equal(t, 0, inv.reviewCalls)
}

func TestRunTask_Exhausted(t *testing.T) {
	inv := &fakeInvoker{
		implLogs:   []string{"TESTS_PASS\n"},
		reviewLogs: []string{"still not right\nREVIEW_FAIL\n"},
	}
	ctrl, _ := newTestController(t, inv, 2, false)
	tk := newTestTask(t, "# Task\n")

	result := ctrl.RunTask(context.Background(), tk, "20260830_120000")

	assert.Equal(t, TaskExhausted, result.Outcome)
	assert.Equal(t, 2, result.Iterations)
	assert.Contains(t, result.Message, "no reviewer pass within 2 iterations")
	assert.Len(t, result.Records, 2)
}

func TestRunTask_InvokeErrorStillGatesLog(t *testing.T) {
	// The invocation errored but the log carries the pass token; content
	// decides the gate, the error is only recorded.
	inv := &fakeInvoker{
		implLogs:   []string{"TESTS_PASS\n"},
		reviewLogs: []string{"REVIEW_PASS\n"},
		implErr:    errors.New("exit status 1"),
	}
	ctrl, _ := newTestController(t, inv, 3, false)
	tk := newTestTask(t, "# Task\n")

	result := ctrl.RunTask(context.Background(), tk, "20260830_120000")

	assert.Equal(t, TaskPassed, result.Outcome)
	require.Len(t, result.Records, 1)
	assert.Contains(t, result.Records[0].ImplInvokeError, "exit status 1")
}

func TestRunTask_DryRun(t *testing.T) {
	ctrl, reportDir := newTestController(t, invoker.NewDryRunInvoker(), 3, true)
	tk := newTestTask(t, "# Task\n")

	result := ctrl.RunTask(context.Background(), tk, "20260830_120000")

	assert.Equal(t, TaskPassed, result.Outcome)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, "dry run", result.Message)

	tag := "01_rename_service_20260830_120000_iter1"
	for _, name := range []string{tag + "_impl.log", tag + "_review.log"} {
		data, err := os.ReadFile(filepath.Join(reportDir, name))
		require.NoError(t, err)
		assert.Contains(t, string(data), "DRY_RUN:", name)
	}

	// Composed prompts are still written for inspection
	_, err := os.Stat(filepath.Join(reportDir, tag+"_impl_prompt.md"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(reportDir, tag+"_review_prompt.md"))
	assert.NoError(t, err)
}

func TestRunTask_MissingPromptFile(t *testing.T) {
	inv := &fakeInvoker{}
	ctrl, _ := newTestController(t, inv, 3, false)
	tk := task.New(filepath.Join(t.TempDir(), "gone.md"), 1)

	result := ctrl.RunTask(context.Background(), tk, "20260830_120000")

	assert.Equal(t, TaskHalted, result.Outcome)
	assert.Contains(t, result.Message, "failed to read prompt file")
	assert.Equal(t, 0, inv.implCalls)
}

func TestRunTask_CancelledContext(t *testing.T) {
	inv := &fakeInvoker{}
	ctrl, _ := newTestController(t, inv, 3, false)
	tk := newTestTask(t, "# Task\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := ctrl.RunTask(ctx, tk, "20260830_120000")

	assert.Equal(t, TaskHalted, result.Outcome)
	assert.Equal(t, "cancelled", result.Message)
	assert.Equal(t, 0, inv.implCalls)
}

func TestRunTask_SessionIDSharedAcrossIterations(t *testing.T) {
	var sessions []string
	inv := &sessionCapture{
		inner: &fakeInvoker{
			implLogs:   []string{"TESTS_PASS\n"},
			reviewLogs: []string{"REVIEW_FAIL\n", "REVIEW_PASS\n"},
		},
		sessions: &sessions,
	}
	ctrl, _ := newTestController(t, inv, 3, false)
	tk := newTestTask(t, "# Task\n")

	result := ctrl.RunTask(context.Background(), tk, "20260830_120000")
	require.Equal(t, TaskPassed, result.Outcome)

	require.Len(t, sessions, 4)
	for _, s := range sessions[1:] {
		assert.Equal(t, sessions[0], s)
	}
}

type sessionCapture struct {
	inner    *fakeInvoker
	sessions *[]string
}

func (c *sessionCapture) Invoke(ctx context.Context, req invoker.Request) error {
	*c.sessions = append(*c.sessions, req.SessionID)
	return c.inner.Invoke(ctx, req)
}

func TestTaskOutcome_Strings(t *testing.T) {
	assert.Equal(t, "passed", string(TaskPassed))
	assert.Equal(t, "halted", string(TaskHalted))
	assert.Equal(t, "exhausted", string(TaskExhausted))
}
