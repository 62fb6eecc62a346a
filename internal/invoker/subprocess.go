package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// SubprocessInvoker executes the agent CLI as a subprocess. Stdout and stderr
// are combined into the request's log file; the working directory is the
// target repository root.
type SubprocessInvoker struct {
	command []string
	backend string
	workDir string

	resolver   ModelResolver
	retryMax   int
	retrySleep time.Duration

	// commandTimeout bounds one attempt. Zero means no timeout: a hung
	// agent blocks the run until the surrounding context is cancelled.
	commandTimeout time.Duration

	log *zap.Logger
}

// NewSubprocessInvoker creates an invoker for the given agent command and
// backend, running in workDir.
func NewSubprocessInvoker(command []string, backend, workDir string, log *zap.Logger) *SubprocessInvoker {
	if log == nil {
		log = zap.NewNop()
	}
	return &SubprocessInvoker{
		command:    command,
		backend:    backend,
		workDir:    workDir,
		retryMax:   2,
		retrySleep: 5 * time.Second,
		log:        log,
	}
}

// WithRetry sets the total attempt budget and the sleep between attempts.
func (s *SubprocessInvoker) WithRetry(retryMax int, retrySleep time.Duration) *SubprocessInvoker {
	s.retryMax = retryMax
	s.retrySleep = retrySleep
	return s
}

// WithResolver sets the model alias resolver.
func (s *SubprocessInvoker) WithResolver(r ModelResolver) *SubprocessInvoker {
	s.resolver = r
	return s
}

// WithCommandTimeout bounds a single attempt. Zero disables the bound.
func (s *SubprocessInvoker) WithCommandTimeout(d time.Duration) *SubprocessInvoker {
	s.commandTimeout = d
	return s
}

// buildArgs constructs the argv tail and optional stdin file for a request.
func (s *SubprocessInvoker) buildArgs(req Request) (args []string, stdinPath string) {
	model := s.resolver.Resolve(req.Model, s.backend)
	if s.backend == "opencode" {
		return []string{
			"run", "Execute the attached prompt file end-to-end.",
			"--model", model,
			"--file", req.PromptPath,
			"--title", fmt.Sprintf("%s-%s", req.Role, req.SessionID),
		}, ""
	}
	// cline reads the prompt on stdin
	return []string{"-m", model, "--yolo", "-"}, req.PromptPath
}

// Invoke runs the agent, retrying non-zero exits up to the configured attempt
// budget with a sleep between attempts. Retry attempts append a marker line
// to the log so the gate sees where each attempt's output starts. Failures
// whose stderr matches a permanent pattern stop retrying immediately.
func (s *SubprocessInvoker) Invoke(ctx context.Context, req Request) error {
	args, stdinPath := s.buildArgs(req)

	var lastErr error
	for attempt := 1; attempt <= s.retryMax; attempt++ {
		err := s.runAttempt(ctx, req, args, stdinPath, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var invErr *InvocationError
		if errors.As(err, &invErr) && invErr.Permanent {
			return err
		}

		if attempt < s.retryMax {
			s.log.Warn("agent invocation failed, retrying",
				zap.String("role", req.Role.String()),
				zap.Int("attempt", attempt),
				zap.Int("retry_max", s.retryMax),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retrySleep):
			}
		}
	}

	return &InvocationError{
		Role:     req.Role,
		Model:    req.Model,
		Attempts: s.retryMax,
		Err:      fmt.Errorf("%w: %v", ErrRetriesExhausted, lastErr),
	}
}

// runAttempt performs one subprocess execution, truncating the log on the
// first attempt and appending on later ones.
func (s *SubprocessInvoker) runAttempt(ctx context.Context, req Request, args []string, stdinPath string, attempt int) error {
	flags := os.O_CREATE | os.O_WRONLY
	if attempt == 1 {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	logFile, err := os.OpenFile(req.LogPath, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", req.LogPath, err)
	}
	defer func() { _ = logFile.Close() }()

	if attempt > 1 {
		_, _ = fmt.Fprintf(logFile, "\n--- ATTEMPT %d/%d ---\n", attempt, s.retryMax)
	}

	runCtx := ctx
	if s.commandTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.commandTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, s.command[0], append(append([]string{}, s.command[1:]...), args...)...)
	cmd.Dir = s.workDir

	var stderrBuf bytes.Buffer
	cmd.Stdout = logFile
	cmd.Stderr = io.MultiWriter(logFile, &stderrBuf)

	if stdinPath != "" {
		stdin, err := os.Open(stdinPath)
		if err != nil {
			return fmt.Errorf("failed to open prompt file %s: %w", stdinPath, err)
		}
		defer func() { _ = stdin.Close() }()
		cmd.Stdin = stdin
	}

	start := time.Now()
	runErr := cmd.Run()
	if runErr == nil {
		return nil
	}

	class := ClassifyStderr(stderrBuf.String())
	s.log.Debug("agent attempt failed",
		zap.String("role", req.Role.String()),
		zap.Int("attempt", attempt),
		zap.Duration("duration", time.Since(start)),
		zap.Error(runErr))

	return &InvocationError{
		Role:      req.Role,
		Model:     req.Model,
		Attempts:  attempt,
		Permanent: class == ErrorPermanent,
		Err:       runErr,
	}
}

// Preflight invokes the model with a minimal prompt to verify it responds.
// One attempt, no retry budget; output goes to logPath.
func (s *SubprocessInvoker) Preflight(ctx context.Context, role Role, model, logPath string, timeout time.Duration) error {
	resolved := s.resolver.Resolve(model, s.backend)

	var args []string
	if s.backend == "opencode" {
		args = []string{"run", "Reply with OK.", "--model", resolved}
	} else {
		args = []string{"-m", resolved, "--yolo", "Reply with OK."}
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create preflight log %s: %w", logPath, err)
	}
	defer func() { _ = logFile.Close() }()

	cmd := exec.CommandContext(runCtx, s.command[0], append(append([]string{}, s.command[1:]...), args...)...)
	cmd.Dir = s.workDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Run(); err != nil {
		return &InvocationError{Role: role, Model: model, Attempts: 1, Err: err}
	}
	return nil
}
