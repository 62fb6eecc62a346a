package loop

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/yarlson/refbatch/internal/git"
	"github.com/yarlson/refbatch/internal/state"
	"github.com/yarlson/refbatch/internal/task"
)

// Exit codes returned by Sequencer.Run.
const (
	ExitSuccess = 0
	ExitFailure = 1
)

// SequencerDeps contains the dependencies for the Sequencer.
type SequencerDeps struct {
	Controller *Controller
	Recorder   git.Recorder
	ReportDir  string
	Logger     *zap.Logger

	// Progress receives human-readable per-task completion lines.
	Progress io.Writer
}

// Sequencer iterates the configured task list in order, running each task to
// a terminal state. It is the only place a task-level halt decision is
// converted into batch termination; it never continues past a failed task.
type Sequencer struct {
	controller *Controller
	recorder   git.Recorder
	reportDir  string
	log        *zap.Logger
	progress   io.Writer

	green *color.Color
	red   *color.Color
}

// NewSequencer creates a Sequencer with the given dependencies.
func NewSequencer(deps SequencerDeps) *Sequencer {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	progress := deps.Progress
	if progress == nil {
		progress = io.Discard
	}
	return &Sequencer{
		controller: deps.Controller,
		recorder:   deps.Recorder,
		reportDir:  deps.ReportDir,
		log:        log,
		progress:   progress,
		green:      color.New(color.FgGreen),
		red:        color.New(color.FgRed),
	}
}

// Run executes the batch. Every configured task file is validated up front;
// a missing file aborts before any task is attempted. When filterIndex is
// non-zero only that 1-based task runs and all others are skipped without
// producing artifacts.
func (s *Sequencer) Run(ctx context.Context, tasks []task.Task, filterIndex int) int {
	if len(tasks) == 0 {
		s.log.Error("no tasks to run")
		return ExitFailure
	}

	if err := task.CheckFilterIndex(tasks, filterIndex); err != nil {
		s.log.Error("invalid prompt index", zap.Error(err))
		return ExitFailure
	}

	if err := task.Validate(tasks); err != nil {
		s.log.Error("task validation failed", zap.Error(err))
		return ExitFailure
	}

	startBranch := s.startingBranch(ctx)

	completed, err := state.LoadCompleted(s.reportDir)
	if err != nil {
		s.log.Error("failed to load completed ledger", zap.Error(err))
		return ExitFailure
	}

	for _, t := range tasks {
		if filterIndex != 0 && t.Index != filterIndex {
			continue
		}
		if completed[t.BaseName] {
			s.log.Info("skipping already completed task", zap.String("task", t.BaseName))
			continue
		}
		if ctx.Err() != nil {
			s.log.Warn("batch cancelled")
			return ExitFailure
		}

		if startBranch != "" {
			current, err := s.recorder.CurrentBranch(ctx)
			if err == nil && current != startBranch {
				s.log.Error("branch changed during batch, aborting",
					zap.String("expected", startBranch),
					zap.String("got", current))
				return ExitFailure
			}
		}

		s.log.Info("running task",
			zap.Int("index", t.Index),
			zap.Int("total", len(tasks)),
			zap.String("task", t.BaseName))

		stamp := NewRunStamp()
		prefix := fmt.Sprintf("%s_%s", t.BaseName, stamp)

		if err := s.recorder.CaptureBefore(ctx, prefix); err != nil {
			s.log.Warn("before-snapshot capture failed", zap.Error(err))
		}

		result := s.controller.RunTask(ctx, t, stamp)

		// The after-snapshot is captured regardless of outcome so a
		// post-mortem always has the full pair.
		if err := s.recorder.CaptureAfter(ctx, prefix); err != nil {
			s.log.Warn("after-snapshot capture failed", zap.Error(err))
		}

		switch result.Outcome {
		case TaskPassed:
			if err := state.MarkCompleted(s.reportDir, t.BaseName); err != nil {
				s.log.Warn("failed to update completed ledger", zap.Error(err))
			}
			_, _ = s.green.Fprintf(s.progress, "COMPLETED: %s (%d iteration(s))\n",
				t.BaseName, result.Iterations)
		default:
			_, _ = s.red.Fprintf(s.progress, "FAILED: %s -- %s\n",
				t.BaseName, result.Message)
			s.log.Error("aborting batch: tasks are sequential, fix the issue before re-running",
				zap.String("task", t.BaseName),
				zap.String("outcome", string(result.Outcome)),
				zap.Int("iterations", result.Iterations))
			return ExitFailure
		}
	}

	s.log.Info("all tasks completed")
	return ExitSuccess
}

// startingBranch records the branch the batch began on. Outside a git
// repository branch safety checks are skipped.
func (s *Sequencer) startingBranch(ctx context.Context) string {
	branch, err := s.recorder.CurrentBranch(ctx)
	if err != nil {
		s.log.Warn("could not determine current branch, skipping branch safety checks", zap.Error(err))
		return ""
	}
	return branch
}
