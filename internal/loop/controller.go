package loop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yarlson/refbatch/internal/config"
	"github.com/yarlson/refbatch/internal/gate"
	"github.com/yarlson/refbatch/internal/invoker"
	"github.com/yarlson/refbatch/internal/prompt"
	"github.com/yarlson/refbatch/internal/state"
	"github.com/yarlson/refbatch/internal/task"
)

// TaskOutcome is the terminal state of one task's iteration loop. Exactly
// one terminal state is reached for every task that is attempted.
type TaskOutcome string

const (
	// TaskPassed means the reviewer accepted within the iteration budget.
	TaskPassed TaskOutcome = "passed"
	// TaskHalted means the implementer could not self-certify its tests.
	// The entire batch stops: later tasks assume this one's changes are
	// valid.
	TaskHalted TaskOutcome = "halted"
	// TaskExhausted means the iteration budget ran out without a
	// reviewer pass.
	TaskExhausted TaskOutcome = "exhausted"
)

// TaskResult is the outcome of running one task to a terminal state.
type TaskResult struct {
	Task       task.Task
	Stamp      string
	Outcome    TaskOutcome
	Iterations int
	Message    string
	Records    []*IterationRecord
}

// ControllerDeps contains the dependencies for the Controller.
type ControllerDeps struct {
	Invoker  invoker.Invoker
	Composer *prompt.Composer
	Tokens   config.TokensConfig

	ModelImpl   string
	ModelReview string

	// Resolver and ContextLimits back the prompt-size warnings.
	Resolver      invoker.ModelResolver
	Backend       string
	ContextLimits map[string]int

	ReportDir string
	MaxIters  int
	DryRun    bool
	Logger    *zap.Logger
}

// Controller runs the implement/review iteration loop for a single task.
type Controller struct {
	inv      invoker.Invoker
	composer *prompt.Composer
	tokens   config.TokensConfig

	modelImpl   string
	modelReview string

	resolver      invoker.ModelResolver
	backend       string
	contextLimits map[string]int

	reportDir string
	maxIters  int
	dryRun    bool
	log       *zap.Logger
}

// NewController creates a loop controller with the given dependencies.
func NewController(deps ControllerDeps) *Controller {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		inv:           deps.Invoker,
		composer:      deps.Composer,
		tokens:        deps.Tokens,
		modelImpl:     deps.ModelImpl,
		modelReview:   deps.ModelReview,
		resolver:      deps.Resolver,
		backend:       deps.Backend,
		contextLimits: deps.ContextLimits,
		reportDir:     deps.ReportDir,
		maxIters:      deps.MaxIters,
		dryRun:        deps.DryRun,
		log:           log,
	}
}

// newSessionID generates the short session identifier shared by a task's
// agent invocations.
func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// RunTask drives one task through the iteration state machine until a
// terminal state is reached. The stamp namespaces every artifact the task
// produces.
func (c *Controller) RunTask(ctx context.Context, t task.Task, stamp string) TaskResult {
	result := TaskResult{Task: t, Stamp: stamp}

	raw, err := os.ReadFile(t.Path)
	if err != nil {
		result.Outcome = TaskHalted
		result.Message = fmt.Sprintf("failed to read prompt file: %v", err)
		return result
	}
	content := string(raw)

	session := newSessionID()
	prevReviewLog := ""

	for iteration := 1; iteration <= c.maxIters; iteration++ {
		if ctx.Err() != nil {
			result.Outcome = TaskHalted
			result.Message = "cancelled"
			return result
		}

		tag := fmt.Sprintf("%s_%s_iter%d", t.BaseName, stamp, iteration)
		rec := NewIterationRecord(t.BaseName, t.Index, iteration, session)
		result.Iterations = iteration

		c.log.Info("starting iteration",
			zap.String("task", t.BaseName),
			zap.Int("iteration", iteration),
			zap.Int("max_iters", c.maxIters))

		// Implementer phase
		implPromptText := c.composer.Implementer(content, iteration, prevReviewLog)
		c.warnIfOversize(implPromptText, c.modelImpl, t.BaseName, "impl", iteration)

		implPromptPath := filepath.Join(c.reportDir, tag+"_impl_prompt.md")
		if err := os.WriteFile(implPromptPath, []byte(implPromptText), 0644); err != nil {
			result.Outcome = TaskHalted
			result.Message = fmt.Sprintf("failed to write implementer prompt: %v", err)
			return result
		}
		implLogPath := filepath.Join(c.reportDir, tag+"_impl.log")
		rec.ImplPromptPath = implPromptPath
		rec.ImplLogPath = implLogPath

		err := c.inv.Invoke(ctx, invoker.Request{
			Role:       invoker.RoleImplementer,
			Model:      c.modelImpl,
			PromptPath: implPromptPath,
			LogPath:    implLogPath,
			SessionID:  session,
		})
		if err != nil {
			if ctx.Err() != nil {
				result.Outcome = TaskHalted
				result.Message = "cancelled"
				return result
			}
			// The log, even partial, is still gated on content.
			rec.ImplInvokeError = err.Error()
			c.log.Warn("implementer invocation failed, gating partial log",
				zap.String("task", t.BaseName),
				zap.Int("iteration", iteration),
				zap.Error(err))
		}

		if !c.dryRun {
			implGate := gate.Classify(implLogPath, c.tokens.TestsPass, c.tokens.TestsFail)
			rec.ImplGate = implGate.String()

			if implGate != gate.Pass {
				rec.Complete()
				c.saveRecord(rec, &result)
				result.Outcome = TaskHalted
				result.Message = fmt.Sprintf("implementer gate %s at iteration %d", implGate, iteration)
				return result
			}
		}

		// Reviewer phase
		reviewPromptText := c.composer.Reviewer(content, implLogPath)
		c.warnIfOversize(reviewPromptText, c.modelReview, t.BaseName, "review", iteration)

		reviewPromptPath := filepath.Join(c.reportDir, tag+"_review_prompt.md")
		if err := os.WriteFile(reviewPromptPath, []byte(reviewPromptText), 0644); err != nil {
			result.Outcome = TaskHalted
			result.Message = fmt.Sprintf("failed to write reviewer prompt: %v", err)
			return result
		}
		reviewLogPath := filepath.Join(c.reportDir, tag+"_review.log")
		rec.ReviewPromptPath = reviewPromptPath
		rec.ReviewLogPath = reviewLogPath

		err = c.inv.Invoke(ctx, invoker.Request{
			Role:       invoker.RoleReviewer,
			Model:      c.modelReview,
			PromptPath: reviewPromptPath,
			LogPath:    reviewLogPath,
			SessionID:  session,
		})
		if err != nil {
			if ctx.Err() != nil {
				result.Outcome = TaskHalted
				result.Message = "cancelled"
				return result
			}
			rec.ReviewInvokeError = err.Error()
			c.log.Warn("reviewer invocation failed, gating partial log",
				zap.String("task", t.BaseName),
				zap.Int("iteration", iteration),
				zap.Error(err))
		}

		if c.dryRun {
			// One round per task; both logs carry the dry-run marker.
			rec.Complete()
			c.saveRecord(rec, &result)
			result.Outcome = TaskPassed
			result.Message = "dry run"
			return result
		}

		reviewGate := gate.Classify(reviewLogPath, c.tokens.ReviewPass, c.tokens.ReviewFail)
		rec.ReviewGate = reviewGate.String()
		rec.Complete()
		c.saveRecord(rec, &result)

		if reviewGate == gate.Pass {
			c.log.Info("reviewer accepted",
				zap.String("task", t.BaseName),
				zap.Int("iteration", iteration))
			result.Outcome = TaskPassed
			result.Message = fmt.Sprintf("reviewer accepted at iteration %d", iteration)
			return result
		}

		c.log.Info("reviewer rejected",
			zap.String("task", t.BaseName),
			zap.Int("iteration", iteration),
			zap.String("gate", reviewGate.String()))

		prevReviewLog = reviewLogPath
	}

	result.Outcome = TaskExhausted
	result.Message = fmt.Sprintf("no reviewer pass within %d iterations", c.maxIters)
	return result
}

func (c *Controller) saveRecord(rec *IterationRecord, result *TaskResult) {
	result.Records = append(result.Records, rec)
	if _, err := SaveRecord(state.RecordsDirPath(c.reportDir), rec); err != nil {
		c.log.Warn("failed to save iteration record", zap.Error(err))
	}
}

// warnIfOversize logs a warning when a composed prompt likely exceeds the
// model's context. The prompt is never mutated; the agent backend owns the
// hard failure.
func (c *Controller) warnIfOversize(text, model, taskBase, phase string, iteration int) {
	resolved := c.resolver.Resolve(model, c.backend)
	limit := c.contextLimits[strings.TrimPrefix(resolved, c.resolver.LocalPrefix)]
	fits, estimate := prompt.FitsContext(text, limit)
	if !fits {
		c.log.Warn("prompt likely exceeds model context",
			zap.String("task", taskBase),
			zap.String("phase", phase),
			zap.Int("iteration", iteration),
			zap.String("model", model),
			zap.Int("estimated_tokens", estimate),
			zap.Int("context_limit", limit))
	}
}
