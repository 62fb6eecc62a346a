package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yarlson/refbatch/internal/config"
	gitpkg "github.com/yarlson/refbatch/internal/git"
	"github.com/yarlson/refbatch/internal/invoker"
	"github.com/yarlson/refbatch/internal/logging"
	"github.com/yarlson/refbatch/internal/loop"
	"github.com/yarlson/refbatch/internal/prompt"
	"github.com/yarlson/refbatch/internal/state"
	"github.com/yarlson/refbatch/internal/task"
)

var cfgFile string

// GetConfigFile returns the config file path from the flag.
func GetConfigFile() string {
	return cfgFile
}

// Root command flags
var (
	rootPromptIndex   int
	rootMaxIters      int
	rootModelImpl     string
	rootModelReview   string
	rootRetryMax      int
	rootRetrySleep    int
	rootDryRun        bool
	rootVerbose       bool
	rootBackend       string
	rootSkipPreflight bool
)

// NewRootCmd creates the root command for the refbatch CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "refbatch",
		Short: "Batch refactoring orchestrator for external coding agents",
		Long: `Refbatch drives an external coding agent through a queue of refactoring
prompts. Each prompt runs as an implement/review loop: the implementer model
applies the change and runs the tests, the reviewer model audits the result,
and explicit pass/fail tokens in the agent logs decide whether to accept,
iterate, or abort. Git snapshots are captured before and after every prompt
so each run leaves a complete audit trail.`,
		SilenceUsage: true,
		RunE:         runBatch,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./refbatch.yaml)")
	rootCmd.Flags().IntVar(&rootPromptIndex, "prompt-index", 0, "run only the prompt at this 1-based index")
	rootCmd.Flags().IntVar(&rootMaxIters, "max-iters", 0, "maximum implement/review iterations per prompt (0 uses config)")
	rootCmd.Flags().StringVar(&rootModelImpl, "model-impl", "", "implementer model override")
	rootCmd.Flags().StringVar(&rootModelReview, "model-review", "", "reviewer model override")
	rootCmd.Flags().IntVar(&rootRetryMax, "retry-max", 0, "agent invocation attempts per call (0 uses config)")
	rootCmd.Flags().IntVar(&rootRetrySleep, "retry-sleep", -1, "seconds between retry attempts (-1 uses config)")
	rootCmd.Flags().BoolVar(&rootDryRun, "dry-run", false, "compose prompts and snapshots without invoking the agent")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "debug logging on the console")
	rootCmd.Flags().StringVar(&rootBackend, "backend", "", "agent backend (cline or opencode)")
	rootCmd.Flags().BoolVar(&rootSkipPreflight, "skip-preflight", false, "skip the model reachability check")

	rootCmd.AddCommand(newPreflightCmd())
	rootCmd.AddCommand(newStatusCmd())

	return rootCmd
}

func runBatch(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := loadConfig(workDir)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	repoRoot, promptsDir, reportDir := resolvePaths(cfg, workDir)

	if err := state.EnsureReportDir(reportDir); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	lock, err := state.AcquireRunLock(reportDir)
	if err != nil {
		if errors.Is(err, state.ErrBatchRunning) {
			return err
		}
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer func() { _ = lock.Release() }()

	log, closeLog, err := logging.New(state.BatchLogPath(reportDir), rootVerbose)
	if err != nil {
		return fmt.Errorf("failed to open batch log: %w", err)
	}
	defer closeLog()

	tasks, err := task.Discover(promptsDir, cfg.Prompts.Manifest)
	if err != nil {
		return fmt.Errorf("failed to discover prompts: %w", err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no prompt files found in %s", promptsDir)
	}

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "\nReceived interrupt signal, stopping after the current agent call...\n")
		cancel()
	}()

	resolver := invoker.ModelResolver{
		Aliases:     cfg.Models.Aliases,
		LocalModels: cfg.Models.LocalModels,
		LocalPrefix: cfg.Models.LocalPrefix,
	}

	subp := invoker.NewSubprocessInvoker(cfg.Agent.Command, cfg.Agent.Backend, repoRoot, log).
		WithRetry(cfg.Loop.RetryMax, time.Duration(cfg.Loop.RetrySleepSec)*time.Second).
		WithResolver(resolver).
		WithCommandTimeout(time.Duration(cfg.Agent.CommandTimeoutSec) * time.Second)

	var inv invoker.Invoker = subp
	if cfg.Loop.DryRun {
		inv = invoker.NewDryRunInvoker()
		log.Info("dry run enabled, agent invocations will be skipped")
	}

	if cfg.Preflight.Enabled && !cfg.Loop.DryRun && !rootSkipPreflight {
		if err := runPreflightChecks(ctx, subp, cfg, reportDir, log); err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
	}

	composer := prompt.NewComposer(
		cfg.Tokens.TestsPass, cfg.Tokens.TestsFail,
		cfg.Tokens.ReviewPass, cfg.Tokens.ReviewFail)

	recorder := gitpkg.NewShellRecorder(repoRoot, reportDir)

	controller := loop.NewController(loop.ControllerDeps{
		Invoker:       inv,
		Composer:      composer,
		Tokens:        cfg.Tokens,
		ModelImpl:     cfg.Models.Impl,
		ModelReview:   cfg.Models.Review,
		Resolver:      resolver,
		Backend:       cfg.Agent.Backend,
		ContextLimits: cfg.Models.ContextLimits,
		ReportDir:     reportDir,
		MaxIters:      cfg.Loop.MaxIters,
		DryRun:        cfg.Loop.DryRun,
		Logger:        log,
	})

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	seq := loop.NewSequencer(loop.SequencerDeps{
		Controller: controller,
		Recorder:   recorder,
		ReportDir:  reportDir,
		Logger:     log,
		Progress:   cmd.OutOrStdout(),
	})

	if code := seq.Run(ctx, tasks, cfg.Loop.PromptIndex); code != loop.ExitSuccess {
		return fmt.Errorf("batch failed, see %s", state.BatchLogPath(reportDir))
	}
	return nil
}

// loadConfig reads refbatch.yaml from --config or the working directory.
func loadConfig(workDir string) (*config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.LoadFromPath(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// applyFlagOverrides layers explicitly set flags on top of the loaded config.
// Only flags the user actually passed override config and environment values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("prompt-index") {
		cfg.Loop.PromptIndex = rootPromptIndex
	}
	if flags.Changed("max-iters") {
		cfg.Loop.MaxIters = rootMaxIters
	}
	if flags.Changed("model-impl") {
		cfg.Models.Impl = rootModelImpl
	}
	if flags.Changed("model-review") {
		cfg.Models.Review = rootModelReview
	}
	if flags.Changed("retry-max") {
		cfg.Loop.RetryMax = rootRetryMax
	}
	if flags.Changed("retry-sleep") {
		cfg.Loop.RetrySleepSec = rootRetrySleep
	}
	if flags.Changed("dry-run") {
		cfg.Loop.DryRun = rootDryRun
	}
	if flags.Changed("backend") {
		cfg.Agent.Backend = rootBackend
	}
}

// resolvePaths anchors the configured directories. Relative prompt and report
// directories are resolved against the repository root.
func resolvePaths(cfg *config.Config, workDir string) (repoRoot, promptsDir, reportDir string) {
	repoRoot = cfg.Repo.Root
	if repoRoot == "" {
		repoRoot = workDir
	}
	promptsDir = cfg.Prompts.Dir
	if !filepath.IsAbs(promptsDir) {
		promptsDir = filepath.Join(repoRoot, promptsDir)
	}
	reportDir = cfg.Repo.ReportDir
	if !filepath.IsAbs(reportDir) {
		reportDir = filepath.Join(repoRoot, reportDir)
	}
	return repoRoot, promptsDir, reportDir
}
