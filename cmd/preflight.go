package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yarlson/refbatch/internal/config"
	"github.com/yarlson/refbatch/internal/invoker"
	"github.com/yarlson/refbatch/internal/logging"
	"github.com/yarlson/refbatch/internal/state"
)

func newPreflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check that both configured models respond",
		Long:  "Send a one-line probe prompt to the implementer and reviewer models and report whether each responds. No task prompts are touched.",
		RunE:  runPreflight,
	}
}

func runPreflight(cmd *cobra.Command, args []string) error {
	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := loadConfig(workDir)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	repoRoot, _, reportDir := resolvePaths(cfg, workDir)
	if err := state.EnsureReportDir(reportDir); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	log := logging.NewConsole(rootVerbose)
	defer func() { _ = log.Sync() }()

	resolver := invoker.ModelResolver{
		Aliases:     cfg.Models.Aliases,
		LocalModels: cfg.Models.LocalModels,
		LocalPrefix: cfg.Models.LocalPrefix,
	}
	subp := invoker.NewSubprocessInvoker(cfg.Agent.Command, cfg.Agent.Backend, repoRoot, log).
		WithResolver(resolver)

	if err := runPreflightChecks(cmd.Context(), subp, cfg, reportDir, log); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "preflight OK: both models responded")
	return nil
}

// runPreflightChecks probes the implementer and reviewer models in turn. The
// first model that does not respond aborts the check.
func runPreflightChecks(ctx context.Context, subp *invoker.SubprocessInvoker, cfg *config.Config, reportDir string, log *zap.Logger) error {
	timeout := time.Duration(cfg.Preflight.TimeoutSec) * time.Second
	checks := []struct {
		role  invoker.Role
		model string
	}{
		{invoker.RoleImplementer, cfg.Models.Impl},
		{invoker.RoleReviewer, cfg.Models.Review},
	}
	for _, c := range checks {
		logPath := state.PreflightLogPath(reportDir, c.role.String(), c.model)
		log.Info("preflight check",
			zap.String("role", c.role.String()),
			zap.String("model", c.model))
		if err := subp.Preflight(ctx, c.role, c.model, logPath, timeout); err != nil {
			return fmt.Errorf("%s model %s did not respond: %w", c.role, c.model, err)
		}
	}
	return nil
}
