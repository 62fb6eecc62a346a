// Package state manages the report directory layout and batch bookkeeping
// files.
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Filenames inside the report directory.
const (
	BatchLogFile    = "batch_orchestrator.log"
	CompletedFile   = "completed_prompts.txt"
	LockFile        = ".refbatch.lock"
	RecordsDir      = "records"
	PreflightPrefix = "preflight"
)

// BatchLogPath returns the path of the orchestrator log file.
func BatchLogPath(reportDir string) string {
	return filepath.Join(reportDir, BatchLogFile)
}

// CompletedPath returns the path of the completed-task ledger.
func CompletedPath(reportDir string) string {
	return filepath.Join(reportDir, CompletedFile)
}

// LockPath returns the path of the run lock file.
func LockPath(reportDir string) string {
	return filepath.Join(reportDir, LockFile)
}

// RecordsDirPath returns the path of the iteration records directory.
func RecordsDirPath(reportDir string) string {
	return filepath.Join(reportDir, RecordsDir)
}

// PreflightLogPath returns the log path for a role's preflight check.
func PreflightLogPath(reportDir, role, model string) string {
	safe := sanitize(model)
	return filepath.Join(reportDir, fmt.Sprintf("%s_%s_%s.log", PreflightPrefix, role, safe))
}

// EnsureReportDir creates the report directory structure. Idempotent.
func EnsureReportDir(reportDir string) error {
	dirs := []string{
		reportDir,
		RecordsDirPath(reportDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// sanitize replaces path separators in model IDs for filename use.
func sanitize(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			out[i] = '_'
		}
	}
	return string(out)
}
