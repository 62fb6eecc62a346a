package state

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// LoadCompleted reads the completed-task ledger. Tasks listed there are
// skipped on re-run, so an interrupted batch resumes where it left off.
// A missing ledger yields an empty set.
func LoadCompleted(reportDir string) (map[string]bool, error) {
	data, err := os.ReadFile(CompletedPath(reportDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("failed to read completed ledger: %w", err)
	}

	completed := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		name := strings.TrimSpace(line)
		if name != "" {
			completed[name] = true
		}
	}
	return completed, nil
}

// MarkCompleted appends a task name to the ledger. Already-listed names are
// not duplicated.
func MarkCompleted(reportDir, name string) error {
	completed, err := LoadCompleted(reportDir)
	if err != nil {
		return err
	}
	if completed[name] {
		return nil
	}

	f, err := os.OpenFile(CompletedPath(reportDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open completed ledger: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "%s\n", name); err != nil {
		return fmt.Errorf("failed to append to completed ledger: %w", err)
	}
	return nil
}
