package invoker

import (
	"context"
	"fmt"
	"os"
)

// DryRunInvoker never spawns a subprocess. It writes a single descriptive
// line to the log documenting what would have been invoked and reports
// success. No retry budget is consumed and the target repository is never
// touched.
type DryRunInvoker struct{}

// NewDryRunInvoker creates a DryRunInvoker.
func NewDryRunInvoker() *DryRunInvoker {
	return &DryRunInvoker{}
}

// Invoke records the skipped invocation and succeeds unconditionally.
func (d *DryRunInvoker) Invoke(_ context.Context, req Request) error {
	line := fmt.Sprintf("DRY_RUN: %s invocation skipped (model=%s prompt=%s)\n",
		req.Role, req.Model, req.PromptPath)
	if err := os.WriteFile(req.LogPath, []byte(line), 0644); err != nil {
		return fmt.Errorf("failed to write dry-run log %s: %w", req.LogPath, err)
	}
	return nil
}
