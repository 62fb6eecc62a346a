package state

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrBatchRunning indicates another batch already holds the run lock.
var ErrBatchRunning = errors.New("another refbatch run is already in progress")

// RunLock serializes batches against a single repository. The orchestrator
// is strictly sequential; two concurrent batches editing the same working
// tree would corrupt each other's snapshots.
type RunLock struct {
	flock *flock.Flock
}

// AcquireRunLock takes the run lock for the report directory without
// blocking. Returns ErrBatchRunning if the lock is held elsewhere.
func AcquireRunLock(reportDir string) (*RunLock, error) {
	fl := flock.New(LockPath(reportDir))
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		return nil, ErrBatchRunning
	}
	return &RunLock{flock: fl}, nil
}

// Release releases the run lock.
func (l *RunLock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}
