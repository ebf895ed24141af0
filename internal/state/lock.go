package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// staleAfter is the age past which an abandoned lock is reclaimed.
const staleAfter = 10 * time.Minute

// RunInProgressError reports a concurrent invocation against the same run.
type RunInProgressError struct {
	RunID    string
	LockPath string
}

func (e *RunInProgressError) Error() string {
	return fmt.Sprintf("run %s is already in progress (lock file: %s). "+
		"If this is an error, remove the lock file manually", e.RunID, e.LockPath)
}

// Lock acquires a per-run file lock to prevent concurrent runs against the
// same run ID.
func (s *Store) Lock(runID string) error {
	lockPath := s.lockPath(runID)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > staleAfter {
			os.Remove(lockPath)
		} else {
			return &RunInProgressError{RunID: runID, LockPath: lockPath}
		}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	return nil
}

// Unlock releases the per-run lock.
func (s *Store) Unlock(runID string) error {
	if err := os.Remove(s.lockPath(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (s *Store) lockPath(runID string) string {
	return filepath.Join(s.dir, runID+".lock")
}
