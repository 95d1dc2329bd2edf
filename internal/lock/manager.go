// Package lock provides cross-process edit locks backed by flock(2) files.
package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrLockTimeout is returned when the lock is still held elsewhere at the deadline.
	ErrLockTimeout = errors.New("timeout acquiring lock")
	// ErrTargetRequired is returned for an empty target path.
	ErrTargetRequired = errors.New("target path is required")
	// ErrNilLock is returned when Release is given a nil handle.
	ErrNilLock = errors.New("nil lock handle")
)

const pollInterval = 10 * time.Millisecond

// LockManager hands out one lock file per target, kept in lockDir so that no
// stray files appear next to the edited targets.
type LockManager struct {
	lockDir string
}

// NewLockManager creates lockDir if needed. An empty lockDir uses a directory
// under os.TempDir.
func NewLockManager(lockDir string) (*LockManager, error) {
	if lockDir == "" {
		lockDir = filepath.Join(os.TempDir(), "hybrid-filesystem-locks")
	}
	if err := os.MkdirAll(lockDir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create lock directory %s: %w", lockDir, err)
	}
	return &LockManager{lockDir: lockDir}, nil
}

// LockPath returns the lock file guarding target.
func (lm *LockManager) LockPath(target string) string {
	sum := sha256.Sum256([]byte(target))
	return filepath.Join(lm.lockDir, hex.EncodeToString(sum[:12])+".lock")
}

// Acquire polls for the exclusive lock on target until ctx is done. A
// deadline maps to ErrLockTimeout; cancellation returns ctx.Err().
func (lm *LockManager) Acquire(ctx context.Context, target string) (*FileLock, error) {
	if target == "" {
		return nil, ErrTargetRequired
	}

	fl := flock.New(lm.LockPath(target))
	locked, err := fl.TryLockContext(ctx, pollInterval)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return nil, ErrLockTimeout
	case errors.Is(err, context.Canceled):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("error acquiring file lock for %s: %w", target, err)
	case !locked:
		return nil, ErrLockTimeout
	}
	return &FileLock{Target: target, flock: fl}, nil
}

// Release unlocks l. The lock file itself is left in place for reuse.
func (lm *LockManager) Release(l *FileLock) error {
	if l == nil {
		return ErrNilLock
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("error releasing file lock for %s: %w", l.Target, err)
	}
	return nil
}
