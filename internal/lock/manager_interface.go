package lock

import (
	"context"

	"github.com/gofrs/flock"
)

// FileLock is a held edit lock on Target.
type FileLock struct {
	Target string
	flock  *flock.Flock
}

// Locker serializes edits per target path. Acquire blocks until the lock is
// held or ctx is done; every successful Acquire must be paired with Release.
type Locker interface {
	Acquire(ctx context.Context, target string) (*FileLock, error)
	Release(l *FileLock) error
}

var _ Locker = (*LockManager)(nil)
