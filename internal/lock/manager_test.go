package lock

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testLockTimeout  = 200 * time.Millisecond
	testPollInterval = 10 * time.Millisecond
	veryShortTimeout = 30 * time.Millisecond
)

func newTestManager(t *testing.T) *LockManager {
	t.Helper()
	lm, err := NewLockManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewLockManager failed: %v", err)
	}
	return lm
}

func acquire(lm *LockManager, target string, timeout time.Duration) (*FileLock, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return lm.Acquire(ctx, target)
}

func TestLockManager_AcquireReleaseBasic(t *testing.T) {
	lm := newTestManager(t)
	target := "/data/testfile.txt"

	l, err := acquire(lm, target, testLockTimeout)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if l.Target != target {
		t.Errorf("expected Target %s, got %s", target, l.Target)
	}
	if err := lm.Release(l); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	l, err = acquire(lm, target, testLockTimeout)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	_ = lm.Release(l)
}

func TestLockManager_AcquireEmptyTarget(t *testing.T) {
	lm := newTestManager(t)
	_, err := acquire(lm, "", testLockTimeout)
	if !errors.Is(err, ErrTargetRequired) {
		t.Errorf("expected ErrTargetRequired, got %v", err)
	}
}

func TestLockManager_ReleaseNil(t *testing.T) {
	lm := newTestManager(t)
	if err := lm.Release(nil); !errors.Is(err, ErrNilLock) {
		t.Errorf("expected ErrNilLock, got %v", err)
	}
}

func TestLockManager_LockTimeout(t *testing.T) {
	lm := newTestManager(t)
	target := "/data/timeout.txt"

	held, err := acquire(lm, target, testLockTimeout)
	if err != nil {
		t.Fatalf("Initial Acquire failed: %v", err)
	}

	startTime := time.Now()
	_, err = acquire(lm, target, veryShortTimeout)
	duration := time.Since(startTime)

	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
	if duration < veryShortTimeout-testPollInterval {
		t.Errorf("second acquire returned too quickly, duration %v", duration)
	}

	if err := lm.Release(held); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
}

func TestLockManager_AcquireCancelled(t *testing.T) {
	lm := newTestManager(t)
	held, err := acquire(lm, "/data/c.txt", testLockTimeout)
	if err != nil {
		t.Fatalf("Initial Acquire failed: %v", err)
	}
	defer lm.Release(held)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(veryShortTimeout, cancel)
	_, err = lm.Acquire(ctx, "/data/c.txt")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLockManager_DistinctTargetsDoNotContend(t *testing.T) {
	lm := newTestManager(t)
	a, err := acquire(lm, "/data/a.txt", testLockTimeout)
	if err != nil {
		t.Fatalf("Acquire a failed: %v", err)
	}
	defer lm.Release(a)

	b, err := acquire(lm, "/data/b.txt", veryShortTimeout)
	if err != nil {
		t.Fatalf("Acquire b should not contend with a: %v", err)
	}
	_ = lm.Release(b)
}

func TestLockManager_LockPathStaysInLockDir(t *testing.T) {
	dir := t.TempDir()
	lm, err := NewLockManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	p := lm.LockPath("/some/where/file.txt")
	if filepath.Dir(p) != dir {
		t.Errorf("lock file %s outside lock dir %s", p, dir)
	}
	if lm.LockPath("/x") == lm.LockPath("/y") {
		t.Error("distinct targets share a lock file")
	}
}

func TestLockManager_SerializesWriters(t *testing.T) {
	lm := newTestManager(t)
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, err := acquire(lm, "/data/shared.txt", 2*time.Second)
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = lm.Release(l)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("expected at most one holder at a time, saw %d", maxInside)
	}
}
