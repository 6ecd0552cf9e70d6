package contextstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

const lockPollInterval = 25 * time.Millisecond

// fileLock is an exclusive advisory lock on a file next to the document.
// The operating system drops it when the holder exits, so an abandoned lock
// file is simply reacquired. The file itself is never removed.
type fileLock struct {
	path string
	fl   *flock.Flock
}

func newFileLock(path string) *fileLock {
	return &fileLock{path: path, fl: flock.New(path)}
}

// acquire blocks until the lock is held or timeout elapses.
func (l *fileLock) acquire(timeout time.Duration) error {
	held, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	if held {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	held, err = l.fl.TryLockContext(ctx, lockPollInterval)
	switch {
	case held:
		return nil
	case err == nil, errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s", ErrLocked, l.path)
	default:
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
}

func (l *fileLock) release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return nil
}
