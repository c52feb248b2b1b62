package device

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/kairos-io/qcowmount/types"
)

// PoolLock guards the window between picking a slot and binding it.
// It only coordinates processes that take the same lock.
type PoolLock interface {
	Lock() error
	Unlock() error
}

type FileLock struct {
	lock   *flock.Flock
	logger types.Logger
}

func NewFileLock(path string, logger types.Logger) *FileLock {
	return &FileLock{lock: flock.New(path), logger: logger}
}

func (l *FileLock) Lock() error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrLockFailed, l.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("%w: %s is held by another process", types.ErrLockFailed, l.lock.Path())
	}
	l.logger.Logger.Trace().Str("lock", l.lock.Path()).Msg("Acquired pool lock")
	return nil
}

func (l *FileLock) Unlock() error {
	return l.lock.Unlock()
}

// NoLock is used when locking is disabled
type NoLock struct{}

func (NoLock) Lock() error   { return nil }
func (NoLock) Unlock() error { return nil }
