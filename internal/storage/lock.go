package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// FileLock is an advisory exclusive lock on a file, shared across processes.
type FileLock struct {
	path string
	f    *os.File
}

// NewFileLock returns an unlocked lock for path.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path}
}

// Lock blocks until the exclusive lock is acquired.
func (l *FileLock) Lock() error {
	return l.acquire(syscall.LOCK_EX)
}

// TryLock acquires the lock without blocking, returning ErrLocked if it is held.
func (l *FileLock) TryLock() error {
	return l.acquire(syscall.LOCK_EX | syscall.LOCK_NB)
}

func (l *FileLock) acquire(how int) error {
	if l.path == "" {
		return ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0700); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return ErrLocked
		}
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	l.f = f
	return nil
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (l *FileLock) Unlock() error {
	if l.f == nil {
		return nil
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN) //nolint:errcheck // close releases the lock regardless
	err := l.f.Close()
	l.f = nil
	return err
}

// WithLock runs fn while holding the exclusive lock at path.
func WithLock(path string, fn func() error) (err error) {
	l := NewFileLock(path)
	if err := l.Lock(); err != nil {
		return err
	}
	defer func() {
		if uerr := l.Unlock(); err == nil {
			err = uerr
		}
	}()
	return fn()
}
