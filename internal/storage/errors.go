package storage

import "errors"

// Sentinel errors for the storage package. Using sentinels instead of ad-hoc
// fmt.Errorf allows callers to match with errors.Is for reliable error handling.
var (
	// ErrEmptyPath is returned when a write is attempted without a path.
	ErrEmptyPath = errors.New("path is required")

	// ErrLocked is returned by TryLock when another process holds the lock.
	ErrLocked = errors.New("lock held by another process")

	// ErrOutsideRoot is returned when a path escapes its root directory.
	ErrOutsideRoot = errors.New("path escapes root")
)
