package snapshot

import "errors"

var (
	// ErrNotFound is returned when no snapshot has the requested id.
	ErrNotFound = errors.New("undo snapshot not found")

	// ErrNotRegular is returned when a captured path is not a regular file.
	ErrNotRegular = errors.New("not a regular file")

	// ErrCapture wraps failures to resolve or read a path before anything is
	// written. The target is unchanged when it is returned.
	ErrCapture = errors.New("cannot capture path")
)
