package executor

import "errors"

var (
	// ErrNoMatch is reported by replace_text when the pattern is absent.
	ErrNoMatch = errors.New("no match")

	// ErrStepTimeout is reported when a step exceeds its timeout.
	ErrStepTimeout = errors.New("step timed out")
)
