package ledger

import "errors"

var (
	// ErrNotFound is returned when no ledger exists for a run id.
	ErrNotFound = errors.New("ledger not found")

	// ErrAlreadyFinalized is returned when a finalized ledger is mutated.
	ErrAlreadyFinalized = errors.New("ledger already finalized")

	// ErrNoLatest is returned by Latest before any run was recorded.
	ErrNoLatest = errors.New("no ledger recorded yet")
)
