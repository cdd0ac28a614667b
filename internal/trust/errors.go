package trust

import "errors"

var (
	// ErrEmptyID is returned when a record without an id is stored or learned.
	ErrEmptyID = errors.New("recipe id is required")

	// ErrNotFound is returned by Reset for an id the store has never seen.
	ErrNotFound = errors.New("trust record not found")
)
