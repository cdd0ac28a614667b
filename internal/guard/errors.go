package guard

import "errors"

var (
	// ErrNoGolden is returned when no golden snapshot has been written yet.
	ErrNoGolden = errors.New("no golden snapshot")

	// ErrEmptyRunID is returned when an evidence entry has no run id.
	ErrEmptyRunID = errors.New("run id is required")

	// ErrNoKey is returned when signing is attempted without a key.
	ErrNoKey = errors.New("signing key is required")
)
