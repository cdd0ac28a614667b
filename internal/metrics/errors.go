package metrics

import "errors"

var (
	// ErrNoCategories is returned when analyzer output holds no numeric categories.
	ErrNoCategories = errors.New("no metric categories in observer output")

	// ErrNoCommand is returned when a CommandObserver has nothing to run.
	ErrNoCommand = errors.New("observer command is required")
)
