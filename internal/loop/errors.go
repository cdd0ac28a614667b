package loop

import "errors"

var (
	// ErrNoObserver is returned when a Runner is built without an Observer.
	ErrNoObserver = errors.New("no metrics observer configured")

	// ErrBlacklisted is returned when a plan names a blacklisted recipe.
	ErrBlacklisted = errors.New("recipe is blacklisted")

	// ErrKilled is returned when the kill file exists at a cycle boundary.
	ErrKilled = errors.New("kill switch engaged")
)
