package policy

import "errors"

// ErrInvalidPattern is returned when a rule pattern cannot be compiled.
var ErrInvalidPattern = errors.New("invalid policy pattern")

// ErrInvalidAction is returned when the default action is neither allow nor deny.
var ErrInvalidAction = errors.New("invalid default action")
