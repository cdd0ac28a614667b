package verify

import "errors"

// ErrUnknownGate is returned when a gate has an unrecognized type.
var ErrUnknownGate = errors.New("unknown gate type")
