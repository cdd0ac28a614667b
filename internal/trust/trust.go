// Package trust keeps per-recipe running statistics and learns from cycle
// outcomes: trust is the clamped success ratio, and a recipe that fails
// BlacklistThreshold times in a row is disabled.
package trust

import (
	"time"
)

const (
	// DefaultTrust is the trust of a recipe that has never been scored.
	DefaultTrust = 0.5

	// MinTrust and MaxTrust bound every learned trust value.
	MinTrust = 0.1
	MaxTrust = 1.0

	// BlacklistThreshold is the number of consecutive failures that disables a recipe.
	BlacklistThreshold = 3

	// NoopID is the always-available "do nothing" decision.
	NoopID = "noop"
)

// Record is the mutable trust state for one recipe id.
type Record struct {
	ID                  string    `json:"id"`
	Runs                int       `json:"runs"`
	Success             int       `json:"success"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	Trust               float64   `json:"trust"`
	Blacklisted         bool      `json:"blacklisted"`
	LastUpdated         time.Time `json:"lastUpdated,omitempty"`
}

// NewRecord returns the lazily-created default record for id.
func NewRecord(id string) Record {
	return Record{ID: id, Trust: DefaultTrust}
}

// Clamp bounds v to [MinTrust, MaxTrust].
func Clamp(v float64) float64 {
	if v < MinTrust {
		return MinTrust
	}
	if v > MaxTrust {
		return MaxTrust
	}
	return v
}

// Store persists trust records. Get never fails for an unknown id: it
// returns NewRecord(id) with ok=false. Errors are storage failures only.
type Store interface {
	Get(id string) (rec Record, ok bool, err error)
	Put(rec Record) error
	All() ([]Record, error)
	Delete(id string) error
}
