// Package ledger records every governance cycle: when it started, which
// files it edited, what it noted along the way, and how it ended.
package ledger

import (
	"time"

	"github.com/boshu2/warden/internal/metrics"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled-back"
)

// Terminal reports whether s ends a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRolledBack
}

// Edit is one file change made by the executor.
type Edit struct {
	Path      string `json:"path"`
	DiffSize  int    `json:"diffSize"`
	Operation string `json:"operation"`
}

// Summary carries the before/after metrics of a finished run.
type Summary struct {
	Before      metrics.Metrics `json:"before"`
	After       metrics.Metrics `json:"after"`
	Improvement float64         `json:"improvement"`
}

// NewSummary computes the improvement between before and after.
func NewSummary(before, after metrics.Metrics) *Summary {
	return &Summary{Before: before, After: after, Improvement: metrics.Improvement(before, after)}
}

// Ledger is the record of one run.
type Ledger struct {
	RunID        string     `json:"runId"`
	RecipeID     string     `json:"recipeId"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Status       Status     `json:"status"`
	Edits        []Edit     `json:"edits"`
	Notes        []string   `json:"notes"`
	Metrics      *Summary   `json:"metrics,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	SnapshotID   string     `json:"snapshotId,omitempty"`
}

// Stats aggregates all ledgers.
type Stats struct {
	Total          int     `json:"total"`
	InProgress     int     `json:"inProgress"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	RolledBack     int     `json:"rolledBack"`
	TotalEdits     int     `json:"totalEdits"`
	AvgEdits       float64 `json:"avgEdits"`
	AvgImprovement float64 `json:"avgImprovement"`
}

// Aggregate computes Stats over ledgers. AvgImprovement averages only runs
// that recorded metrics.
func Aggregate(ledgers []*Ledger) Stats {
	var (
		s        Stats
		measured int
		improve  float64
	)
	for _, l := range ledgers {
		s.Total++
		s.TotalEdits += len(l.Edits)
		switch l.Status {
		case StatusInProgress:
			s.InProgress++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusRolledBack:
			s.RolledBack++
		}
		if l.Metrics != nil {
			measured++
			improve += l.Metrics.Improvement
		}
	}
	if s.Total > 0 {
		s.AvgEdits = float64(s.TotalEdits) / float64(s.Total)
	}
	if measured > 0 {
		s.AvgImprovement = improve / float64(measured)
	}
	return s
}
