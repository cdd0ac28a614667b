package executor

import (
	"time"

	"github.com/boshu2/warden/internal/ledger"
	"github.com/boshu2/warden/internal/policy"
	"github.com/boshu2/warden/internal/recipe"
)

// StepStatus is the outcome of one step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepBlocked StepStatus = "blocked"
	StepSkipped StepStatus = "skipped"
)

// StepResult is the explicit outcome of one action. Steps never panic or
// return errors across step boundaries; failures are values.
type StepResult struct {
	Index    int               `json:"index"`
	Kind     recipe.ActionKind `json:"kind"`
	Label    string            `json:"label"`
	Status   StepStatus        `json:"status"`
	Stdout   string            `json:"stdout,omitempty"`
	Stderr   string            `json:"stderr,omitempty"`
	Error    string            `json:"error,omitempty"`
	Duration time.Duration     `json:"duration"`
	Approval *policy.Approval  `json:"approval,omitempty"`
	Edits    []ledger.Edit     `json:"edits,omitempty"`
}

// Result aggregates the outcome of acting on a decision.
type Result struct {
	RecipeID   string        `json:"recipeId"`
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	SnapshotID string        `json:"snapshotId,omitempty"`
	Steps      []StepResult  `json:"steps,omitempty"`
	Edits      []ledger.Edit `json:"edits,omitempty"`
}

// Blocked counts steps denied by policy.
func (r Result) Blocked() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == StepBlocked {
			n++
		}
	}
	return n
}
