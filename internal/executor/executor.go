// Package executor applies a selected recipe to the target directory: it
// snapshots the files the recipe will touch, runs each step in order, and
// records every edit in the run's ledger.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/boshu2/warden/internal/ledger"
	"github.com/boshu2/warden/internal/policy"
	"github.com/boshu2/warden/internal/recipe"
	"github.com/boshu2/warden/internal/snapshot"
	"github.com/boshu2/warden/internal/trust"
)

// DefaultStepTimeout bounds a single step when neither the action nor the
// configuration sets one.
const DefaultStepTimeout = 10 * time.Minute

// Approver decides whether a shell command may run.
type Approver interface {
	Evaluate(command string) policy.Approval
}

// Snapshots captures and restores file state.
type Snapshots interface {
	Create(runID, recipeID string, paths []string) (*snapshot.Undo, error)
	Restore(id string) ([]string, error)
}

// Ledger receives the run's bookkeeping.
type Ledger interface {
	AddEdit(runID string, e ledger.Edit) error
	AddNote(runID, note string) error
	SetSnapshot(runID, snapshotID string) error
}

// Config wires an Executor.
type Config struct {
	Root        string
	Snapshots   Snapshots
	Approver    Approver
	Ledger      Ledger
	StepTimeout time.Duration
	Logger      *slog.Logger
}

// Executor runs recipes against Root.
type Executor struct {
	root        string
	snapshots   Snapshots
	approver    Approver
	ledger      Ledger
	stepTimeout time.Duration
	logger      *slog.Logger
}

// New returns an Executor.
func New(cfg Config) *Executor {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		root:        cfg.Root,
		snapshots:   cfg.Snapshots,
		approver:    cfg.Approver,
		ledger:      cfg.Ledger,
		stepTimeout: cfg.StepTimeout,
		logger:      cfg.Logger,
	}
}

// Act executes the recipe named by recipeID within run runID.
//
// noop and unknown ids perform no snapshot and no mutation. For a real
// recipe the undo snapshot is durably written before the first step runs.
// Step failures and paths that cannot be captured are reported in the
// Result; the returned error is reserved for storage failures (snapshot or
// ledger writes).
func (e *Executor) Act(ctx context.Context, runID, recipeID string, recipes []*recipe.Recipe) (Result, error) {
	if recipeID == trust.NoopID {
		e.logger.Info("nothing required action")
		if err := e.ledger.AddNote(runID, "noop: nothing required action"); err != nil {
			return Result{}, err
		}
		return Result{RecipeID: recipeID, Success: true, Message: "nothing required action"}, nil
	}

	r := recipe.Find(recipes, recipeID)
	if r == nil {
		msg := "Recipe not found: " + recipeID
		e.logger.Warn(msg)
		if err := e.ledger.AddNote(runID, msg); err != nil {
			return Result{}, err
		}
		return Result{RecipeID: recipeID, Message: msg}, nil
	}

	undo, err := e.snapshots.Create(runID, r.ID, r.Paths())
	if errors.Is(err, snapshot.ErrCapture) {
		msg := "cannot snapshot recipe paths: " + err.Error()
		e.logger.Warn("recipe not run", "recipe", r.ID, "error", err)
		if err := e.ledger.AddNote(runID, msg); err != nil {
			return Result{}, err
		}
		return Result{RecipeID: r.ID, Message: msg}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("create undo snapshot: %w", err)
	}
	if err := e.ledger.SetSnapshot(runID, undo.ID); err != nil {
		return Result{}, err
	}
	e.logger.Info("undo snapshot written", "snapshot", undo.ID, "files", len(undo.Files))

	res := Result{RecipeID: r.ID, SnapshotID: undo.ID, Success: true}
	prior := priorContent(undo)

	for i, a := range r.Actions {
		if res.Success {
			step := e.runStep(ctx, i, a, prior)
			res.Steps = append(res.Steps, step)
			if step.Status == StepFailed {
				res.Success = false
				res.Message = fmt.Sprintf("step %d (%s) failed: %s", i+1, step.Label, step.Error)
			}
		} else {
			res.Steps = append(res.Steps, StepResult{Index: i, Kind: a.Kind, Label: a.Label(), Status: StepSkipped})
		}

		step := res.Steps[len(res.Steps)-1]
		if err := e.record(runID, step); err != nil {
			return res, err
		}
		res.Edits = append(res.Edits, step.Edits...)
	}

	if res.Success {
		switch blocked := res.Blocked(); {
		case len(r.Actions) > 0 && blocked == len(r.Actions):
			res.Success = false
			res.Message = "all steps blocked by policy"
		case blocked > 0:
			res.Message = fmt.Sprintf("%d step(s) run, %d blocked by policy", len(r.Actions)-blocked, blocked)
		default:
			res.Message = fmt.Sprintf("%d step(s) run", len(r.Actions))
		}
	}
	e.logger.Info("recipe executed", "recipe", r.ID, "success", res.Success, "edits", len(res.Edits), "message", res.Message)
	return res, nil
}

// record writes a step's edits and a summary note to the ledger.
func (e *Executor) record(runID string, s StepResult) error {
	for _, ed := range s.Edits {
		if err := e.ledger.AddEdit(runID, ed); err != nil {
			return err
		}
	}
	note := fmt.Sprintf("step %d %s: %s", s.Index+1, s.Label, s.Status)
	switch {
	case s.Status == StepBlocked && s.Approval != nil:
		note += fmt.Sprintf(" (policy %s", s.Approval.SafetyReason)
		if s.Approval.Pattern != "" {
			note += fmt.Sprintf(", pattern %q", s.Approval.Pattern)
		}
		note += ")"
	case s.Error != "":
		note += ": " + s.Error
	}
	return e.ledger.AddNote(runID, note)
}

// Rollback restores the files captured in snapshotID.
func (e *Executor) Rollback(snapshotID string) ([]string, error) {
	paths, err := e.snapshots.Restore(snapshotID)
	if err != nil {
		return paths, fmt.Errorf("restore %s: %w", snapshotID, err)
	}
	e.logger.Info("snapshot restored", "snapshot", snapshotID, "files", len(paths))
	return paths, nil
}

// priorContent indexes the snapshot by path; a nil entry means the file was absent.
func priorContent(u *snapshot.Undo) map[string][]byte {
	m := make(map[string][]byte, len(u.Files))
	for _, f := range u.Files {
		if f.Existed {
			m[f.Path] = f.Content
		} else {
			m[f.Path] = nil
		}
	}
	return m
}
