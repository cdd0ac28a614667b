// Package loop runs the governance cycle: observe the target, decide on a
// recipe, act under an undo snapshot, verify, learn, and record evidence.
//
// A cycle is strictly sequential and cycles never overlap: the Runner holds
// an in-process mutex and an exclusive file lock on the data directory for
// the whole cycle. Only storage failures and an engaged kill switch
// (a KILL file in the data directory) are returned as errors; everything
// else, including failed steps, failed gates and policy denials, is part of
// the Report.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/boshu2/warden/internal/executor"
	"github.com/boshu2/warden/internal/guard"
	"github.com/boshu2/warden/internal/ledger"
	"github.com/boshu2/warden/internal/metrics"
	"github.com/boshu2/warden/internal/plan"
	"github.com/boshu2/warden/internal/policy"
	"github.com/boshu2/warden/internal/recipe"
	"github.com/boshu2/warden/internal/snapshot"
	"github.com/boshu2/warden/internal/storage"
	"github.com/boshu2/warden/internal/trust"
	"github.com/boshu2/warden/internal/verify"
)

// Options wires a Runner.
type Options struct {
	// TargetDir is the repository being governed.
	TargetDir string

	// BaseDir is the data directory (absolute or relative to the cwd).
	BaseDir string

	Observer       metrics.Observer
	StepTimeout    time.Duration
	RollbackOnFail bool
	CriticalFiles  []string

	// SigningKey signs evidence entries. Empty means the key file at KeyPath
	// is loaded or created.
	SigningKey []byte
	KeyPath    string

	// DryRun stops every cycle after Decide.
	DryRun bool

	Logger *slog.Logger
}

// Runner owns every store and component of the loop.
type Runner struct {
	opts   Options
	layout storage.Layout
	logger *slog.Logger

	Trust     *trust.FileStore
	Learner   *trust.Learner
	Selector  *recipe.Selector
	Policy    *policy.Engine
	Snapshots *snapshot.Store
	Ledger    *ledger.Store
	Executor  *executor.Executor
	Verifier  *verify.Verifier
	Guard     *guard.Guard
	Plans     *plan.Store

	mu   sync.Mutex
	lock *storage.FileLock
}

// New builds a Runner, creating the data directory layout if needed.
// A malformed gates file is logged and the default gates apply.
func New(opts Options) (*Runner, error) {
	if opts.Observer == nil {
		return nil, ErrNoObserver
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TargetDir == "" {
		opts.TargetDir = "."
	}
	target, err := filepath.Abs(opts.TargetDir)
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	opts.TargetDir = target
	if opts.BaseDir == "" {
		opts.BaseDir = filepath.Join(target, storage.DefaultBaseDir)
	}

	layout := storage.NewLayout(opts.BaseDir)
	if err := layout.Init(); err != nil {
		return nil, err
	}

	key := opts.SigningKey
	if len(key) == 0 {
		keyPath := opts.KeyPath
		if keyPath == "" {
			keyPath = filepath.Join(layout.BaseDir, "signing.key")
		}
		if key, err = guard.LoadOrCreateKey(keyPath); err != nil {
			return nil, err
		}
	}

	gates, err := verify.LoadGates(layout.GatesPath())
	if err != nil {
		opts.Logger.Warn("invalid gates file, using defaults", "path", layout.GatesPath(), "error", err)
		gates = verify.DefaultGates()
	}

	logger := opts.Logger
	r := &Runner{
		opts:      opts,
		layout:    layout,
		logger:    logger,
		Trust:     trust.NewFileStore(layout.TrustPath()),
		Policy:    policy.NewEngine(layout.PolicyPath(), logger),
		Snapshots: snapshot.NewStore(layout.UndoDir(), target),
		Ledger:    ledger.NewStore(layout.LedgerDir()),
		Verifier:  verify.New(opts.Observer, gates, logger),
		Plans:     plan.NewStore(layout.PlansDir()),
		lock:      storage.NewFileLock(layout.LockPath()),
	}
	r.Learner = trust.NewLearner(r.Trust, layout.HistoryPath(), logger)
	r.Selector = recipe.NewSelector(r.Trust, logger)
	r.Executor = executor.New(executor.Config{
		Root:        target,
		Snapshots:   r.Snapshots,
		Approver:    r.Policy,
		Ledger:      r.Ledger,
		StepTimeout: opts.StepTimeout,
		Logger:      logger,
	})
	r.Guard = guard.New(guard.Config{
		Root:          target,
		GoldenPath:    layout.GoldenPath(),
		EvidencePath:  layout.EvidencePath(),
		CriticalFiles: opts.CriticalFiles,
		Key:           key,
		Logger:        logger,
	})
	return r, nil
}

// Layout returns the data directory layout.
func (r *Runner) Layout() storage.Layout { return r.layout }

// TargetDir returns the absolute target directory.
func (r *Runner) TargetDir() string { return r.opts.TargetDir }

// Report is everything one cycle produced.
type Report struct {
	RunID      string                `json:"runId,omitempty"`
	PlanID     string                `json:"planId,omitempty"`
	DryRun     bool                  `json:"dryRun,omitempty"`
	Before     metrics.Metrics       `json:"before"`
	Decision   recipe.Decision       `json:"decision"`
	Skipped    []string              `json:"skippedRecipes,omitempty"`
	Act        *executor.Result      `json:"act,omitempty"`
	Verify     *verify.Result        `json:"verify,omitempty"`
	Learn      *trust.LearnResult    `json:"learn,omitempty"`
	Evidence   *guard.EvidenceEntry  `json:"evidence,omitempty"`
	Golden     *guard.GoldenSnapshot `json:"golden,omitempty"`
	RolledBack []string              `json:"rolledBack,omitempty"`
	Restored   string                `json:"restoredSnapshot,omitempty"`
	Status     ledger.Status         `json:"status,omitempty"`
	Passed     bool                  `json:"passed"`
	Message    string                `json:"message,omitempty"`
}

// RunOnce runs a single cycle.
func (r *Runner) RunOnce(ctx context.Context) (*Report, error) {
	return r.cycle(ctx, nil)
}

// Decide observes the target and selects a recipe without acting.
func (r *Runner) Decide(ctx context.Context) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := &Report{DryRun: true}
	before, err := r.opts.Observer.Observe(ctx, r.opts.TargetDir)
	if err != nil {
		rep.Message = "observe baseline: " + err.Error()
		return rep, nil
	}
	rep.Before = before
	if err := r.decide(rep, r.loadRecipes(rep)); err != nil {
		return nil, err
	}
	rep.Passed = true
	rep.Message = "decided " + rep.Decision.RecipeID
	return rep, nil
}

// ApplyPlan runs a cycle with the plan's decision instead of selecting one.
// The baseline is re-observed so deltas reflect the current tree.
func (r *Runner) ApplyPlan(ctx context.Context, p *plan.Plan) (*Report, error) {
	if p.Decision != trust.NoopID {
		rec, _, err := r.Trust.Get(p.Decision)
		if err != nil {
			return nil, err
		}
		if rec.Blacklisted {
			return nil, fmt.Errorf("%w: %s", ErrBlacklisted, p.Decision)
		}
	}
	return r.cycle(ctx, p)
}

func (r *Runner) cycle(ctx context.Context, p *plan.Plan) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire cycle lock: %w", err)
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("release cycle lock", "error", err)
		}
	}()

	if _, err := os.Stat(r.layout.KillPath()); err == nil {
		return nil, fmt.Errorf("%w: remove %s to resume", ErrKilled, r.layout.KillPath())
	}

	rep := &Report{DryRun: r.opts.DryRun}

	before, err := r.opts.Observer.Observe(ctx, r.opts.TargetDir)
	if err != nil {
		return r.abortObserve(rep, err)
	}
	rep.Before = before

	recipes := r.loadRecipes(rep)
	if p != nil {
		rep.PlanID = p.ID
		rep.Decision = recipe.Decision{RecipeID: p.Decision, Candidates: p.Candidates}
	} else if err := r.decide(rep, recipes); err != nil {
		return nil, err
	}

	if r.opts.DryRun {
		rep.Passed = true
		rep.Message = "dry run: decided " + rep.Decision.RecipeID
		return rep, nil
	}

	l, err := r.Ledger.Create(rep.Decision.RecipeID)
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}
	rep.RunID = l.RunID
	rep.Before.RunID = l.RunID
	r.logger.Info("cycle started", "run", l.RunID, "decision", rep.Decision.RecipeID)

	if err := r.execute(ctx, rep, recipes); err != nil {
		r.failLedger(rep.RunID, err)
		r.recordAborted(ctx, rep)
		return nil, err
	}
	return rep, nil
}

// loadRecipes reads the recipe directory. Unloadable recipes are skipped
// and listed in the report.
func (r *Runner) loadRecipes(rep *Report) []*recipe.Recipe {
	recipes, skipped := recipe.LoadDir(r.layout.RecipesDir(), r.logger)
	for _, s := range skipped {
		rep.Skipped = append(rep.Skipped, filepath.Base(s.Path))
	}
	return recipes
}

func (r *Runner) decide(rep *Report, recipes []*recipe.Recipe) error {
	d, err := r.Selector.Decide(rep.Before, recipes)
	if err != nil {
		return err
	}
	rep.Decision = d
	return nil
}

// execute runs Act through ledger finalization for an open run.
func (r *Runner) execute(ctx context.Context, rep *Report, recipes []*recipe.Recipe) error {
	act, err := r.Executor.Act(ctx, rep.RunID, rep.Decision.RecipeID, recipes)
	if err != nil {
		return err
	}
	rep.Act = &act

	var deltas map[string]float64
	if act.Success {
		v := r.Verifier.Verify(ctx, r.opts.TargetDir, rep.Before)
		rep.Verify = &v
		deltas = v.Deltas
		rep.Passed = v.GatesPassed
		if err := r.Ledger.AddNote(rep.RunID, gateNote(v)); err != nil {
			return err
		}
	} else {
		rep.Message = act.Message
	}

	paths := editedPaths(act.Edits)
	outcome := guard.Outcome{
		RunID:       rep.RunID,
		Decision:    rep.Decision.RecipeID,
		Deltas:      deltas,
		GatesPassed: rep.Passed,
		Paths:       paths,
	}
	attestation, err := r.Guard.ContentHash(ctx, outcome)
	if err != nil {
		return fmt.Errorf("hash edited files: %w", err)
	}

	learned, err := r.Learner.Learn(trust.Outcome{
		RecipeID:    rep.Decision.RecipeID,
		Success:     rep.Passed,
		Deltas:      deltas,
		Attestation: attestation,
	})
	if err != nil {
		return fmt.Errorf("learn: %w", err)
	}
	rep.Learn = &learned
	if learned.Blacklisted {
		if err := r.Ledger.AddNote(rep.RunID, learned.Message); err != nil {
			return err
		}
	}

	if !rep.Passed && r.opts.RollbackOnFail && act.SnapshotID != "" {
		restored, err := r.Executor.Rollback(act.SnapshotID)
		if err != nil {
			return fmt.Errorf("rollback %s: %w", act.SnapshotID, err)
		}
		rep.RolledBack = restored
		rep.Restored = act.SnapshotID
		// The edits no longer exist after a restore; hash the decision instead.
		outcome.Paths = nil
	}

	recorded, err := r.Guard.Record(ctx, outcome)
	if err != nil {
		return fmt.Errorf("record evidence: %w", err)
	}
	rep.Evidence = &recorded.Evidence
	rep.Golden = recorded.Golden

	return r.finalize(rep)
}

// finalize performs the single terminal ledger write.
func (r *Runner) finalize(rep *Report) error {
	var summary *ledger.Summary
	if rep.Verify != nil && rep.Verify.Error == "" {
		summary = ledger.NewSummary(rep.Before, rep.Verify.After)
	}

	var err error
	switch {
	case rep.Passed:
		rep.Status = ledger.StatusCompleted
		rep.Message = "gates passed"
		err = r.Ledger.Complete(rep.RunID, summary)
	case rep.Restored != "":
		rep.Status = ledger.StatusRolledBack
		rep.Message = failureReason(rep) + "; rolled back"
		err = r.Ledger.Rollback(rep.RunID, failureReason(rep), summary)
	default:
		rep.Status = ledger.StatusFailed
		rep.Message = failureReason(rep)
		if rep.Act != nil && rep.Act.SnapshotID != "" {
			rep.Message += "; restore with snapshot " + rep.Act.SnapshotID
		}
		err = r.Ledger.Fail(rep.RunID, failureReason(rep))
	}
	if err != nil {
		return fmt.Errorf("finalize ledger: %w", err)
	}

	r.logger.Info("cycle finished", "run", rep.RunID, "status", rep.Status, "passed", rep.Passed)
	return nil
}

// abortObserve records a run whose baseline could not be measured.
func (r *Runner) abortObserve(rep *Report, cause error) (*Report, error) {
	rep.Decision = recipe.Decision{RecipeID: trust.NoopID}
	rep.Message = "observe baseline: " + cause.Error()
	r.logger.Warn("baseline observation failed", "error", cause)
	if r.opts.DryRun {
		return rep, nil
	}

	l, err := r.Ledger.Create(trust.NoopID)
	if err != nil {
		return nil, fmt.Errorf("create ledger: %w", err)
	}
	rep.RunID = l.RunID
	rep.Status = ledger.StatusFailed
	if err := r.Ledger.Fail(l.RunID, rep.Message); err != nil {
		return nil, fmt.Errorf("finalize ledger: %w", err)
	}
	return rep, nil
}

// failLedger marks the run failed after a storage error, best effort.
func (r *Runner) failLedger(runID string, cause error) {
	err := r.Ledger.Fail(runID, cause.Error())
	if err != nil && !errors.Is(err, ledger.ErrAlreadyFinalized) {
		r.logger.Error("cannot finalize ledger after storage error", "run", runID, "error", err)
	}
}

// recordAborted appends a failed evidence entry for a run that stopped on a
// storage error, unless execute already recorded one. Best effort.
func (r *Runner) recordAborted(ctx context.Context, rep *Report) {
	if rep.Evidence != nil {
		return
	}
	_, err := r.Guard.Record(ctx, guard.Outcome{
		RunID:    rep.RunID,
		Decision: rep.Decision.RecipeID,
	})
	if err != nil {
		r.logger.Error("cannot record evidence after storage error", "run", rep.RunID, "error", err)
	}
}

func failureReason(rep *Report) string {
	if rep.Act != nil && !rep.Act.Success {
		return rep.Act.Message
	}
	if rep.Verify == nil {
		return "not verified"
	}
	if rep.Verify.Error != "" {
		return "verification failed: " + rep.Verify.Error
	}
	var ids []string
	for _, g := range rep.Verify.FailedGates() {
		ids = append(ids, g.ID)
	}
	return "gates failed: " + strings.Join(ids, ", ")
}

func gateNote(v verify.Result) string {
	if v.GatesPassed {
		return fmt.Sprintf("verify: %d gate(s) passed", len(v.Gates))
	}
	var parts []string
	for _, g := range v.FailedGates() {
		parts = append(parts, g.ID+": "+g.Message)
	}
	return "verify: gates failed (" + strings.Join(parts, "; ") + ")"
}

func editedPaths(edits []ledger.Edit) []string {
	seen := make(map[string]bool, len(edits))
	var out []string
	for _, e := range edits {
		if seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		out = append(out, e.Path)
	}
	return out
}
