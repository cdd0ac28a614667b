// Package storage provides the file primitives shared by every warden store:
// atomic whole-file writes, durable JSONL appends, advisory file locks, and
// the on-disk layout of the .warden directory.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultBaseDir is the default data directory, relative to the target.
	DefaultBaseDir = ".warden"

	// RecipesDir holds one recipe definition per file.
	RecipesDir = "recipes"

	// LedgerDir holds one ledger record per run plus the latest pointer.
	LedgerDir = "ledger"

	// UndoDir holds undo snapshots.
	UndoDir = "undo"

	// PlansDir holds saved decisions.
	PlansDir = "plans"

	// PolicyFile is the command approval policy.
	PolicyFile = "policy.yaml"

	// GatesFile is the quality gate configuration.
	GatesFile = "gates.yaml"

	// TrustFile holds the trust store.
	TrustFile = "trust.json"

	// HistoryFile is the append-only trust learning history.
	HistoryFile = "history.jsonl"

	// EvidenceFile is the append-only evidence chain.
	EvidenceFile = "evidence.jsonl"

	// GoldenFile is the last known-good snapshot.
	GoldenFile = "golden.json"

	// LockFile serializes cycles across processes.
	LockFile = "warden.lock"

	// KillFile stops cycles while it exists.
	KillFile = "KILL"
)

// Layout resolves every warden path from a single base directory.
type Layout struct {
	// BaseDir is the root directory (e.g., /repo/.warden).
	BaseDir string
}

// NewLayout returns a Layout rooted at baseDir.
func NewLayout(baseDir string) Layout {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	return Layout{BaseDir: baseDir}
}

// Init creates the required directory structure.
func (l Layout) Init() error {
	dirs := []string{
		l.RecipesDir(),
		l.LedgerDir(),
		l.UndoDir(),
		l.PlansDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

func (l Layout) RecipesDir() string   { return filepath.Join(l.BaseDir, RecipesDir) }
func (l Layout) LedgerDir() string    { return filepath.Join(l.BaseDir, LedgerDir) }
func (l Layout) UndoDir() string      { return filepath.Join(l.BaseDir, UndoDir) }
func (l Layout) PlansDir() string     { return filepath.Join(l.BaseDir, PlansDir) }
func (l Layout) PolicyPath() string   { return filepath.Join(l.BaseDir, PolicyFile) }
func (l Layout) GatesPath() string    { return filepath.Join(l.BaseDir, GatesFile) }
func (l Layout) TrustPath() string    { return filepath.Join(l.BaseDir, TrustFile) }
func (l Layout) HistoryPath() string  { return filepath.Join(l.BaseDir, HistoryFile) }
func (l Layout) EvidencePath() string { return filepath.Join(l.BaseDir, EvidenceFile) }
func (l Layout) GoldenPath() string   { return filepath.Join(l.BaseDir, GoldenFile) }
func (l Layout) LockPath() string     { return filepath.Join(l.BaseDir, LockFile) }
func (l Layout) KillPath() string     { return filepath.Join(l.BaseDir, KillFile) }
