// Package guard keeps the last known-good state of critical files and an
// append-only, hash-chained, signed log of every run's outcome.
package guard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config wires a Guard.
type Config struct {
	Root          string
	GoldenPath    string
	EvidencePath  string
	CriticalFiles []string
	Key           []byte
	Concurrency   int
	Logger        *slog.Logger
}

// Outcome is what the guard records about one run.
type Outcome struct {
	RunID       string
	Decision    string
	Deltas      map[string]float64
	GatesPassed bool

	// Paths are the files the run edited; their hashes form the content hash.
	Paths []string
}

// Report is what Record wrote.
type Report struct {
	Golden   *GoldenSnapshot `json:"golden,omitempty"`
	Evidence EvidenceEntry   `json:"evidence"`
}

// Guard writes golden snapshots and evidence entries.
type Guard struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// New returns a Guard.
func New(cfg Config) *Guard {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{cfg: cfg, logger: logger, now: time.Now, newID: uuid.NewString}
}

// CriticalFiles returns the configured critical file list.
func (g *Guard) CriticalFiles() []string { return g.cfg.CriticalFiles }

// Record appends an evidence entry for the run and, only when its gates
// passed, overwrites the golden snapshot.
func (g *Guard) Record(ctx context.Context, o Outcome) (Report, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var rep Report
	if o.GatesPassed {
		golden, err := g.writeGolden(ctx, o.RunID)
		if err != nil {
			return rep, err
		}
		rep.Golden = golden
	}

	contentHash, err := g.ContentHash(ctx, o)
	if err != nil {
		return rep, err
	}
	entry, err := appendEvidence(g.cfg.EvidencePath, g.cfg.Key, EvidenceEntry{
		ID:          g.newID(),
		RunID:       o.RunID,
		Timestamp:   g.now().UTC(),
		Decision:    o.Decision,
		Deltas:      o.Deltas,
		GatesPassed: o.GatesPassed,
		ContentHash: contentHash,
	})
	if err != nil {
		return rep, err
	}
	rep.Evidence = entry
	g.logger.Info("evidence appended", "run", o.RunID, "hash", entry.Hash, "golden", rep.Golden != nil)
	return rep, nil
}

// WriteGolden hashes the critical files and overwrites the golden snapshot.
func (g *Guard) WriteGolden(ctx context.Context, runID string) (*GoldenSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writeGolden(ctx, runID)
}

func (g *Guard) writeGolden(ctx context.Context, runID string) (*GoldenSnapshot, error) {
	files, err := HashFiles(ctx, g.cfg.Root, g.cfg.CriticalFiles, g.cfg.Concurrency)
	if err != nil {
		return nil, err
	}
	snap := &GoldenSnapshot{Files: files, Timestamp: g.now().UTC(), RunID: runID}
	if err := writeGolden(g.cfg.GoldenPath, snap); err != nil {
		return nil, err
	}
	g.logger.Info("golden snapshot written", "files", len(files), "run", runID)
	return snap, nil
}

// Golden returns the current golden snapshot, or ErrNoGolden.
func (g *Guard) Golden() (*GoldenSnapshot, error) {
	return readGolden(g.cfg.GoldenPath)
}

// CheckDrift compares the critical files on disk with the golden snapshot.
func (g *Guard) CheckDrift(ctx context.Context) ([]Drift, error) {
	golden, err := readGolden(g.cfg.GoldenPath)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(golden.Files))
	for i, f := range golden.Files {
		paths[i] = f.Path
	}
	current, err := HashFiles(ctx, g.cfg.Root, paths, g.cfg.Concurrency)
	if err != nil {
		return nil, err
	}
	return Compare(golden.Files, current), nil
}

// Evidence returns every evidence entry in append order.
func (g *Guard) Evidence() ([]EvidenceEntry, error) {
	return ReadEvidence(g.cfg.EvidencePath)
}

// Verify checks the evidence log's chain and signatures.
func (g *Guard) Verify() (ChainReport, error) {
	entries, err := ReadEvidence(g.cfg.EvidencePath)
	if err != nil {
		return ChainReport{}, err
	}
	return VerifyChain(entries, g.cfg.Key), nil
}

// ContentHash hashes the edited file set, or the decision when nothing was edited.
func (g *Guard) ContentHash(ctx context.Context, o Outcome) (string, error) {
	var payload any = struct {
		RunID    string `json:"runId"`
		Decision string `json:"decision"`
	}{o.RunID, o.Decision}

	if len(o.Paths) > 0 {
		files, err := HashFiles(ctx, g.cfg.Root, o.Paths, g.cfg.Concurrency)
		if err != nil {
			return "", err
		}
		payload = files
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}
	return hashHex(data), nil
}
