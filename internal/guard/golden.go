package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/boshu2/warden/internal/storage"
	"github.com/boshu2/warden/internal/worker"
)

// FileHash is the content hash of one critical file.
type FileHash struct {
	Path    string `json:"path"`
	Hash    string `json:"hash"`
	Missing bool   `json:"missing,omitempty"`
}

// GoldenSnapshot is the last known-good state of the critical files.
type GoldenSnapshot struct {
	Files     []FileHash `json:"files"`
	Timestamp time.Time  `json:"timestamp"`
	RunID     string     `json:"runId,omitempty"`
}

// DriftStatus classifies a difference from the golden snapshot.
type DriftStatus string

const (
	DriftModified DriftStatus = "modified"
	DriftMissing  DriftStatus = "missing"
	DriftAdded    DriftStatus = "added"
)

// Drift is one critical file that no longer matches the golden snapshot.
type Drift struct {
	Path     string      `json:"path"`
	Status   DriftStatus `json:"status"`
	Expected string      `json:"expected,omitempty"`
	Actual   string      `json:"actual,omitempty"`
}

// HashFiles hashes paths relative to root concurrently. Missing files are
// reported with Missing set rather than as errors. Results are sorted by path.
func HashFiles(ctx context.Context, root string, paths []string, concurrency int) ([]FileHash, error) {
	pool := worker.NewPool[FileHash](concurrency)
	results := pool.Map(ctx, dedupe(paths), func(_ context.Context, p string) (FileHash, error) {
		abs, err := storage.ResolveWithin(root, p)
		if err != nil {
			return FileHash{}, err
		}
		fh := FileHash{Path: filepath.ToSlash(filepath.Clean(p))}
		sum, err := hashFile(abs)
		if errors.Is(err, os.ErrNotExist) {
			fh.Missing = true
			return fh, nil
		}
		if err != nil {
			return FileHash{}, fmt.Errorf("hash %s: %w", p, err)
		}
		fh.Hash = sum
		return fh, nil
	})
	if errs := worker.Errors(results); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	out := make([]FileHash, 0, len(results))
	for _, r := range results {
		out = append(out, r.Value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Compare reports every file whose state differs between golden and current.
func Compare(golden, current []FileHash) []Drift {
	cur := make(map[string]FileHash, len(current))
	for _, f := range current {
		cur[f.Path] = f
	}

	var drifts []Drift
	for _, g := range golden {
		c, ok := cur[g.Path]
		if !ok {
			continue
		}
		switch {
		case g.Missing && !c.Missing:
			drifts = append(drifts, Drift{Path: g.Path, Status: DriftAdded, Actual: c.Hash})
		case !g.Missing && c.Missing:
			drifts = append(drifts, Drift{Path: g.Path, Status: DriftMissing, Expected: g.Hash})
		case !g.Missing && g.Hash != c.Hash:
			drifts = append(drifts, Drift{Path: g.Path, Status: DriftModified, Expected: g.Hash, Actual: c.Hash})
		}
	}
	return drifts
}

func writeGolden(path string, g *GoldenSnapshot) error {
	if err := storage.WriteJSON(path, g); err != nil {
		return fmt.Errorf("write golden snapshot: %w", err)
	}
	return nil
}

func readGolden(path string) (*GoldenSnapshot, error) {
	var g GoldenSnapshot
	if err := storage.ReadJSON(path, &g); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoGolden
		}
		return nil, err
	}
	return &g, nil
}
