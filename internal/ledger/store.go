package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/boshu2/warden/internal/storage"
)

const (
	// runIDFormat yields human-sortable run ids.
	runIDFormat = "20060102-150405.000"

	// latestFile holds the most recent run id.
	latestFile = "latest"
)

// Store persists one JSON file per run plus a latest pointer. Every mutation
// is written atomically before the call returns.
type Store struct {
	dir string

	mu  sync.Mutex
	now func() time.Time
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the ledger directory.
func (s *Store) Dir() string { return s.dir }

// Create starts an in-progress ledger for recipeID and points latest at it.
func (s *Store) Create(recipeID string) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	started := s.now().UTC()
	id, err := s.nextRunID(started, recipeID)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		RunID:     id,
		RecipeID:  recipeID,
		StartedAt: started,
		Status:    StatusInProgress,
		Edits:     []Edit{},
		Notes:     []string{},
	}
	if err := s.write(l); err != nil {
		return nil, err
	}
	if err := storage.WriteFileAtomic(filepath.Join(s.dir, latestFile), []byte(id+"\n")); err != nil {
		return nil, fmt.Errorf("update latest pointer: %w", err)
	}
	return l, nil
}

func (s *Store) nextRunID(t time.Time, recipeID string) (string, error) {
	base := t.Format(runIDFormat)
	if slug := storage.Slug(recipeID); slug != "" {
		base += "-" + slug
	}
	id := base
	for i := 2; ; i++ {
		_, err := os.Stat(s.path(id))
		if errors.Is(err, os.ErrNotExist) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("check run id: %w", err)
		}
		id = fmt.Sprintf("%s-%d", base, i)
	}
}

// AddEdit appends an edit to an in-progress run.
func (s *Store) AddEdit(runID string, e Edit) error {
	return s.update(runID, func(l *Ledger) error {
		l.Edits = append(l.Edits, e)
		return nil
	})
}

// AddNote appends a note to an in-progress run.
func (s *Store) AddNote(runID, note string) error {
	return s.update(runID, func(l *Ledger) error {
		l.Notes = append(l.Notes, note)
		return nil
	})
}

// SetSnapshot records the undo snapshot taken for the run.
func (s *Store) SetSnapshot(runID, snapshotID string) error {
	return s.update(runID, func(l *Ledger) error {
		l.SnapshotID = snapshotID
		return nil
	})
}

// Complete finalizes the run as completed, with optional metrics.
func (s *Store) Complete(runID string, summary *Summary) error {
	return s.finalize(runID, StatusCompleted, func(l *Ledger) {
		l.Metrics = summary
	})
}

// Fail finalizes the run as failed.
func (s *Store) Fail(runID, message string) error {
	return s.finalize(runID, StatusFailed, func(l *Ledger) {
		l.ErrorMessage = message
	})
}

// Rollback finalizes the run as rolled back.
func (s *Store) Rollback(runID, reason string, summary *Summary) error {
	return s.finalize(runID, StatusRolledBack, func(l *Ledger) {
		l.ErrorMessage = reason
		l.Metrics = summary
	})
}

func (s *Store) finalize(runID string, status Status, fn func(*Ledger)) error {
	return s.update(runID, func(l *Ledger) error {
		fn(l)
		l.Status = status
		t := s.now().UTC()
		l.CompletedAt = &t
		return nil
	})
}

// update applies fn to an in-progress ledger and persists the result.
func (s *Store) update(runID string, fn func(*Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.read(runID)
	if err != nil {
		return err
	}
	if l.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyFinalized, runID, l.Status)
	}
	if err := fn(l); err != nil {
		return err
	}
	return s.write(l)
}

// Get returns the ledger for runID.
func (s *Store) Get(runID string) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(runID)
}

// Latest returns the most recently created ledger.
func (s *Store) Latest() (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, latestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoLatest
	}
	if err != nil {
		return nil, fmt.Errorf("read latest pointer: %w", err)
	}
	return s.read(strings.TrimSpace(string(data)))
}

// List returns every ledger, newest first.
func (s *Store) List() ([]*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger directory: %w", err)
	}

	var out []*Ledger
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		l, err := s.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID > out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// Stats aggregates every ledger on disk.
func (s *Store) Stats() (Stats, error) {
	ledgers, err := s.List()
	if err != nil {
		return Stats{}, err
	}
	return Aggregate(ledgers), nil
}

func (s *Store) path(runID string) string {
	return filepath.Join(s.dir, runID+".json")
}

func (s *Store) read(runID string) (*Ledger, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, runID)
	}
	var l Ledger
	if err := storage.ReadJSON(s.path(runID), &l); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}
	return &l, nil
}

func (s *Store) write(l *Ledger) error {
	if err := storage.WriteJSON(s.path(l.RunID), l); err != nil {
		return fmt.Errorf("write ledger %s: %w", l.RunID, err)
	}
	return nil
}
