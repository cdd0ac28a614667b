// Package plan persists decisions so they can be reviewed before they are
// applied.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boshu2/warden/internal/metrics"
	"github.com/boshu2/warden/internal/recipe"
	"github.com/boshu2/warden/internal/storage"
)

// ErrNotFound is returned when a plan id has no file.
var ErrNotFound = errors.New("plan not found")

// Plan is a saved decision plus the baseline it was made against.
type Plan struct {
	ID         string             `json:"id"`
	CreatedAt  time.Time          `json:"createdAt"`
	Decision   string             `json:"decision"`
	Baseline   metrics.Metrics    `json:"baseline"`
	Candidates []recipe.Candidate `json:"candidates"`
}

// New builds a plan from a selection.
func New(d recipe.Decision, baseline metrics.Metrics) *Plan {
	return &Plan{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Decision:   d.RecipeID,
		Baseline:   baseline,
		Candidates: d.Candidates,
	}
}

// Store keeps plans as <dir>/<id>.json.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Save writes p atomically.
func (s *Store) Save(p *Plan) error {
	if p.ID == "" {
		return fmt.Errorf("save plan: %w", storage.ErrEmptyPath)
	}
	return storage.WriteJSON(s.path(p.ID), p)
}

// Load reads a plan by id, or by path when ref names an existing file.
func (s *Store) Load(ref string) (*Plan, error) {
	path := ref
	if _, err := os.Stat(ref); err != nil {
		if strings.ContainsAny(ref, `/\`) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		path = s.path(strings.TrimSuffix(ref, ".json"))
	}

	var p Plan
	if err := storage.ReadJSON(path, &p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("read plan %s: %w", ref, err)
	}
	return &p, nil
}

// List returns every readable plan, newest first.
func (s *Store) List() ([]*Plan, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var plans []*Plan
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var p Plan
		if err := storage.ReadJSON(filepath.Join(s.dir, e.Name()), &p); err != nil {
			continue
		}
		plans = append(plans, &p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].CreatedAt.After(plans[j].CreatedAt) })
	return plans, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
