// Package snapshot captures the content of files before a recipe mutates
// them and restores that content on request.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/boshu2/warden/internal/storage"
)

// idFormat yields human-sortable snapshot ids.
const idFormat = "20060102-150405.000000"

// FileState is the pre-mutation state of one file.
type FileState struct {
	Path    string      `json:"path"`
	Existed bool        `json:"existed"`
	Content []byte      `json:"content,omitempty"`
	Mode    fs.FileMode `json:"mode,omitempty"`
	Hash    string      `json:"hash,omitempty"`
}

// Undo is an immutable capture of every file a recipe is about to touch.
type Undo struct {
	ID        string      `json:"id"`
	RunID     string      `json:"runId"`
	RecipeID  string      `json:"recipeId"`
	CreatedAt time.Time   `json:"createdAt"`
	Root      string      `json:"root"`
	Files     []FileState `json:"files"`
}

// Summary describes a snapshot without its file contents.
type Summary struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId"`
	RecipeID  string    `json:"recipeId"`
	CreatedAt time.Time `json:"createdAt"`
	Files     int       `json:"files"`
}

// Store persists undo snapshots as one JSON file each.
type Store struct {
	dir  string
	root string
	now  func() time.Time
}

// NewStore returns a Store writing to dir and capturing paths relative to root.
func NewStore(dir, root string) *Store {
	return &Store{dir: dir, root: root, now: time.Now}
}

// Dir returns the snapshot directory.
func (s *Store) Dir() string { return s.dir }

// Create captures paths and durably writes the snapshot before returning.
// Missing files are recorded as not existing so restore removes them. Paths
// that escape the root or are not regular files fail with ErrCapture.
func (s *Store) Create(runID, recipeID string, paths []string) (*Undo, error) {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	u := &Undo{
		RunID:     runID,
		RecipeID:  recipeID,
		CreatedAt: s.now().UTC(),
		Root:      root,
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := storage.ResolveWithin(root, p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCapture, err)
		}
		rel, _ := filepath.Rel(root, abs) //nolint:errcheck // abs is inside root
		if seen[rel] {
			continue
		}
		seen[rel] = true

		st, err := capture(abs)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrCapture, rel, err)
		}
		st.Path = filepath.ToSlash(rel)
		u.Files = append(u.Files, st)
	}

	u.ID, err = s.nextID(u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := storage.WriteJSON(s.path(u.ID), u); err != nil {
		return nil, fmt.Errorf("write undo snapshot: %w", err)
	}
	return u, nil
}

func capture(path string) (FileState, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return FileState{Existed: false}, nil
	}
	if err != nil {
		return FileState{}, err
	}
	if !info.Mode().IsRegular() {
		return FileState{}, ErrNotRegular
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FileState{}, err
	}
	sum := sha256.Sum256(data)
	return FileState{
		Existed: true,
		Content: data,
		Mode:    info.Mode().Perm(),
		Hash:    hex.EncodeToString(sum[:]),
	}, nil
}

// nextID derives an id from t, suffixing a counter if it is already taken.
func (s *Store) nextID(t time.Time) (string, error) {
	base := t.Format(idFormat)
	id := base
	for i := 2; ; i++ {
		_, err := os.Stat(s.path(id))
		if errors.Is(err, os.ErrNotExist) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("check snapshot id: %w", err)
		}
		id = fmt.Sprintf("%s-%d", base, i)
	}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Load reads the snapshot with id.
func (s *Store) Load(id string) (*Undo, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	var u Undo
	if err := storage.ReadJSON(s.path(id), &u); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return &u, nil
}

// List returns every snapshot, newest first.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Summary
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		u, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, Summary{
			ID:        u.ID,
			RunID:     u.RunID,
			RecipeID:  u.RecipeID,
			CreatedAt: u.CreatedAt,
			Files:     len(u.Files),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Restore puts every captured file back to its recorded state and returns
// the restored paths. Files that did not exist at capture time are removed.
func (s *Store) Restore(id string) ([]string, error) {
	u, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	root := u.Root
	if root == "" {
		root = s.root
	}

	restored := make([]string, 0, len(u.Files))
	for _, f := range u.Files {
		abs, err := storage.ResolveWithin(root, filepath.FromSlash(f.Path))
		if err != nil {
			return restored, err
		}
		if f.Existed {
			if err := storage.WriteFileAtomic(abs, f.Content); err != nil {
				return restored, fmt.Errorf("restore %s: %w", f.Path, err)
			}
			if f.Mode != 0 {
				if err := os.Chmod(abs, f.Mode); err != nil {
					return restored, fmt.Errorf("restore mode %s: %w", f.Path, err)
				}
			}
		} else if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
			return restored, fmt.Errorf("remove %s: %w", f.Path, err)
		}
		restored = append(restored, f.Path)
	}
	return restored, nil
}
