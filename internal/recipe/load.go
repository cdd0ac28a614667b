package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadError records a recipe file that was skipped.
type LoadError struct {
	Path string
	Err  error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e LoadError) Unwrap() error { return e.Err }

// ErrUnsupportedFormat is returned for recipe files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported recipe format")

// LoadFile parses and validates one recipe file (.yaml, .yml, .json or .toml).
func LoadFile(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Recipe
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &r)
	case ".json":
		err = json.Unmarshal(data, &r)
	case ".toml":
		err = toml.Unmarshal(data, &r)
	default:
		return nil, ErrUnsupportedFormat
	}
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	normalize(&r)
	if errs := Validate(&r); len(errs) > 0 {
		return nil, errors.Join(validationErrs(errs)...)
	}
	r.Source = path
	return &r, nil
}

// LoadDir loads every recipe file in dir, sorted by file name. Malformed or
// invalid files and duplicate ids are skipped with a warning and reported in
// the returned LoadErrors; they never fail the load. A missing dir yields no
// recipes.
func LoadDir(dir string, logger *slog.Logger) ([]*Recipe, []LoadError) {
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("cannot read recipe directory", "dir", dir, "error", err)
			return nil, []LoadError{{Path: dir, Err: err}}
		}
		return nil, nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var (
		recipes []*Recipe
		skipped []LoadError
		seen    = make(map[string]string)
	)
	for _, name := range names {
		path := filepath.Join(dir, name)
		r, err := LoadFile(path)
		if errors.Is(err, ErrUnsupportedFormat) {
			continue
		}
		if err == nil {
			if first, dup := seen[r.ID]; dup {
				err = fmt.Errorf("duplicate recipe id %q (first defined in %s)", r.ID, first)
			}
		}
		if err != nil {
			logger.Warn("skipping recipe", "path", path, "error", err)
			skipped = append(skipped, LoadError{Path: path, Err: err})
			continue
		}
		seen[r.ID] = path
		recipes = append(recipes, r)
	}
	return recipes, skipped
}

// Find returns the recipe with id, or nil.
func Find(recipes []*Recipe, id string) *Recipe {
	for _, r := range recipes {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func normalize(r *Recipe) {
	r.ID = strings.TrimSpace(r.ID)
	if r.Name == "" {
		r.Name = r.ID
	}
	if r.Condition != nil && r.Condition.Type == "" {
		r.Condition.Type = ConditionAll
	}
	for i := range r.Actions {
		if r.Actions[i].Kind == "" && r.Actions[i].Command != "" {
			r.Actions[i].Kind = KindRunCommand
		}
	}
}

func validationErrs(errs []ValidationError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}
