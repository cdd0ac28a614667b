package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveWithin joins path onto root and rejects results that escape root.
// Absolute paths are accepted only when they already lie inside root.
func ResolveWithin(root, path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	return target, nil
}
