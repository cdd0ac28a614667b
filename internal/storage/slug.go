package storage

import "strings"

const (
	// SlugMaxLength is the maximum length for file-name-safe slugs.
	SlugMaxLength = 50

	// SlugMinWordBoundary is the minimum length before trimming at word boundary.
	SlugMinWordBoundary = 30
)

// Slug creates a file-name-safe slug from text, or "" when nothing survives.
func Slug(text string) string {
	return truncateSlug(slugify(strings.ToLower(text)))
}

// slugify replaces non-alphanumeric runs with single hyphens and trims leading/trailing hyphens.
func slugify(input string) string {
	var result strings.Builder
	lastHyphen := false
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			result.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(result.String(), "-")
}

// truncateSlug limits the slug to SlugMaxLength, preferring word boundaries.
func truncateSlug(s string) string {
	if len(s) <= SlugMaxLength {
		return s
	}
	s = s[:SlugMaxLength]
	if idx := strings.LastIndex(s, "-"); idx > SlugMinWordBoundary {
		s = s[:idx]
	}
	return strings.Trim(s, "-")
}
