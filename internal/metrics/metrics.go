// Package metrics defines the issue-count snapshot the governance loop
// consumes, and the Observer contract external analyzers satisfy.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Metrics is an immutable, point-in-time count of issues per category.
type Metrics struct {
	Categories  map[string]float64 `json:"categories"`
	Timestamp   time.Time          `json:"timestamp"`
	RunID       string             `json:"runId,omitempty"`
	TargetDir   string             `json:"targetDir"`
	TotalIssues float64            `json:"totalIssues"`
}

// New builds Metrics from category counts, computing TotalIssues.
// Negative counts are clamped to zero.
func New(targetDir string, categories map[string]float64) Metrics {
	m := Metrics{
		Categories: make(map[string]float64, len(categories)),
		Timestamp:  time.Now().UTC(),
		TargetDir:  targetDir,
	}
	for k, v := range categories {
		if v < 0 {
			v = 0
		}
		m.Categories[k] = v
		m.TotalIssues += v
	}
	return m
}

// Get returns the count for a category, or 0 when the category is unknown.
func (m Metrics) Get(name string) float64 {
	switch name {
	case "totalIssues", "total":
		return m.TotalIssues
	}
	return m.Categories[name]
}

// Names returns the category names in sorted order.
func (m Metrics) Names() []string {
	names := make([]string, 0, len(m.Categories))
	for k := range m.Categories {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Deltas returns before-after for every category present in either snapshot.
// A positive delta is an improvement (fewer issues).
func Deltas(before, after Metrics) map[string]float64 {
	d := make(map[string]float64, len(before.Categories))
	for k, v := range before.Categories {
		d[k] = v - after.Categories[k]
	}
	for k, v := range after.Categories {
		if _, ok := before.Categories[k]; !ok {
			d[k] = -v
		}
	}
	return d
}

// Improvement is the fraction of baseline issues removed, in [-inf, 1].
// Zero when the baseline had no issues.
func Improvement(before, after Metrics) float64 {
	if before.TotalIssues <= 0 {
		return 0
	}
	return (before.TotalIssues - after.TotalIssues) / before.TotalIssues
}

// Observer produces Metrics for a target directory. Implementations may block
// for a long time; they must honor ctx cancellation.
type Observer interface {
	Observe(ctx context.Context, targetDir string) (Metrics, error)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, targetDir string) (Metrics, error)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, targetDir string) (Metrics, error) {
	return f(ctx, targetDir)
}

// Parse decodes analyzer output. Two shapes are accepted: a flat object of
// category counts, or an object with a "categories" field (a serialized
// Metrics). Non-numeric fields in the flat shape are ignored.
func Parse(targetDir string, data []byte) (Metrics, error) {
	var wrapped struct {
		Categories map[string]float64 `json:"categories"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Categories != nil {
		return New(targetDir, wrapped.Categories), nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metrics{}, fmt.Errorf("parse metrics: %w", err)
	}
	cats := make(map[string]float64, len(raw))
	for k, v := range raw {
		switch n := v.(type) {
		case float64:
			cats[k] = n
		case map[string]any:
			if c, ok := n["count"].(float64); ok {
				cats[k] = c
			}
		}
	}
	if len(cats) == 0 {
		return Metrics{}, ErrNoCategories
	}
	delete(cats, "totalIssues")
	return New(targetDir, cats), nil
}
