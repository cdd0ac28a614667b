package verify

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/boshu2/warden/internal/metrics"
)

// GateType selects a gate's rule.
type GateType string

const (
	// GateMaxRegression fails when a category's issue count grows by more
	// than Threshold. Category "*" applies to every category.
	GateMaxRegression GateType = "max_regression"

	// GateNoTotalIncrease fails when total issues grow.
	GateNoTotalIncrease GateType = "no_total_increase"

	// GateMaxTotal fails when total issues after the run exceed Threshold.
	GateMaxTotal GateType = "max_total"

	// GateMinImprovement fails when the fraction of issues removed is below Threshold.
	GateMinImprovement GateType = "min_improvement"

	// GateObserver is the synthetic gate reported when re-measurement fails.
	GateObserver GateType = "observer"
)

// ValidGateTypes enumerates the configurable GateType values.
var ValidGateTypes = map[GateType]bool{
	GateMaxRegression:   true,
	GateNoTotalIncrease: true,
	GateMaxTotal:        true,
	GateMinImprovement:  true,
}

// Gate is one configured quality gate.
type Gate struct {
	ID          string   `yaml:"id,omitempty" json:"id"`
	Type        GateType `yaml:"type" json:"type"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
	Threshold   float64  `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// GateFile is the top-level structure of gates.yaml.
type GateFile struct {
	Version int    `yaml:"version"`
	Gates   []Gate `yaml:"gates"`
}

// GateResult is the outcome of one gate.
type GateResult struct {
	ID      string   `json:"id"`
	Type    GateType `json:"type"`
	Passed  bool     `json:"passed"`
	Message string   `json:"message"`
}

// DefaultGates forbid any category from regressing and total issues from growing.
func DefaultGates() []Gate {
	return []Gate{
		{ID: "no-total-increase", Type: GateNoTotalIncrease},
		{ID: "no-regression", Type: GateMaxRegression, Category: "*", Threshold: 0},
	}
}

// LoadGates reads gates.yaml. A missing file or an empty gate list yields
// DefaultGates.
func LoadGates(path string) ([]Gate, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultGates(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gates: %w", err)
	}

	var gf GateFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parse gates: %w", err)
	}
	if len(gf.Gates) == 0 {
		return DefaultGates(), nil
	}
	for i := range gf.Gates {
		g := &gf.Gates[i]
		if !ValidGateTypes[g.Type] {
			return nil, fmt.Errorf("gates[%d]: %w %q", i, ErrUnknownGate, g.Type)
		}
		if g.Type == GateMaxRegression && g.Category == "" {
			g.Category = "*"
		}
		if g.ID == "" {
			g.ID = fmt.Sprintf("%s-%d", strings.ReplaceAll(string(g.Type), "_", "-"), i+1)
		}
	}
	return gf.Gates, nil
}

// Evaluate runs every gate against the before/after snapshots.
func Evaluate(gates []Gate, before, after metrics.Metrics, deltas map[string]float64) []GateResult {
	results := make([]GateResult, 0, len(gates))
	for _, g := range gates {
		results = append(results, evaluateGate(g, before, after, deltas))
	}
	return results
}

// AllPassed reports whether results is non-empty and every gate passed.
func AllPassed(results []GateResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func evaluateGate(g Gate, before, after metrics.Metrics, deltas map[string]float64) GateResult {
	r := GateResult{ID: g.ID, Type: g.Type}
	switch g.Type {
	case GateMaxRegression:
		var offenders []string
		for _, cat := range sortedKeys(deltas) {
			if g.Category != "*" && g.Category != cat {
				continue
			}
			if regression := -deltas[cat]; regression > g.Threshold {
				offenders = append(offenders, fmt.Sprintf("%s +%g", cat, regression))
			}
		}
		r.Passed = len(offenders) == 0
		if r.Passed {
			r.Message = fmt.Sprintf("no %s regression above %g", g.Category, g.Threshold)
		} else {
			r.Message = "regressed: " + strings.Join(offenders, ", ")
		}
	case GateNoTotalIncrease:
		r.Passed = after.TotalIssues <= before.TotalIssues
		r.Message = fmt.Sprintf("total %g -> %g", before.TotalIssues, after.TotalIssues)
	case GateMaxTotal:
		r.Passed = after.TotalIssues <= g.Threshold
		r.Message = fmt.Sprintf("total %g (max %g)", after.TotalIssues, g.Threshold)
	case GateMinImprovement:
		imp := metrics.Improvement(before, after)
		r.Passed = imp >= g.Threshold
		r.Message = fmt.Sprintf("improvement %.2f%% (min %.2f%%)", imp*100, g.Threshold*100)
	default:
		r.Message = fmt.Sprintf("%v %q", ErrUnknownGate, g.Type)
	}
	return r
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
