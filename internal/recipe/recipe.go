// Package recipe defines remediation recipes, loads them from configuration,
// and selects the most trusted applicable recipe for a set of metrics.
package recipe

import (
	"fmt"
	"regexp"

	"github.com/boshu2/warden/internal/metrics"
)

// ConditionType combines a condition's rules.
type ConditionType string

const (
	ConditionAll ConditionType = "all"
	ConditionAny ConditionType = "any"
)

// Operator compares a metric against a threshold.
type Operator string

const (
	OpGT Operator = ">"
	OpGE Operator = ">="
	OpLT Operator = "<"
	OpLE Operator = "<="
	OpEQ Operator = "=="
	OpNE Operator = "!="
)

// ValidOperators enumerates the allowed Operator values.
var ValidOperators = map[Operator]bool{
	OpGT: true, OpGE: true, OpLT: true, OpLE: true, OpEQ: true, OpNE: true,
}

// Rule is a single metric comparison.
type Rule struct {
	Metric   string   `yaml:"metric" json:"metric" toml:"metric"`
	Operator Operator `yaml:"operator" json:"operator" toml:"operator"`
	Value    float64  `yaml:"value" json:"value" toml:"value"`
}

// Holds reports whether the rule is satisfied by m. Unknown metrics read as 0.
func (r Rule) Holds(m metrics.Metrics) bool {
	v := m.Get(r.Metric)
	switch r.Operator {
	case OpGT:
		return v > r.Value
	case OpGE:
		return v >= r.Value
	case OpLT:
		return v < r.Value
	case OpLE:
		return v <= r.Value
	case OpEQ:
		return v == r.Value
	case OpNE:
		return v != r.Value
	default:
		return false
	}
}

// Condition gates a recipe on the current metrics.
type Condition struct {
	Type  ConditionType `yaml:"type" json:"type" toml:"type"`
	Rules []Rule        `yaml:"rules" json:"rules" toml:"rules"`
}

// Matches evaluates the condition. An "any" condition with no rules never matches;
// an "all" condition with no rules always does.
func (c *Condition) Matches(m metrics.Metrics) bool {
	if c == nil {
		return true
	}
	if c.Type == ConditionAny {
		for _, r := range c.Rules {
			if r.Holds(m) {
				return true
			}
		}
		return false
	}
	for _, r := range c.Rules {
		if !r.Holds(m) {
			return false
		}
	}
	return true
}

// Recipe is a remediation definition. Recipes are read-only configuration.
type Recipe struct {
	ID          string     `yaml:"id" json:"id" toml:"id"`
	Name        string     `yaml:"name" json:"name" toml:"name"`
	Description string     `yaml:"description" json:"description" toml:"description"`
	Trust       float64    `yaml:"trust" json:"trust" toml:"trust"`
	Priority    int        `yaml:"priority" json:"priority" toml:"priority"`
	Tags        []string   `yaml:"tags,omitempty" json:"tags,omitempty" toml:"tags"`
	Condition   *Condition `yaml:"condition,omitempty" json:"condition,omitempty" toml:"condition"`
	Actions     []Action   `yaml:"actions" json:"actions" toml:"actions"`

	// Source is the file the recipe was loaded from.
	Source string `yaml:"-" json:"-" toml:"-"`
}

// Applicable reports whether the recipe's condition holds for m.
func (r *Recipe) Applicable(m metrics.Metrics) bool {
	return r.Condition.Matches(m)
}

// Paths returns every file the recipe's actions are expected to touch,
// in first-seen order without duplicates.
func (r *Recipe) Paths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range r.Actions {
		for _, p := range a.Paths() {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

// ValidationError describes a problem with a specific recipe field.
type ValidationError struct {
	RecipeID string
	Field    string
	Message  string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("recipe %q field %q: %s", e.RecipeID, e.Field, e.Message)
}

// idRe matches ids usable as file-name fragments.
var idRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks a single recipe for structural correctness.
func Validate(r *Recipe) []ValidationError {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{RecipeID: r.ID, Field: field, Message: msg})
	}

	switch {
	case r.ID == "":
		add("id", "required")
	case r.ID == "noop":
		add("id", "reserved")
	case !idRe.MatchString(r.ID):
		add("id", "must be alphanumeric with . _ -")
	}

	if c := r.Condition; c != nil {
		if c.Type != ConditionAll && c.Type != ConditionAny {
			add("condition.type", fmt.Sprintf("invalid type %q", c.Type))
		}
		for i, rule := range c.Rules {
			if rule.Metric == "" {
				add(fmt.Sprintf("condition.rules[%d].metric", i), "required")
			}
			if !ValidOperators[rule.Operator] {
				add(fmt.Sprintf("condition.rules[%d].operator", i), fmt.Sprintf("invalid operator %q", rule.Operator))
			}
		}
	}

	for i, a := range r.Actions {
		if err := a.Validate(); err != nil {
			add(fmt.Sprintf("actions[%d]", i), err.Error())
		}
	}
	return errs
}
