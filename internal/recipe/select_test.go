package recipe

import (
	"testing"

	"github.com/boshu2/warden/internal/metrics"
	"github.com/boshu2/warden/internal/trust"
)

func rule(metric string, op Operator, v float64) Rule {
	return Rule{Metric: metric, Operator: op, Value: v}
}

func scenarioRecipes() []*Recipe {
	return []*Recipe{
		{
			ID:        "typescript-fixer",
			Priority:  5,
			Condition: &Condition{Type: ConditionAll, Rules: []Rule{rule("type", OpGT, 0)}},
			Actions:   []Action{{Kind: KindRunCommand, Command: "pnpm tsc --noEmit"}},
		},
		{
			ID:        "security-hardening",
			Priority:  8,
			Condition: &Condition{Type: ConditionAny, Rules: []Rule{rule("security", OpGT, 100), rule("secrets", OpGT, 0)}},
			Actions:   []Action{{Kind: KindRunCommand, Command: "pnpm audit fix"}},
		},
		{
			ID:        "import-cleaner",
			Priority:  3,
			Condition: &Condition{Type: ConditionAll, Rules: []Rule{rule("lint", OpGE, 10), rule("complexity", OpGT, 1000)}},
			Actions:   []Action{{Kind: KindRunCommand, Command: "pnpm eslint --fix"}},
		},
	}
}

func TestDecide_Scenario(t *testing.T) {
	m := metrics.New("/repo", map[string]float64{"lint": 18, "security": 919, "complexity": 2672})
	store := trust.NewMemStore(
		trust.Record{ID: "typescript-fixer", Trust: 0.95, Runs: 4},
		trust.Record{ID: "security-hardening", Trust: 0.8, Runs: 5},
		trust.Record{ID: "import-cleaner", Trust: 0.6, Runs: 5},
	)

	d, err := NewSelector(store, nil).Decide(m, scenarioRecipes())
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if d.RecipeID != "security-hardening" {
		t.Errorf("Decide() = %q, want security-hardening (typescript-fixer does not match)", d.RecipeID)
	}
	if len(d.Candidates) != 2 {
		t.Errorf("candidates = %+v, want 2", d.Candidates)
	}
}

func TestDecide_NoMatchIsNoop(t *testing.T) {
	m := metrics.New("/repo", map[string]float64{"lint": 1})
	d, err := NewSelector(trust.NewMemStore(), nil).Decide(m, scenarioRecipes())
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsNoop() || d.RecipeID != "noop" {
		t.Errorf("Decide() = %q, want noop", d.RecipeID)
	}
	if len(d.Candidates) != 0 {
		t.Errorf("candidates = %+v, want none", d.Candidates)
	}
}

func TestDecide_EmptyRecipeSetIsNoop(t *testing.T) {
	d, err := NewSelector(trust.NewMemStore(), nil).Decide(metrics.New("", nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsNoop() {
		t.Errorf("Decide() = %q, want noop", d.RecipeID)
	}
}

func TestDecide_BlacklistedNeverReturned(t *testing.T) {
	m := metrics.New("/repo", map[string]float64{"lint": 18, "security": 919, "complexity": 2672})
	store := trust.NewMemStore(
		trust.Record{ID: "security-hardening", Trust: 1.0, Blacklisted: true},
		trust.Record{ID: "import-cleaner", Trust: 0.2},
	)

	d, err := NewSelector(store, nil).Decide(m, scenarioRecipes())
	if err != nil {
		t.Fatal(err)
	}
	if d.RecipeID != "import-cleaner" {
		t.Errorf("Decide() = %q, want import-cleaner", d.RecipeID)
	}
	if len(d.Blacklisted) != 1 || d.Blacklisted[0] != "security-hardening" {
		t.Errorf("Blacklisted = %v", d.Blacklisted)
	}
}

func TestDecide_NoConditionAlwaysApplicable(t *testing.T) {
	recipes := []*Recipe{{ID: "always", Actions: []Action{{Kind: KindDeleteFile, Path: "x"}}}}
	d, err := NewSelector(trust.NewMemStore(), nil).Decide(metrics.New("", nil), recipes)
	if err != nil {
		t.Fatal(err)
	}
	if d.RecipeID != "always" {
		t.Errorf("Decide() = %q, want always", d.RecipeID)
	}
}

func TestDecide_UnknownRecordUsesConfiguredTrust(t *testing.T) {
	recipes := []*Recipe{
		{ID: "a", Trust: 0.3},
		{ID: "b", Trust: 0.9},
		{ID: "c"},
	}
	d, err := NewSelector(trust.NewMemStore(), nil).Decide(metrics.New("", nil), recipes)
	if err != nil {
		t.Fatal(err)
	}
	if d.RecipeID != "b" {
		t.Errorf("Decide() = %q, want b", d.RecipeID)
	}
	if d.Candidates[1].ID != "c" || d.Candidates[1].Trust != trust.DefaultTrust {
		t.Errorf("second candidate = %+v, want c at default trust", d.Candidates[1])
	}
}

func TestRank(t *testing.T) {
	tests := []struct {
		name string
		in   []Candidate
		want []string
	}{
		{
			name: "trust descending",
			in:   []Candidate{{ID: "a", Trust: 0.4}, {ID: "b", Trust: 0.9}, {ID: "c", Trust: 0.6}},
			want: []string{"b", "c", "a"},
		},
		{
			name: "near tie resolved by priority",
			in:   []Candidate{{ID: "a", Trust: 0.805, Priority: 1}, {ID: "b", Trust: 0.8, Priority: 9}},
			want: []string{"b", "a"},
		},
		{
			name: "clear winner ignores priority",
			in:   []Candidate{{ID: "a", Trust: 0.85, Priority: 1}, {ID: "b", Trust: 0.8, Priority: 9}},
			want: []string{"a", "b"},
		},
		{
			name: "exact tie equal priority keeps order",
			in:   []Candidate{{ID: "a", Trust: 0.5}, {ID: "b", Trust: 0.5}},
			want: []string{"a", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Rank(tt.in)
			for i, id := range tt.want {
				if tt.in[i].ID != id {
					t.Fatalf("Rank() order = %+v, want %v", tt.in, tt.want)
				}
			}
		})
	}
}

func TestCondition_Matches(t *testing.T) {
	m := metrics.New("", map[string]float64{"lint": 5, "type": 0})

	tests := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"nil", nil, true},
		{"all true", &Condition{Type: ConditionAll, Rules: []Rule{rule("lint", OpEQ, 5), rule("type", OpLE, 0)}}, true},
		{"all one false", &Condition{Type: ConditionAll, Rules: []Rule{rule("lint", OpGT, 5), rule("type", OpLE, 0)}}, false},
		{"any one true", &Condition{Type: ConditionAny, Rules: []Rule{rule("lint", OpLT, 1), rule("type", OpNE, 1)}}, true},
		{"any none true", &Condition{Type: ConditionAny, Rules: []Rule{rule("lint", OpLT, 1)}}, false},
		{"unknown metric is zero", &Condition{Type: ConditionAll, Rules: []Rule{rule("missing", OpEQ, 0)}}, true},
		{"ge boundary", &Condition{Type: ConditionAll, Rules: []Rule{rule("lint", OpGE, 5)}}, true},
		{"any empty", &Condition{Type: ConditionAny}, false},
		{"all empty", &Condition{Type: ConditionAll}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cond.Matches(m); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
