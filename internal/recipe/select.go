package recipe

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/boshu2/warden/internal/metrics"
	"github.com/boshu2/warden/internal/trust"
)

// TieEpsilon is the trust difference below which priority breaks the tie.
const TieEpsilon = 0.01

// Candidate is an applicable recipe with its effective trust.
type Candidate struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Trust    float64 `json:"trust"`
	Priority int     `json:"priority"`
	Runs     int     `json:"runs"`
}

// Decision is the outcome of selection.
type Decision struct {
	// RecipeID is the chosen recipe, or trust.NoopID.
	RecipeID string `json:"recipeId"`

	// Candidates is every applicable recipe, best first.
	Candidates []Candidate `json:"candidates"`

	// Blacklisted lists recipes excluded because they are disabled.
	Blacklisted []string `json:"blacklisted,omitempty"`
}

// IsNoop reports whether nothing was selected.
func (d Decision) IsNoop() bool { return d.RecipeID == trust.NoopID }

// Selector ranks recipes against metrics using the trust store.
type Selector struct {
	store  trust.Store
	logger *slog.Logger
}

// NewSelector returns a Selector reading trust from store.
func NewSelector(store trust.Store, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{store: store, logger: logger}
}

// Decide returns the best applicable recipe for m, or noop. Errors are trust
// store failures only.
func (s *Selector) Decide(m metrics.Metrics, recipes []*Recipe) (Decision, error) {
	d := Decision{RecipeID: trust.NoopID}

	for _, r := range recipes {
		if r == nil {
			continue
		}
		rec, known, err := s.store.Get(r.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("read trust for %s: %w", r.ID, err)
		}
		if rec.Blacklisted {
			d.Blacklisted = append(d.Blacklisted, r.ID)
			s.logger.Debug("recipe blacklisted, skipping", "recipe", r.ID)
			continue
		}
		if !r.Applicable(m) {
			continue
		}
		d.Candidates = append(d.Candidates, Candidate{
			ID:       r.ID,
			Name:     r.Name,
			Trust:    effectiveTrust(r, rec, known),
			Priority: r.Priority,
			Runs:     rec.Runs,
		})
	}

	Rank(d.Candidates)
	if len(d.Candidates) > 0 {
		d.RecipeID = d.Candidates[0].ID
	}
	s.logger.Info("decision", "recipe", d.RecipeID, "applicable", len(d.Candidates), "blacklisted", len(d.Blacklisted))
	return d, nil
}

// Rank sorts candidates best first: trust descending, and when two trusts
// differ by less than TieEpsilon, priority descending. Remaining ties keep
// configuration order.
func Rank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if math.Abs(cs[i].Trust-cs[j].Trust) < TieEpsilon {
			return cs[i].Priority > cs[j].Priority
		}
		return cs[i].Trust > cs[j].Trust
	})
}

// effectiveTrust is the stored trust once a record exists. Before that the
// recipe's configured trust seeds the ranking, falling back to DefaultTrust.
func effectiveTrust(r *Recipe, rec trust.Record, known bool) float64 {
	if known {
		return rec.Trust
	}
	if r.Trust > 0 {
		return trust.Clamp(r.Trust)
	}
	return trust.DefaultTrust
}
