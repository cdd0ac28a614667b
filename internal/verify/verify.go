// Package verify re-measures the target after a recipe ran and decides
// whether the change is acceptable.
package verify

import (
	"context"
	"log/slog"

	"github.com/boshu2/warden/internal/metrics"
)

// Result is the outcome of verification.
type Result struct {
	After       metrics.Metrics    `json:"after"`
	Deltas      map[string]float64 `json:"deltas"`
	Improvement float64            `json:"improvement"`
	GatesPassed bool               `json:"gatesPassed"`
	Gates       []GateResult       `json:"gates"`
	Error       string             `json:"error,omitempty"`
}

// FailedGates returns the gates that did not pass.
func (r Result) FailedGates() []GateResult {
	var out []GateResult
	for _, g := range r.Gates {
		if !g.Passed {
			out = append(out, g)
		}
	}
	return out
}

// Verifier re-observes metrics and evaluates gates.
type Verifier struct {
	observer metrics.Observer
	gates    []Gate
	logger   *slog.Logger
}

// New returns a Verifier. Nil or empty gates mean DefaultGates.
func New(observer metrics.Observer, gates []Gate, logger *slog.Logger) *Verifier {
	if len(gates) == 0 {
		gates = DefaultGates()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{observer: observer, gates: gates, logger: logger}
}

// Gates returns the configured gates.
func (v *Verifier) Gates() []Gate { return v.gates }

// Verify observes targetDir again and compares it to before. An observer
// failure never returns an error: it yields GatesPassed=false with a failed
// observer gate.
func (v *Verifier) Verify(ctx context.Context, targetDir string, before metrics.Metrics) Result {
	after, err := v.observer.Observe(ctx, targetDir)
	if err != nil {
		v.logger.Warn("shadow re-measurement failed", "error", err)
		return Result{
			Deltas: map[string]float64{},
			Gates: []GateResult{{
				ID:      string(GateObserver),
				Type:    GateObserver,
				Message: err.Error(),
			}},
			Error: err.Error(),
		}
	}
	after.RunID = before.RunID

	deltas := metrics.Deltas(before, after)
	gates := Evaluate(v.gates, before, after, deltas)
	passed := AllPassed(gates)

	for _, g := range gates {
		v.logger.Debug("gate", "id", g.ID, "passed", g.Passed, "message", g.Message)
	}
	v.logger.Info("verified", "gates_passed", passed, "total_before", before.TotalIssues, "total_after", after.TotalIssues)

	return Result{
		After:       after,
		Deltas:      deltas,
		Improvement: metrics.Improvement(before, after),
		GatesPassed: passed,
		Gates:       gates,
	}
}
