package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/formatter"
	"github.com/boshu2/warden/internal/loop"
)

// errGatesFailed makes the process exit 1 when a cycle does not pass.
var errGatesFailed = errors.New("cycle did not pass")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one governance cycle",
	Long: `Run one cycle: observe the target, select the most trusted applicable
recipe, apply it under an undo snapshot, re-measure, evaluate gates, update
trust, and append a signed evidence entry.

Exit status is 0 when gates pass and 1 otherwise. A failed cycle that was not
rolled back leaves its undo snapshot for 'warden restore'.

Examples:
  warden run
  warden run --dry-run
  warden run -o json`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := newRunner(cfg)
	if err != nil {
		return err
	}
	rep, err := r.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	return finishReport(cmd, outputFormat(cfg), rep)
}

// finishReport prints a cycle report and converts failure into errGatesFailed.
func finishReport(cmd *cobra.Command, f formatter.Format, rep *loop.Report) error {
	if ok, err := writeStructured(cmd, f, rep); ok {
		if err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), rep)
	}
	if !rep.Passed {
		return errGatesFailed
	}
	return nil
}

func printReport(w io.Writer, rep *loop.Report) {
	if rep.RunID != "" {
		fmt.Fprintf(w, "Run:      %s\n", rep.RunID)
	}
	if rep.PlanID != "" {
		fmt.Fprintf(w, "Plan:     %s\n", rep.PlanID)
	}
	fmt.Fprintf(w, "Decision: %s\n", rep.Decision.RecipeID)
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped:  %s\n", strings.Join(rep.Skipped, ", "))
	}
	if len(rep.Decision.Blacklisted) > 0 {
		fmt.Fprintf(w, "Disabled: %s\n", strings.Join(rep.Decision.Blacklisted, ", "))
	}
	printMetrics(w, rep)

	if rep.Act != nil && len(rep.Act.Steps) > 0 {
		fmt.Fprintln(w)
		tbl := formatter.NewTable(w, "STEP", "STATUS", "ACTION", "DETAIL").SetMaxWidth(2, 48).SetMaxWidth(3, 60)
		for _, s := range rep.Act.Steps {
			detail := s.Error
			if s.Approval != nil && !s.Approval.Approved {
				detail = fmt.Sprintf("policy %s %s", s.Approval.SafetyReason, s.Approval.Pattern)
			}
			tbl.AddRow(fmt.Sprint(s.Index+1), formatter.Status(string(s.Status)), s.Label, detail)
		}
		_ = tbl.Render() //nolint:errcheck // stdout
	}

	if rep.Verify != nil && len(rep.Verify.Gates) > 0 {
		fmt.Fprintln(w)
		tbl := formatter.NewTable(w, "GATE", "RESULT", "MESSAGE").SetMaxWidth(2, 80)
		for _, g := range rep.Verify.Gates {
			tbl.AddRow(g.ID, formatter.Pass(g.Passed), g.Message)
		}
		_ = tbl.Render() //nolint:errcheck // stdout
	}

	fmt.Fprintln(w)
	if rep.Learn != nil && rep.Learn.Message != "" {
		fmt.Fprintf(w, "Trust:    %s\n", rep.Learn.Message)
	}
	if len(rep.RolledBack) > 0 {
		fmt.Fprintf(w, "Restored: %s\n", strings.Join(rep.RolledBack, ", "))
	}
	if rep.Evidence != nil {
		fmt.Fprintf(w, "Evidence: %s\n", rep.Evidence.Hash)
	}
	status := string(rep.Status)
	if status == "" {
		status = "decided"
	}
	fmt.Fprintf(w, "Result:   %s %s (%s)\n", formatter.Pass(rep.Passed), formatter.Status(status), rep.Message)
}

func printMetrics(w io.Writer, rep *loop.Report) {
	if len(rep.Before.Categories) == 0 {
		return
	}
	names := rep.Before.Names()
	var after map[string]float64
	if rep.Verify != nil && rep.Verify.Error == "" {
		after = rep.Verify.After.Categories
		for n := range after {
			if _, ok := rep.Before.Categories[n]; !ok {
				names = append(names, n)
			}
		}
		sort.Strings(names)
	}

	fmt.Fprintln(w)
	tbl := formatter.NewTable(w, "CATEGORY", "BEFORE", "AFTER", "DELTA")
	for _, n := range names {
		if after == nil {
			tbl.AddRow(n, fmt.Sprintf("%g", rep.Before.Get(n)), "", "")
			continue
		}
		tbl.AddRow(n, fmt.Sprintf("%g", rep.Before.Get(n)), fmt.Sprintf("%g", after[n]), fmt.Sprintf("%+g", rep.Verify.Deltas[n]))
	}
	_ = tbl.Render() //nolint:errcheck // stdout
}
