package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/formatter"
	"github.com/boshu2/warden/internal/plan"
)

var decideSave bool

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Show the next decision without acting",
	Long: `Observe the target and rank the applicable recipes by trust, then
priority. Nothing is mutated.

With --save the decision, its baseline metrics and the ranked candidates are
written as a plan that 'warden apply' can execute later.

Examples:
  warden decide
  warden decide --save
  warden decide -o json`,
	Args: cobra.NoArgs,
	RunE: runDecide,
}

func init() {
	rootCmd.AddCommand(decideCmd)
	decideCmd.Flags().BoolVar(&decideSave, "save", false, "Save the decision as a plan")
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := newRunner(cfg)
	if err != nil {
		return err
	}
	rep, err := r.Decide(cmd.Context())
	if err != nil {
		return err
	}
	if !rep.Passed {
		return fmt.Errorf("%s", rep.Message)
	}

	var saved *plan.Plan
	if decideSave && !dryRun {
		saved = plan.New(rep.Decision, rep.Before)
		if err := r.Plans.Save(saved); err != nil {
			return fmt.Errorf("save plan: %w", err)
		}
	}

	f := outputFormat(cfg)
	if saved != nil && f.Structured() {
		return formatter.Write(cmd.OutOrStdout(), f, saved)
	}
	if ok, err := writeStructured(cmd, f, rep.Decision); ok {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Decision: %s\n", rep.Decision.RecipeID)
	if len(rep.Decision.Candidates) > 0 {
		fmt.Fprintln(w)
		tbl := formatter.NewTable(w, "RANK", "RECIPE", "TRUST", "PRIORITY", "RUNS")
		for i, c := range rep.Decision.Candidates {
			tbl.AddRow(fmt.Sprint(i+1), c.ID, fmt.Sprintf("%.2f", c.Trust), fmt.Sprint(c.Priority), fmt.Sprint(c.Runs))
		}
		_ = tbl.Render() //nolint:errcheck // stdout
	}
	for _, id := range rep.Decision.Blacklisted {
		fmt.Fprintf(w, "Disabled: %s (blacklisted)\n", id)
	}
	for _, s := range rep.Skipped {
		fmt.Fprintf(w, "Skipped:  %s (invalid recipe file)\n", s)
	}
	if saved != nil {
		fmt.Fprintf(w, "\nPlan saved: %s\nApply with: warden apply %s\n", saved.ID, saved.ID)
	}
	return nil
}
