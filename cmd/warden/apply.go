package main

import (
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply <plan-id|path>",
	Short: "Execute a saved plan",
	Long: `Run one cycle using the decision saved by 'warden decide --save'
instead of selecting a new one. The baseline is measured again so deltas
reflect the current tree. A plan naming a blacklisted recipe is refused.

Exit status is 0 when gates pass and 1 otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := newRunner(cfg)
	if err != nil {
		return err
	}
	p, err := r.Plans.Load(args[0])
	if err != nil {
		return err
	}
	rep, err := r.ApplyPlan(cmd.Context(), p)
	if err != nil {
		return err
	}
	return finishReport(cmd, outputFormat(cfg), rep)
}
