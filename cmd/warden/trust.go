package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/formatter"
	"github.com/boshu2/warden/internal/storage"
	"github.com/boshu2/warden/internal/trust"
)

var trustCmd = &cobra.Command{
	Use:   "trust",
	Short: "Inspect and reset recipe trust",
	Long: `Trust is each recipe's success ratio, clamped to [0.1, 1.0]. A recipe
that fails three cycles in a row is blacklisted and never selected again
until it is reset.`,
}

var trustListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trust records",
	Args:  cobra.NoArgs,
	RunE:  runTrustList,
}

var trustResetCmd = &cobra.Command{
	Use:   "reset <recipe-id>",
	Short: "Clear a recipe's statistics and lift its blacklist",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrustReset,
}

func init() {
	rootCmd.AddCommand(trustCmd)
	trustCmd.AddCommand(trustListCmd, trustResetCmd)
}

func runTrustList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	recs, err := trust.NewFileStore(openLayout(cfg).TrustPath()).All()
	if err != nil {
		return err
	}
	if ok, err := writeStructured(cmd, outputFormat(cfg), recs); ok {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No trust records yet.")
		return nil
	}
	tbl := formatter.NewTable(cmd.OutOrStdout(), "RECIPE", "TRUST", "RUNS", "SUCCESS", "FAIL STREAK", "STATE")
	for _, r := range recs {
		state := "active"
		if r.Blacklisted {
			state = "blacklisted"
		}
		tbl.AddRow(r.ID, fmt.Sprintf("%.2f", r.Trust), fmt.Sprint(r.Runs), fmt.Sprint(r.Success),
			fmt.Sprint(r.ConsecutiveFailures), state)
	}
	return tbl.Render()
}

func runTrustReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "would reset trust for %s\n", args[0])
		return nil
	}
	layout := openLayout(cfg)
	learner := trust.NewLearner(trust.NewFileStore(layout.TrustPath()), layout.HistoryPath(), nil)
	if err := storage.WithLock(layout.LockPath(), func() error { return learner.Reset(args[0]) }); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "trust reset for %s\n", args[0])
	return nil
}
