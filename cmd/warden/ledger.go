package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/formatter"
	"github.com/boshu2/warden/internal/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect per-run records",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLedgerList,
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one run (default: latest)",
	Long: `Show a run's timeline, edits, notes and metrics. Without an argument
the latest run is shown. Use -o markdown for a report suitable for a pull
request description.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLedgerShow,
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate run statistics",
	Args:  cobra.NoArgs,
	RunE:  runLedgerStats,
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerListCmd, ledgerShowCmd, ledgerStatsCmd)
}

func openLedger() (*ledger.Store, formatter.Format, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	return ledger.NewStore(openLayout(cfg).LedgerDir()), outputFormat(cfg), nil
}

func runLedgerList(cmd *cobra.Command, args []string) error {
	store, f, err := openLedger()
	if err != nil {
		return err
	}
	list, err := store.List()
	if err != nil {
		return err
	}
	if ok, err := writeStructured(cmd, f, list); ok {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	tbl := formatter.NewTable(cmd.OutOrStdout(), "RUN", "RECIPE", "STATUS", "EDITS", "IMPROVEMENT")
	for _, l := range list {
		improvement := ""
		if l.Metrics != nil {
			improvement = fmt.Sprintf("%.1f%%", l.Metrics.Improvement*100)
		}
		tbl.AddRow(l.RunID, l.RecipeID, formatter.Status(string(l.Status)), fmt.Sprint(len(l.Edits)), improvement)
	}
	return tbl.Render()
}

func runLedgerShow(cmd *cobra.Command, args []string) error {
	store, f, err := openLedger()
	if err != nil {
		return err
	}
	var l *ledger.Ledger
	if len(args) == 0 || args[0] == "latest" {
		l, err = store.Latest()
	} else {
		l, err = store.Get(args[0])
	}
	if err != nil {
		return err
	}

	if f == formatter.FormatMarkdown {
		return formatter.LedgerMarkdown(cmd.OutOrStdout(), l)
	}
	if ok, err := writeStructured(cmd, f, l); ok {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Run:      %s\n", l.RunID)
	fmt.Fprintf(w, "Recipe:   %s\n", l.RecipeID)
	fmt.Fprintf(w, "Status:   %s\n", formatter.Status(string(l.Status)))
	fmt.Fprintf(w, "Started:  %s\n", l.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if l.CompletedAt != nil {
		fmt.Fprintf(w, "Finished: %s\n", l.CompletedAt.Local().Format("2006-01-02 15:04:05"))
	}
	if l.SnapshotID != "" {
		fmt.Fprintf(w, "Snapshot: %s\n", l.SnapshotID)
	}
	if l.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:    %s\n", l.ErrorMessage)
	}
	if l.Metrics != nil {
		fmt.Fprintf(w, "Issues:   %g -> %g (%.1f%% improvement)\n",
			l.Metrics.Before.TotalIssues, l.Metrics.After.TotalIssues, l.Metrics.Improvement*100)
	}
	if len(l.Edits) > 0 {
		fmt.Fprintln(w)
		tbl := formatter.NewTable(w, "PATH", "OPERATION", "DIFF")
		for _, e := range l.Edits {
			tbl.AddRow(e.Path, e.Operation, fmt.Sprint(e.DiffSize))
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}
	if len(l.Notes) > 0 {
		fmt.Fprintf(w, "\nNotes:\n  %s\n", strings.Join(l.Notes, "\n  "))
	}
	return nil
}

func runLedgerStats(cmd *cobra.Command, args []string) error {
	store, f, err := openLedger()
	if err != nil {
		return err
	}
	stats, err := store.Stats()
	if err != nil {
		return err
	}
	if ok, err := writeStructured(cmd, f, stats); ok {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Runs:             %d\n", stats.Total)
	fmt.Fprintf(w, "  in progress:    %d\n", stats.InProgress)
	fmt.Fprintf(w, "  completed:      %d\n", stats.Completed)
	fmt.Fprintf(w, "  failed:         %d\n", stats.Failed)
	fmt.Fprintf(w, "  rolled back:    %d\n", stats.RolledBack)
	fmt.Fprintf(w, "Edits:            %d (%.2f per run)\n", stats.TotalEdits, stats.AvgEdits)
	fmt.Fprintf(w, "Avg improvement:  %.1f%%\n", stats.AvgImprovement*100)
	return nil
}
