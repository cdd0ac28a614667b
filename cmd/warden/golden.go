package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/formatter"
	"github.com/boshu2/warden/internal/guard"
)

var errDrift = errors.New("critical files drifted from golden snapshot")

var goldenCmd = &cobra.Command{
	Use:   "golden",
	Short: "Compare critical files with the last known-good snapshot",
	Long: `A passing cycle records the hashes of the critical files
(guard.critical_files) as the golden snapshot. 'golden check' reports files
that were modified, removed or added since.`,
}

var goldenCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report drift from the golden snapshot (exit 1 on drift)",
	Args:  cobra.NoArgs,
	RunE:  runGoldenCheck,
}

func init() {
	rootCmd.AddCommand(goldenCmd)
	goldenCmd.AddCommand(goldenCheckCmd)
}

func runGoldenCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	layout := openLayout(cfg)
	g := guard.New(guard.Config{
		Root:          cfg.TargetDir,
		GoldenPath:    layout.GoldenPath(),
		EvidencePath:  layout.EvidencePath(),
		CriticalFiles: cfg.Guard.CriticalFiles,
	})

	drifts, err := g.CheckDrift(cmd.Context())
	if errors.Is(err, guard.ErrNoGolden) {
		fmt.Fprintln(cmd.OutOrStdout(), "No golden snapshot yet; one is written by the first passing cycle.")
		return nil
	}
	if err != nil {
		return err
	}

	if ok, err := writeStructured(cmd, outputFormat(cfg), drifts); ok {
		if err != nil {
			return err
		}
	} else if len(drifts) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s critical files match the golden snapshot\n", formatter.Pass(true))
	} else {
		tbl := formatter.NewTable(cmd.OutOrStdout(), "PATH", "STATUS", "EXPECTED", "ACTUAL").SetMaxWidth(2, 16).SetMaxWidth(3, 16)
		for _, d := range drifts {
			tbl.AddRow(d.Path, formatter.Status(string(d.Status)), d.Expected, d.Actual)
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}
	if len(drifts) > 0 {
		return errDrift
	}
	return nil
}
