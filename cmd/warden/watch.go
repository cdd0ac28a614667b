package main

import (
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/loop"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a cycle after every burst of file changes",
	Long: `Watch the target directory and run one cycle after changes settle for
watch.debounce (default 2s). The data directory and watch.ignore entries
never trigger a cycle.

Interrupt stops the watch between cycles; a running cycle always finishes
and writes its ledger record first.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	r, err := newRunner(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := outputFormat(cfg)
	return r.Watch(ctx, loop.WatchOptions{
		Debounce: cfg.DebounceInterval(),
		Ignore:   cfg.Watch.Ignore,
		OnCycle: func(rep *loop.Report, err error) {
			if err != nil {
				slog.Error("cycle failed", "error", err)
				return
			}
			if err := finishReport(cmd, f, rep); err != nil && !errors.Is(err, errGatesFailed) {
				slog.Error("print report", "error", err)
			}
		},
	})
}
