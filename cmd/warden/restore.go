package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/snapshot"
	"github.com/boshu2/warden/internal/storage"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id>",
	Short: "Restore files from an undo snapshot",
	Long: `Write every file captured by an undo snapshot back to its pre-run
content. Files the run created are removed. List snapshots with
'warden undo list'. Waits for a running cycle to finish first.`,
	Args: cobra.ExactArgs(1),
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store := snapshot.NewStore(openLayout(cfg).UndoDir(), cfg.TargetDir)

	if dryRun {
		u, err := store.Load(args[0])
		if err != nil {
			return err
		}
		for _, f := range u.Files {
			fmt.Fprintf(cmd.OutOrStdout(), "would restore %s\n", f.Path)
		}
		return nil
	}

	var restored []string
	err = storage.WithLock(openLayout(cfg).LockPath(), func() error {
		var rerr error
		restored, rerr = store.Restore(args[0])
		return rerr
	})
	if err != nil {
		return fmt.Errorf("restore %s: %w", args[0], err)
	}
	f := outputFormat(cfg)
	if ok, err := writeStructured(cmd, f, restored); ok {
		return err
	}
	for _, p := range restored {
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", p)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) restored from %s\n", len(restored), args[0])
	return nil
}
