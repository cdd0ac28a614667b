package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/formatter"
	"github.com/boshu2/warden/internal/snapshot"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Inspect undo snapshots",
}

var undoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List undo snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runUndoList,
}

func init() {
	rootCmd.AddCommand(undoCmd)
	undoCmd.AddCommand(undoListCmd)
}

func runUndoList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	list, err := snapshot.NewStore(openLayout(cfg).UndoDir(), cfg.TargetDir).List()
	if err != nil {
		return err
	}
	if ok, err := writeStructured(cmd, outputFormat(cfg), list); ok {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No undo snapshots.")
		return nil
	}
	tbl := formatter.NewTable(cmd.OutOrStdout(), "SNAPSHOT", "RUN", "RECIPE", "FILES", "CREATED")
	for _, s := range list {
		tbl.AddRow(s.ID, s.RunID, s.RecipeID, fmt.Sprint(s.Files), s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tbl.Render()
}
