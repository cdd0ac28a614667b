package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/config"
	"github.com/boshu2/warden/internal/formatter"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View warden configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (WARDEN_*)
  3. Project config (.warden/config.yaml, or $WARDEN_CONFIG / --config)
  4. Home config (~/.warden/config.yaml)
  5. Defaults

Environment variables:
  WARDEN_CONFIG            - Explicit project config file path
  WARDEN_OUTPUT            - Default output format
  WARDEN_BASE_DIR          - Data directory (relative to the target)
  WARDEN_TARGET_DIR        - Repository to govern
  WARDEN_VERBOSE           - Enable debug logging (true/1)
  WARDEN_OBSERVER_COMMAND  - Command printing issue counts as JSON
  WARDEN_OBSERVER_TIMEOUT  - Observer timeout (e.g. 5m)
  WARDEN_STEP_TIMEOUT      - Per-step timeout (e.g. 10m)
  WARDEN_ROLLBACK_ON_FAIL  - Restore the undo snapshot when gates fail
  WARDEN_CRITICAL_FILES    - Comma-separated golden snapshot files
  WARDEN_SIGNING_KEY       - Evidence signing key
  WARDEN_WATCH_DEBOUNCE    - Quiet period before a watch cycle`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration with sources",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	resolved := config.Resolve(cfgFile, config.Flags{
		Output:    output,
		TargetDir: targetDir,
		Verbose:   verbose,
	})

	f, err := formatter.ParseFormat(fmt.Sprint(resolved.Output.Value))
	if err != nil {
		f = formatter.FormatTable
	}
	if ok, err := writeStructured(cmd, f, resolved); ok {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Config files:")
	home, _ := os.UserHomeDir()
	printConfigFile(w, filepath.Join(home, ".warden", "config.yaml"))
	project := cfgFile
	if project == "" {
		project = os.Getenv("WARDEN_CONFIG")
	}
	if project == "" {
		project = filepath.Join(".warden", "config.yaml")
	}
	printConfigFile(w, project)
	fmt.Fprintln(w)

	tbl := formatter.NewTable(w, "KEY", "VALUE", "SOURCE").SetMaxWidth(1, 60)
	rows := []struct {
		key string
		v   any
		src config.Source
	}{
		{"output", resolved.Output.Value, resolved.Output.Source},
		{"target_dir", resolved.TargetDir.Value, resolved.TargetDir.Source},
		{"base_dir", resolved.BaseDir.Value, resolved.BaseDir.Source},
		{"verbose", resolved.Verbose.Value, resolved.Verbose.Source},
		{"observer.command", resolved.ObserverCommand.Value, resolved.ObserverCommand.Source},
		{"observer.timeout", resolved.ObserverTimeout.Value, resolved.ObserverTimeout.Source},
		{"executor.step_timeout", resolved.StepTimeout.Value, resolved.StepTimeout.Source},
		{"executor.rollback_on_fail", resolved.RollbackOnFail.Value, resolved.RollbackOnFail.Source},
		{"guard.signing_key", resolved.SigningKey.Value, resolved.SigningKey.Source},
		{"watch.debounce", resolved.WatchDebounce.Value, resolved.WatchDebounce.Source},
	}
	for _, r := range rows {
		tbl.AddRow(r.key, fmt.Sprint(r.v), string(r.src))
	}
	return tbl.Render()
}

func printConfigFile(w io.Writer, path string) {
	state := "not found"
	if _, err := os.Stat(path); err == nil {
		state = "found"
	}
	fmt.Fprintf(w, "  %s (%s)\n", path, state)
}
