package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/config"
	"github.com/boshu2/warden/internal/formatter"
	"github.com/boshu2/warden/internal/loop"
	"github.com/boshu2/warden/internal/metrics"
	"github.com/boshu2/warden/internal/storage"
)

var (
	// Global flags
	targetDir string
	cfgFile   string
	output    string
	verbose   bool
	dryRun    bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Autonomous code-quality governance loop",
	Long: `warden observes a repository's issue metrics, picks the remediation
recipe it trusts most, applies it under an undo snapshot, re-measures, and
keeps or rolls back the change. Outcomes feed a trust model, so recipes that
help are preferred and recipes that keep failing are disabled.

Cycle:
  run          Observe, decide, act, verify, learn, record evidence
  watch        Run a cycle after every burst of file changes
  decide       Show (and optionally save) the next decision without acting
  apply        Execute a saved decision
  restore      Restore files from an undo snapshot

State:
  ledger       Per-run records
  trust        Per-recipe trust scores
  undo         Undo snapshots
  evidence     Signed, hash-chained evidence log
  golden       Known-good critical file hashes
  policy       Command approval policy

Creating .warden/KILL stops run, apply and watch at the next cycle boundary.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(cmd.ErrOrStderr())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&targetDir, "dir", "C", "", "Target repository (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Project config file (default: .warden/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format (table, json, jsonl, yaml, markdown)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Decide only; never mutate files or state")
}

func setupLogger(w io.Writer) {
	level := slog.LevelInfo
	if verbose || os.Getenv("WARDEN_VERBOSE") == "true" || os.Getenv("WARDEN_VERBOSE") == "1" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// loadConfig resolves configuration with command-line flags on top.
func loadConfig() (*config.Config, error) {
	overrides := &config.Config{
		Output:    output,
		TargetDir: targetDir,
		Verbose:   verbose,
	}
	cfg, err := config.Load(cfgFile, overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	abs, err := filepath.Abs(cfg.TargetDir)
	if err != nil {
		return nil, err
	}
	cfg.TargetDir = abs
	return cfg, nil
}

// outputFormat returns the effective -o format.
func outputFormat(cfg *config.Config) formatter.Format {
	f, err := formatter.ParseFormat(cfg.Output)
	if err != nil {
		return formatter.FormatTable
	}
	return f
}

// openLayout returns the data directory of a configured target.
func openLayout(cfg *config.Config) storage.Layout {
	return storage.NewLayout(cfg.BasePath())
}

// newRunner wires a Runner from configuration.
func newRunner(cfg *config.Config) (*loop.Runner, error) {
	if strings.TrimSpace(cfg.Observer.Command) == "" {
		return nil, fmt.Errorf("observer.command is not configured (set it in .warden/config.yaml or WARDEN_OBSERVER_COMMAND)")
	}
	opts := loop.Options{
		TargetDir:      cfg.TargetDir,
		BaseDir:        cfg.BasePath(),
		Observer:       metrics.NewCommandObserver(cfg.Observer.Command, cfg.ObserveTimeout()),
		StepTimeout:    cfg.StepTimeout(),
		RollbackOnFail: cfg.ShouldRollback(),
		CriticalFiles:  cfg.Guard.CriticalFiles,
		KeyPath:        cfg.KeyPath(),
		DryRun:         dryRun,
		Logger:         slog.Default(),
	}
	if cfg.Guard.SigningKey != "" {
		opts.SigningKey = []byte(cfg.Guard.SigningKey)
	}
	return loop.New(opts)
}

// writeStructured prints v when the format is machine-readable and reports
// whether it did.
func writeStructured(cmd *cobra.Command, f formatter.Format, v any) (bool, error) {
	if !f.Structured() {
		return false, nil
	}
	return true, formatter.Write(cmd.OutOrStdout(), f, v)
}
