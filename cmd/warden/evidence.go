package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/config"
	"github.com/boshu2/warden/internal/formatter"
	"github.com/boshu2/warden/internal/guard"
)

var errChainBroken = errors.New("evidence chain is broken")

var evidenceLimit int

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Inspect the signed evidence log",
	Long: `Every cycle appends one entry to .warden/evidence.jsonl holding the
decision, metric deltas and gate outcome. Each entry carries the previous
entry's hash and an HMAC-SHA256 signature, so any edit, deletion or
reordering is detectable.`,
}

var evidenceVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify hash links and signatures (exit 1 when broken)",
	Args:  cobra.NoArgs,
	RunE:  runEvidenceVerify,
}

var evidenceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evidence entries, oldest first",
	Args:  cobra.NoArgs,
	RunE:  runEvidenceList,
}

func init() {
	rootCmd.AddCommand(evidenceCmd)
	evidenceCmd.AddCommand(evidenceVerifyCmd, evidenceListCmd)
	evidenceListCmd.Flags().IntVarP(&evidenceLimit, "limit", "n", 0, "Show only the last N entries")
}

// signingKey returns the configured key, or the key file's. A missing key
// file yields nil so links and hashes are still checked.
func signingKey(cfg *config.Config) ([]byte, error) {
	if cfg.Guard.SigningKey != "" {
		return []byte(cfg.Guard.SigningKey), nil
	}
	key, err := guard.ReadKey(cfg.KeyPath())
	if errors.Is(err, guard.ErrNoKey) {
		return nil, nil
	}
	return key, err
}

func runEvidenceVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := guard.ReadEvidence(openLayout(cfg).EvidencePath())
	if err != nil {
		return err
	}
	key, err := signingKey(cfg)
	if err != nil {
		return err
	}
	report := guard.VerifyChain(entries, key)

	if ok, err := writeStructured(cmd, outputFormat(cfg), report); ok {
		if err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Entries:    %d\n", report.Entries)
		if report.SignaturesChecked {
			fmt.Fprintln(w, "Signatures: checked")
		} else {
			fmt.Fprintln(w, "Signatures: not checked (no key)")
		}
		if report.Valid {
			fmt.Fprintf(w, "Chain:      %s\n", formatter.Status("valid"))
		} else {
			fmt.Fprintf(w, "Chain:      %s at entry %d: %s\n", formatter.Status("broken"), report.BrokenIndex, report.Message)
		}
	}
	if !report.Valid {
		return errChainBroken
	}
	return nil
}

func runEvidenceList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	entries, err := guard.ReadEvidence(openLayout(cfg).EvidencePath())
	if err != nil {
		return err
	}
	if evidenceLimit > 0 && len(entries) > evidenceLimit {
		entries = entries[len(entries)-evidenceLimit:]
	}
	if ok, err := writeStructured(cmd, outputFormat(cfg), entries); ok {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No evidence recorded.")
		return nil
	}
	tbl := formatter.NewTable(cmd.OutOrStdout(), "TIME", "RUN", "DECISION", "GATES", "HASH").SetMaxWidth(4, 16)
	for _, e := range entries {
		tbl.AddRow(e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.RunID, e.Decision, formatter.Pass(e.GatesPassed), e.Hash)
	}
	return tbl.Render()
}
