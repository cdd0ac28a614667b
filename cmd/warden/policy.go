package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boshu2/warden/internal/formatter"
	"github.com/boshu2/warden/internal/policy"
)

var (
	errCommandDenied = errors.New("command not approved")
	errPolicyUnsafe  = errors.New("policy has high-severity issues")
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Check commands against the approval policy",
	Long: `The approval policy (.warden/policy.yaml) decides which shell commands
recipes may run. Deny rules win over allow rules; anything unmatched falls
to the default action. Without a policy file every command is denied.`,
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <command...>",
	Short: "Evaluate a command (exit 1 when not approved)",
	Example: `  warden policy check pnpm lint --fix
  warden policy check -- rm -rf /`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPolicyCheck,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report unsafe policy configuration (exit 1 on high severity)",
	Args:  cobra.NoArgs,
	RunE:  runPolicyValidate,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyCheckCmd, policyValidateCmd)
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine := policy.NewEngine(openLayout(cfg).PolicyPath(), nil)
	a := engine.Evaluate(strings.Join(args, " "))

	if ok, err := writeStructured(cmd, outputFormat(cfg), a); ok {
		if err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		verdict := "deny"
		if a.Approved {
			verdict = "allow"
		}
		fmt.Fprintf(w, "Command:  %s\n", a.Command)
		fmt.Fprintf(w, "Decision: %s (%s)\n", formatter.Status(verdict), a.SafetyReason)
		if a.Pattern != "" {
			fmt.Fprintf(w, "Pattern:  %s\n", a.Pattern)
		}
		if a.Reason != "" {
			fmt.Fprintf(w, "Reason:   %s\n", a.Reason)
		}
		if a.DefaultApplied {
			fmt.Fprintln(w, "Default:  applied")
		}
	}
	if !a.Approved {
		return errCommandDenied
	}
	return nil
}

func runPolicyValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := openLayout(cfg).PolicyPath()
	p, err := policy.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(cmd.OutOrStdout(), "No policy at %s: every command is denied.\n", path)
		return nil
	}
	if err != nil {
		return err
	}

	issues := policy.Validate(p)
	if ok, err := writeStructured(cmd, outputFormat(cfg), issues); ok {
		if err != nil {
			return err
		}
	} else if len(issues) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: no issues\n", formatter.Pass(true), path)
	} else {
		tbl := formatter.NewTable(cmd.OutOrStdout(), "SEVERITY", "RULE", "ISSUE").SetMaxWidth(1, 40)
		for _, is := range issues {
			tbl.AddRow(string(is.Severity), is.Rule, is.Message)
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}

	for _, is := range issues {
		if is.Severity == policy.SeverityHigh {
			return errPolicyUnsafe
		}
	}
	return nil
}
