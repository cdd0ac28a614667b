package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/boshu2/warden/internal/ledger"
	"github.com/boshu2/warden/internal/recipe"
	"github.com/boshu2/warden/internal/storage"
)

// maxOutput caps captured stdout/stderr per step.
const maxOutput = 4000

// runStep executes one action and converts every failure, including a
// panic, into a StepResult.
func (e *Executor) runStep(ctx context.Context, i int, a recipe.Action, prior map[string][]byte) (res StepResult) {
	res = StepResult{Index: i, Kind: a.Kind, Label: a.Label(), Status: StepOK}
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Status = StepFailed
			res.Error = fmt.Sprintf("panic: %v", p)
			e.logger.Error("step panicked", "step", i+1, "panic", p)
		}
		res.Duration = time.Since(start)
	}()

	if a.Kind.RequiresApproval() {
		approval := e.approver.Evaluate(a.Command)
		if !approval.Approved {
			res.Status = StepBlocked
			res.Approval = &approval
			e.logger.Warn("step blocked by policy", "step", i+1, "command", a.Command, "safety_reason", approval.SafetyReason, "pattern", approval.Pattern)
			return res
		}
		res.Approval = &approval
	}

	var err error
	switch a.Kind {
	case recipe.KindRunCommand:
		res.Stdout, res.Stderr, err = e.runCommand(ctx, a)
	case recipe.KindWriteFile:
		err = e.writeFile(a)
	case recipe.KindReplaceText:
		err = e.replaceText(a)
		if errors.Is(err, ErrNoMatch) {
			res.Stdout = err.Error()
			err = nil
		}
	case recipe.KindDeleteFile:
		err = e.deleteFile(a)
	default:
		err = fmt.Errorf("unsupported action kind %q", a.Kind)
	}

	edits, diffErr := e.collectEdits(a, prior)
	res.Edits = edits
	if err == nil {
		err = diffErr
	}
	if err != nil {
		res.Status = StepFailed
		res.Error = err.Error()
		e.logger.Warn("step failed", "step", i+1, "label", res.Label, "error", err)
	}
	return res
}

func (e *Executor) runCommand(ctx context.Context, a recipe.Action) (string, string, error) {
	timeout := a.StepTimeout(e.stepTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "bash", "-c", a.Command)
	cmd.Dir = e.root
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	err := cmd.Run()

	out, errOut := truncate(stdout.String()), truncate(stderr.String())
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, errOut, fmt.Errorf("%w after %s", ErrStepTimeout, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, errOut, fmt.Errorf("exit status %d", exitErr.ExitCode())
		}
		return out, errOut, err
	}
	return out, errOut, nil
}

func (e *Executor) writeFile(a recipe.Action) error {
	path, err := storage.ResolveWithin(e.root, a.Path)
	if err != nil {
		return err
	}
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := storage.WriteFileAtomic(path, []byte(a.Content)); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}

func (e *Executor) replaceText(a recipe.Action) error {
	path, err := storage.ResolveWithin(e.root, a.Path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var updated string
	if a.Regex {
		re, err := regexp.Compile(a.Find)
		if err != nil {
			return fmt.Errorf("compile find pattern: %w", err)
		}
		if !re.Match(data) {
			return fmt.Errorf("%w for %q in %s", ErrNoMatch, a.Find, a.Path)
		}
		updated = re.ReplaceAllString(string(data), a.Replace)
	} else {
		if !bytes.Contains(data, []byte(a.Find)) {
			return fmt.Errorf("%w for %q in %s", ErrNoMatch, a.Find, a.Path)
		}
		updated = strings.ReplaceAll(string(data), a.Find, a.Replace)
	}

	if err := storage.WriteFileAtomic(path, []byte(updated)); err != nil {
		return err
	}
	return os.Chmod(path, info.Mode().Perm())
}

func (e *Executor) deleteFile(a recipe.Action) error {
	path, err := storage.ResolveWithin(e.root, a.Path)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// collectEdits compares each path the action touches against its last known
// content and returns an edit per changed file. prior is updated in place.
func (e *Executor) collectEdits(a recipe.Action, prior map[string][]byte) ([]ledger.Edit, error) {
	var edits []ledger.Edit
	for _, p := range a.Paths() {
		abs, err := storage.ResolveWithin(e.root, p)
		if err != nil {
			return edits, err
		}
		rel := relKey(e.root, abs)

		before, known := prior[rel]
		after, err := os.ReadFile(abs)
		exists := err == nil
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return edits, err
		}
		if !exists {
			after = nil
		}

		existed := known && before != nil
		op := ""
		switch {
		case !existed && exists:
			op = "create"
		case existed && !exists:
			op = "delete"
		case exists && !bytes.Equal(before, after):
			op = "modify"
		}
		prior[rel] = after
		if op == "" {
			continue
		}
		edits = append(edits, ledger.Edit{Path: rel, DiffSize: DiffSize(before, after), Operation: op})
	}
	return edits, nil
}

func relKey(root, abs string) string {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	rel, err := filepath.Rel(absRoot, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxOutput {
		s = s[:maxOutput]
	}
	return s
}
