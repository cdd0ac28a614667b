package metrics

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultObserveTimeout bounds a single analyzer run.
const DefaultObserveTimeout = 5 * time.Minute

// CommandObserver runs an analyzer shell command in the target directory and
// parses its stdout as JSON category counts.
type CommandObserver struct {
	Command string
	Timeout time.Duration
}

// NewCommandObserver returns an observer for command with the given timeout
// (DefaultObserveTimeout when zero).
func NewCommandObserver(command string, timeout time.Duration) *CommandObserver {
	if timeout <= 0 {
		timeout = DefaultObserveTimeout
	}
	return &CommandObserver{Command: command, Timeout: timeout}
}

// Observe runs the command. A timeout or non-zero exit is an error.
func (o *CommandObserver) Observe(ctx context.Context, targetDir string) (Metrics, error) {
	if strings.TrimSpace(o.Command) == "" {
		return Metrics{}, ErrNoCommand
	}

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", o.Command)
	cmd.Dir = targetDir
	cmd.WaitDelay = time.Second
	out, err := cmd.Output()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Metrics{}, fmt.Errorf("observer timed out after %s", o.Timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Metrics{}, fmt.Errorf("observer exited %d: %s", exitErr.ExitCode(), truncate(exitErr.Stderr, 300))
		}
		return Metrics{}, fmt.Errorf("run observer: %w", err)
	}
	return Parse(targetDir, out)
}

// truncate limits output to n characters and trims whitespace.
func truncate(raw []byte, n int) string {
	s := string(raw)
	if len(s) > n {
		s = s[:n]
	}
	return strings.TrimSpace(s)
}
