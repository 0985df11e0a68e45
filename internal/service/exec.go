package service

import (
	"context"
	"errors"
	"os/exec"
	"strings"
)

// runFunc executes one external command. The systemctl prober and
// controller hold one so tests can substitute canned results.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, int, error)

// runCommand runs a command and returns its combined output and exit code.
// A clean non-zero exit is not an error here: `systemctl is-active` exits 3
// for an inactive unit and pkexec reports dialog outcomes through its exit
// code. The error return is reserved for commands that never ran to
// completion (binary missing, context deadline, killed by signal).
func runCommand(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err == nil {
		return out, 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return out, exitErr.ExitCode(), nil
	}
	if ctx.Err() != nil {
		return out, -1, ctx.Err()
	}
	return out, -1, err
}

// outputTail trims command output for error messages, keeping the tail
// where systemctl and pkexec put the reason.
func outputTail(out []byte) string {
	s := strings.TrimSpace(string(out))
	const max = 200
	if len(s) > max {
		s = "…" + s[len(s)-max:]
	}
	return s
}
