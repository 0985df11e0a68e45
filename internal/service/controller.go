package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Reason classifies why a control request failed.
type Reason string

const (
	ReasonExitStatus Reason = "exit_status" // command ran and reported failure
	ReasonCancelled  Reason = "cancelled"   // authentication dialog dismissed
	ReasonDenied     Reason = "denied"      // not authorized for this action
	ReasonExecution  Reason = "execution"   // command never ran to completion
)

// pkexec(1) reports dialog outcomes through its exit status.
const (
	pkexecExitCancelled = 126
	pkexecExitDenied    = 127
)

// ControlError describes a failed control request. The canonical state is
// never touched on failure; the next probe reports whatever is true.
type ControlError struct {
	Op       Transition
	Reason   Reason
	ExitCode int    // -1 when the command never ran
	Output   string // trailing command output, empty for D-Bus failures
	Err      error
}

func (e *ControlError) Error() string {
	switch e.Reason {
	case ReasonCancelled:
		return fmt.Sprintf("%s request cancelled at the authentication dialog", e.Op)
	case ReasonDenied:
		return fmt.Sprintf("%s request not authorized", e.Op)
	case ReasonExecution:
		if e.Err != nil {
			return fmt.Sprintf("%s request failed to execute: %v", e.Op, e.Err)
		}
		return fmt.Sprintf("%s request failed to execute", e.Op)
	default:
		if e.Output != "" {
			return fmt.Sprintf("%s request failed with status %d: %s", e.Op, e.ExitCode, e.Output)
		}
		return fmt.Sprintf("%s request failed with status %d", e.Op, e.ExitCode)
	}
}

func (e *ControlError) Unwrap() error { return e.Err }

// Controller applies start/stop/restart transitions to the service.
// Implementations perform exactly one attempt per call and never retry:
// a failed or cancelled request stays failed until the user acts again.
type Controller interface {
	Apply(ctx context.Context, op Transition) error
}

// SystemctlController shells out to systemctl, wrapped in the configured
// elevation command for system-scope units. One subprocess per request.
type SystemctlController struct {
	unit      string
	userScope bool
	elevate   string
	log       *zap.Logger
	run       runFunc
}

// NewSystemctlController creates a controller for the configured unit.
func NewSystemctlController(opts Options, log *zap.Logger) *SystemctlController {
	elevate := opts.Elevate
	if opts.UserScope {
		// User units are controlled by the user's own manager.
		elevate = ""
	}
	return &SystemctlController{
		unit:      unitName(opts.Unit),
		userScope: opts.UserScope,
		elevate:   elevate,
		log:       log,
		run:       runCommand,
	}
}

// Apply runs one control command. A zero exit is an acknowledgement that
// systemd accepted the request, not proof of the resulting state.
func (c *SystemctlController) Apply(ctx context.Context, op Transition) error {
	switch op {
	case TransitionStart, TransitionStop, TransitionRestart:
	default:
		return &ControlError{
			Op: op, Reason: ReasonExecution, ExitCode: -1,
			Err: fmt.Errorf("unsupported transition %q", op),
		}
	}

	name, args := c.command(op)
	start := time.Now()
	out, code, err := c.run(ctx, name, args...)
	took := time.Since(start)

	if err != nil {
		return &ControlError{Op: op, Reason: ReasonExecution, ExitCode: -1, Output: outputTail(out), Err: err}
	}
	if code == 0 {
		c.log.Info("control command acknowledged",
			zap.String("op", string(op)),
			zap.String("unit", c.unit),
			zap.Duration("took", took))
		return nil
	}

	return &ControlError{Op: op, Reason: c.classifyExit(code), ExitCode: code, Output: outputTail(out)}
}

// command builds the argv for one transition.
func (c *SystemctlController) command(op Transition) (string, []string) {
	if c.userScope {
		return "systemctl", []string{"--user", string(op), c.unit}
	}
	if c.elevate == "" {
		return "systemctl", []string{string(op), c.unit}
	}
	return c.elevate, []string{"systemctl", string(op), c.unit}
}

// classifyExit maps an exit status onto a failure reason. The dialog
// outcomes are only meaningful when pkexec wrapped the command.
func (c *SystemctlController) classifyExit(code int) Reason {
	if c.elevate == "pkexec" {
		switch code {
		case pkexecExitCancelled:
			return ReasonCancelled
		case pkexecExitDenied:
			return ReasonDenied
		}
	}
	return ReasonExitStatus
}
