package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Prober reports the current state of the service. Implementations never
// return an error: every failure mode is StateUnknown.
type Prober interface {
	Probe(ctx context.Context) State
}

// SystemctlProber probes with one short-lived `systemctl is-active` per
// call. It never writes to the unit.
type SystemctlProber struct {
	unit      string
	userScope bool
	log       *zap.Logger
	run       runFunc
}

// NewSystemctlProber creates a prober for the configured unit.
func NewSystemctlProber(opts Options, log *zap.Logger) *SystemctlProber {
	return &SystemctlProber{
		unit:      unitName(opts.Unit),
		userScope: opts.UserScope,
		log:       log,
		run:       runCommand,
	}
}

// Probe classifies the unit's active state. Unrecognized output, execution
// failures and context timeouts all come back as StateUnknown.
func (p *SystemctlProber) Probe(ctx context.Context) State {
	start := time.Now()
	out, code, err := p.run(ctx, "systemctl", p.args("is-active", p.unit)...)
	text := strings.TrimSpace(string(out))

	if err != nil {
		p.log.Warn("status probe failed",
			zap.String("unit", p.unit),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return StateUnknown
	}

	state := classifyActiveState(text)
	p.log.Debug("status probe",
		zap.String("unit", p.unit),
		zap.String("active_state", text),
		zap.Int("exit_code", code),
		zap.Duration("took", time.Since(start)),
		zap.String("state", string(state)))
	return state
}

// MainPID resolves the unit's main process ID. Returns 0 when the unit has
// no main process.
func (p *SystemctlProber) MainPID(ctx context.Context) (int32, error) {
	out, code, err := p.run(ctx, "systemctl", p.args("show", "--property=MainPID", "--value", p.unit)...)
	if err != nil {
		return 0, fmt.Errorf("failed to query main PID: %w", err)
	}
	if code != 0 {
		return 0, fmt.Errorf("systemctl show exited with status %d: %s", code, outputTail(out))
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse main PID: %w", err)
	}
	return int32(pid), nil
}

// args prepends --user for user-scope units.
func (p *SystemctlProber) args(a ...string) []string {
	if p.userScope {
		return append([]string{"--user"}, a...)
	}
	return a
}
