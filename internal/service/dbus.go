package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"go.uber.org/zap"
)

// DBusBackend probes and controls the unit over the systemd D-Bus API,
// satisfying both Prober and Controller. There is no interactive elevation
// on this path: control calls succeed only where polkit already authorizes
// the calling user, which makes the backend most useful for user-scope
// units. The connection is established lazily and dropped on call errors
// so a bus restart heals on the next probe.
type DBusBackend struct {
	unit      string
	userScope bool
	log       *zap.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewDBusBackend creates a backend for the configured unit.
func NewDBusBackend(opts Options, log *zap.Logger) *DBusBackend {
	return &DBusBackend{
		unit:      unitName(opts.Unit),
		userScope: opts.UserScope,
		log:       log,
	}
}

// Close releases the bus connection.
func (b *DBusBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// connect returns the cached connection, dialing on first use.
func (b *DBusBackend) connect(ctx context.Context) (*dbus.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != nil {
		return b.conn, nil
	}

	var (
		conn *dbus.Conn
		err  error
	)
	if b.userScope {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemdConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd bus: %w", err)
	}

	b.conn = conn
	return conn, nil
}

// disconnect drops the cached connection after a failed call.
func (b *DBusBackend) disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// Probe reads the unit's ActiveState. Any bus failure is StateUnknown.
func (b *DBusBackend) Probe(ctx context.Context) State {
	start := time.Now()

	conn, err := b.connect(ctx)
	if err != nil {
		b.log.Warn("status probe failed", zap.String("unit", b.unit), zap.Error(err))
		return StateUnknown
	}

	units, err := conn.ListUnitsByNamesContext(ctx, []string{b.unit})
	if err != nil {
		b.disconnect()
		b.log.Warn("status probe failed",
			zap.String("unit", b.unit),
			zap.Duration("took", time.Since(start)),
			zap.Error(err))
		return StateUnknown
	}
	if len(units) == 0 {
		return StateUnknown
	}

	state := classifyActiveState(units[0].ActiveState)
	b.log.Debug("status probe",
		zap.String("unit", b.unit),
		zap.String("active_state", units[0].ActiveState),
		zap.String("sub_state", units[0].SubState),
		zap.Duration("took", time.Since(start)),
		zap.String("state", string(state)))
	return state
}

// Apply enqueues one systemd job and waits for its result. Only "done"
// is an acknowledgement; "canceled" maps to the cancelled reason so the
// caller can tell an aborted job from a failed one.
func (b *DBusBackend) Apply(ctx context.Context, op Transition) error {
	conn, err := b.connect(ctx)
	if err != nil {
		return &ControlError{Op: op, Reason: ReasonExecution, ExitCode: -1, Err: err}
	}

	result := make(chan string, 1)
	switch op {
	case TransitionStart:
		_, err = conn.StartUnitContext(ctx, b.unit, "replace", result)
	case TransitionStop:
		_, err = conn.StopUnitContext(ctx, b.unit, "replace", result)
	case TransitionRestart:
		_, err = conn.RestartUnitContext(ctx, b.unit, "replace", result)
	default:
		return &ControlError{
			Op: op, Reason: ReasonExecution, ExitCode: -1,
			Err: fmt.Errorf("unsupported transition %q", op),
		}
	}
	if err != nil {
		b.disconnect()
		return &ControlError{Op: op, Reason: ReasonExecution, ExitCode: -1, Err: err}
	}

	select {
	case r := <-result:
		if r == "done" {
			b.log.Info("control job finished", zap.String("op", string(op)), zap.String("unit", b.unit))
			return nil
		}
		reason := ReasonExitStatus
		if r == "canceled" {
			reason = ReasonCancelled
		}
		return &ControlError{Op: op, Reason: reason, ExitCode: -1, Output: r}
	case <-ctx.Done():
		return &ControlError{Op: op, Reason: ReasonExecution, ExitCode: -1, Err: ctx.Err()}
	}
}

// MainPID resolves the unit's main process ID from its properties.
// Returns 0 when the unit has no main process.
func (b *DBusBackend) MainPID(ctx context.Context) (int32, error) {
	conn, err := b.connect(ctx)
	if err != nil {
		return 0, err
	}

	props, err := conn.GetAllPropertiesContext(ctx, b.unit)
	if err != nil {
		b.disconnect()
		return 0, fmt.Errorf("failed to query unit properties: %w", err)
	}

	pid, _ := props["MainPID"].(uint32)
	return int32(pid), nil
}
