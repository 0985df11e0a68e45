package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrNotRunning reports that the unit has no main process to inspect.
var ErrNotRunning = errors.New("service has no main process")

// PIDResolver reports the unit's main process ID, 0 when there is none.
// Both backends implement it.
type PIDResolver interface {
	MainPID(ctx context.Context) (int32, error)
}

// Detail describes the running service process. Fields that could not be
// sampled stay zero.
type Detail struct {
	PID       int32
	RSS       uint64
	StartedAt time.Time
}

// Uptime returns how long the process has been alive, zero when the start
// time is unknown.
func (d Detail) Uptime() time.Duration {
	if d.StartedAt.IsZero() {
		return 0
	}
	return time.Since(d.StartedAt).Truncate(time.Second)
}

// Summary renders a one-line description for menus and tooltips,
// e.g. "PID 1234, 512.00 MB, up 3h25m0s".
func (d Detail) Summary() string {
	s := fmt.Sprintf("PID %d", d.PID)
	if d.RSS > 0 {
		s += ", " + formatBytes(d.RSS)
	}
	if up := d.Uptime(); up > 0 {
		s += ", up " + up.String()
	}
	return s
}

// Inspect resolves the unit's main process and samples it. Sampling is
// best effort: a vanished or unreadable process yields what was readable.
func Inspect(ctx context.Context, resolver PIDResolver) (Detail, error) {
	pid, err := resolver.MainPID(ctx)
	if err != nil {
		return Detail{}, fmt.Errorf("failed to resolve main PID: %w", err)
	}
	if pid <= 0 {
		return Detail{}, ErrNotRunning
	}

	d := Detail{PID: pid}

	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		// The process exited between the PID query and the sample.
		return d, nil
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		d.RSS = mem.RSS
	}
	if created, err := proc.CreateTimeWithContext(ctx); err == nil && created > 0 {
		d.StartedAt = time.UnixMilli(created)
	}

	return d, nil
}

func formatBytes(bytes uint64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	fBytes := float64(bytes) / 1024.0
	units := []string{"KB", "MB", "GB", "TB"}
	unitIdx := 0
	for fBytes >= 1024 && unitIdx < len(units)-1 {
		fBytes /= 1024
		unitIdx++
	}
	return fmt.Sprintf("%.2f %s", fBytes, units[unitIdx])
}
