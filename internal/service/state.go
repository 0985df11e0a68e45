// Package service implements status probing, control, and state
// reconciliation for a single systemd unit. The reconciler owns the
// canonical state; the tray and the CLI are observers that subscribe to
// its notifications or issue one-shot probes and control requests.
package service

import (
	"strings"
	"time"
)

// State is the observed service state. Unknown is a real state, not an
// error carrier: whenever the current state cannot be determined the
// answer is Unknown, never whatever was seen last.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateUnknown State = "unknown"
)

// Label returns the state capitalized for menus and tooltips.
func (s State) Label() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Transition is a requested state change.
type Transition string

const (
	TransitionStart   Transition = "start"
	TransitionStop    Transition = "stop"
	TransitionRestart Transition = "restart"
)

// Change records one observed state transition.
type Change struct {
	Old State
	New State
	At  time.Time
}

// Options selects the unit and how to reach it.
type Options struct {
	Unit      string // unit name, ".service" suffix optional
	UserScope bool   // per-user service manager instead of the system one
	Elevate   string // elevation command for system-scope control, e.g. "pkexec"
}

// classifyActiveState maps a systemd ActiveState value onto State.
// Transitional states count as stopped, matching `systemctl is-active`
// exit semantics: the unit is not up yet (or not down yet), and the next
// probe reports where it landed. Everything unrecognized is Unknown.
func classifyActiveState(s string) State {
	switch s {
	case "active", "reloading":
		return StateRunning
	case "inactive", "failed", "activating", "deactivating":
		return StateStopped
	default:
		return StateUnknown
	}
}

// unitName appends the ".service" suffix when no unit type is given.
func unitName(name string) string {
	if name == "" {
		return name
	}
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}
