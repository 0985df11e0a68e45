package models

import "time"

// Instance represents a running ollamatray process.
// This corresponds to ~/.config/ollamatray/instance.yaml.
type Instance struct {
	Version   int       `yaml:"version"`
	PID       int       `yaml:"pid"`
	StartedAt time.Time `yaml:"started_at"`
}

// NewInstance creates instance info for the given PID.
func NewInstance(pid int) *Instance {
	return &Instance{
		Version:   1,
		PID:       pid,
		StartedAt: time.Now().UTC(),
	}
}
