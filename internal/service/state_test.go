package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyActiveState(t *testing.T) {
	tests := []struct {
		name     string
		active   string
		expected State
	}{
		{name: "active", active: "active", expected: StateRunning},
		{name: "reloading", active: "reloading", expected: StateRunning},
		{name: "inactive", active: "inactive", expected: StateStopped},
		{name: "failed", active: "failed", expected: StateStopped},
		{name: "activating", active: "activating", expected: StateStopped},
		{name: "deactivating", active: "deactivating", expected: StateStopped},
		{name: "empty output", active: "", expected: StateUnknown},
		{name: "garbage", active: "maintenance", expected: StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, classifyActiveState(tt.active))
		})
	}
}

func TestUnitName(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "bare name gets suffix", in: "ollama", expected: "ollama.service"},
		{name: "suffix preserved", in: "ollama.service", expected: "ollama.service"},
		{name: "other unit type preserved", in: "ollama.socket", expected: "ollama.socket"},
		{name: "empty stays empty", in: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, unitName(tt.in))
		})
	}
}

func TestStateLabel(t *testing.T) {
	require.Equal(t, "Running", StateRunning.Label())
	require.Equal(t, "Stopped", StateStopped.Label())
	require.Equal(t, "Unknown", StateUnknown.Label())
	require.Equal(t, "Unknown", State("bogus").Label())
}
