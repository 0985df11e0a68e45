package config

import (
	"os"
	"syscall"

	"github.com/ollamatray-io/ollamatray/internal/models"
)

// LoadInstance loads the instance info from ~/.config/ollamatray/instance.yaml.
// Returns nil if the file doesn't exist.
func LoadInstance() (*models.Instance, error) {
	path, err := InstanceFile()
	if err != nil {
		return nil, err
	}

	if !fileExists(path) {
		return nil, nil
	}

	var info models.Instance
	if err := LoadYAML(path, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SaveInstance saves the instance info to ~/.config/ollamatray/instance.yaml.
func SaveInstance(info *models.Instance) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	path, err := InstanceFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, info)
}

// RemoveInstance removes the instance.yaml file.
func RemoveInstance() error {
	path, err := InstanceFile()
	if err != nil {
		return err
	}

	if !fileExists(path) {
		return nil
	}
	return os.Remove(path)
}

// IsInstanceRunning checks whether another tray process is still running.
// Returns true if instance.yaml exists and the PID is alive.
func IsInstanceRunning() (bool, *models.Instance, error) {
	info, err := LoadInstance()
	if err != nil {
		return false, nil, err
	}
	if info == nil {
		return false, nil, nil
	}

	// Check if process is alive using kill -0
	process, err := os.FindProcess(info.PID)
	if err != nil {
		// On Unix, FindProcess always succeeds
		return false, info, nil
	}

	// Send signal 0 to check if process exists
	if err := process.Signal(syscall.Signal(0)); err != nil {
		// Process doesn't exist, clean up stale file
		_ = RemoveInstance()
		return false, info, nil
	}

	return true, info, nil
}
