// Package config handles configuration loading, saving, and path management.
package config

import (
	"os"
	"path/filepath"
)

const (
	// AppDirName is the name of the ollamatray directory under the user
	// config dir (~/.config on Linux, respecting XDG_CONFIG_HOME).
	AppDirName = "ollamatray"

	// LogsDirName is the name of the logs directory.
	LogsDirName = "logs"
)

// File names
const (
	SettingsFileName = "settings.yaml"
	InstanceFileName = "instance.yaml"
	LogFileName      = "ollamatray.log"
)

// Dir returns the path to the ollamatray config directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, AppDirName), nil
}

// settingsOverride holds the --config flag value. Set once at startup,
// before anything resolves paths.
var settingsOverride string

// SetSettingsFile overrides the settings file location for this process.
func SetSettingsFile(path string) {
	settingsOverride = path
}

// SettingsFile returns the path to the settings.yaml file.
func SettingsFile() (string, error) {
	if settingsOverride != "" {
		return settingsOverride, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SettingsFileName), nil
}

// InstanceFile returns the path to the instance.yaml file.
func InstanceFile() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, InstanceFileName), nil
}

// LogsDir returns the path to the logs directory.
func LogsDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LogsDirName), nil
}

// LogFile returns the default rotating log file path.
func LogFile() (string, error) {
	dir, err := LogsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LogFileName), nil
}

// EnsureDir creates the config directory if it doesn't exist.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// EnsureLogsDir creates the logs directory if it doesn't exist.
func EnsureLogsDir() error {
	dir, err := LogsDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}
