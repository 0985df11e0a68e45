package config

import (
	"github.com/ollamatray-io/ollamatray/internal/models"
)

// LoadSettings loads the settings from ~/.config/ollamatray/settings.yaml.
// If the file doesn't exist, returns normalized default settings.
func LoadSettings() (*models.Settings, error) {
	path, err := SettingsFile()
	if err != nil {
		return nil, err
	}

	settings, err := LoadYAMLOrDefault(path, models.NewSettings)
	if err != nil {
		return nil, err
	}
	settings.Normalize()
	return settings, nil
}

// SaveSettings saves the settings to ~/.config/ollamatray/settings.yaml.
func SaveSettings(settings *models.Settings) error {
	path, err := SettingsFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, settings)
}
