package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ollamatray-io/ollamatray/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective settings",
	Long: `Show the effective settings as YAML, after defaults and
normalization. The header comment names the file they were loaded from.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	path, err := config.SettingsFile()
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to render settings: %w", err)
	}

	fmt.Printf("# %s\n", path)
	fmt.Print(string(out))
	return nil
}
