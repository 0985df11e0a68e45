package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ollamatray-io/ollamatray/internal/ollama"
)

const modelsListTimeout = 10 * time.Second

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List installed Ollama models",
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	log, err := newLogger(settings, false)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	client := ollama.NewClient(settings.Models.Command, log)

	ctx, cancel := context.WithTimeout(context.Background(), modelsListTimeout)
	defer cancel()

	list, err := client.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models (is the service running?): %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No models installed.")
		return nil
	}

	for _, m := range list {
		if m.Size != "" {
			fmt.Printf("  %-40s %s\n", m.Name, m.Size)
		} else {
			fmt.Printf("  %s\n", m.Name)
		}
	}
	fmt.Printf("\n%d models\n", len(list))
	return nil
}
