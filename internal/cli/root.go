// Package cli implements the ollamatray CLI commands.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ollamatray-io/ollamatray/internal/config"
	"github.com/ollamatray-io/ollamatray/internal/logging"
	"github.com/ollamatray-io/ollamatray/internal/models"
	"github.com/ollamatray-io/ollamatray/internal/service"
)

var (
	flagHeadless bool
	flagUnit     string
	flagConfig   string
	flagInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "ollamatray",
	Short: "System tray control for the Ollama service",
	Long: `Ollamatray sits in the system tray, polls the Ollama systemd service,
and starts or stops it on demand. Run without arguments to launch the tray;
the subcommands offer the same probe and control operations for scripts.`,
	RunE: runRoot,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Run without a tray icon, logging state changes")
	rootCmd.Flags().DurationVar(&flagInterval, "interval", 0, "Override the probe interval (e.g. 10s)")
	rootCmd.PersistentFlags().StringVar(&flagUnit, "unit", "", "Override the systemd unit to watch")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to the settings file")

	// Add subcommands (alphabetical)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRoot(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	log, err := newLogger(settings, flagHeadless)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := config.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Check if another tray is already running
	running, info, err := config.IsInstanceRunning()
	if err != nil {
		return fmt.Errorf("failed to check for a running instance: %w", err)
	}
	if running {
		return fmt.Errorf("ollamatray is already running (PID %d)", info.PID)
	}

	if flagHeadless {
		log.Info("running in headless mode (no system tray)")
		return runHeadless(settings, log)
	}
	return runTray(settings, log)
}

// loadSettings loads the settings file and applies flag overrides.
func loadSettings() (*models.Settings, error) {
	if flagConfig != "" {
		config.SetSettingsFile(flagConfig)
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	if flagUnit != "" {
		settings.Service.Unit = flagUnit
	}
	if flagInterval > 0 {
		settings.Poll.IntervalMS = int(flagInterval / time.Millisecond)
	}
	settings.Normalize()
	return settings, nil
}

// newLogger builds the shared logger. One-shot commands keep the console
// quiet so their stdout stays parseable; the settings can force it on.
func newLogger(settings *models.Settings, console bool) (*zap.Logger, error) {
	cfg := logging.Config{
		Level:      settings.Logging.Level,
		File:       settings.Logging.File,
		MaxSizeMB:  settings.Logging.MaxSizeMB,
		MaxBackups: settings.Logging.MaxBackups,
		MaxAgeDays: settings.Logging.MaxAgeDays,
		Compress:   settings.Logging.Compress,
		Console:    console || settings.Logging.Console,
	}
	if cfg.File == "" {
		path, err := config.LogFile()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve log file path: %w", err)
		}
		cfg.File = path
	}
	return logging.New(cfg)
}

// buildBackend returns the prober, controller and PID resolver for the
// configured backend, plus a release func for the D-Bus connection.
func buildBackend(settings *models.Settings, log *zap.Logger) (service.Prober, service.Controller, service.PIDResolver, func()) {
	opts := service.Options{
		Unit:      settings.Service.Unit,
		UserScope: settings.Service.Scope == models.ScopeUser,
		Elevate:   settings.Service.Elevate,
	}

	if settings.Service.Backend == models.BackendDBus {
		backend := service.NewDBusBackend(opts, log)
		return backend, backend, backend, backend.Close
	}

	prober := service.NewSystemctlProber(opts, log)
	controller := service.NewSystemctlController(opts, log)
	return prober, controller, prober, func() {}
}

func timingFromSettings(s *models.Settings) service.Timing {
	return service.Timing{
		Interval:       s.Poll.Interval(),
		ProbeTimeout:   s.Poll.ProbeTimeout(),
		ControlTimeout: s.Poll.ControlTimeout(),
		ConfirmDelay:   s.Poll.ConfirmDelay(),
	}
}
