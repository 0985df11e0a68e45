package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ollamatray-io/ollamatray/internal/models"
	"github.com/ollamatray-io/ollamatray/internal/service"
)

const statusDetailTimeout = 5 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the service state once",
	Long: `Probe the service state once and print it.

The exit code mirrors systemctl is-active: 0 when running, 3 when
stopped, 4 when the state could not be determined.`,
	RunE: runStatus,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the service",
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the service",
	RunE:  runStop,
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the service",
	RunE:  runRestart,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle",
	Short: "Start the service if it is down, stop it if it is up",
	RunE:  runToggle,
}

func runStatus(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	log, err := newLogger(settings, false)
	if err != nil {
		return err
	}

	prober, _, resolver, closeBackend := buildBackend(settings, log)

	ctx, cancel := context.WithTimeout(context.Background(), settings.Poll.ProbeTimeout())
	state := prober.Probe(ctx)
	cancel()

	fmt.Printf("%s: %s\n", settings.Service.Unit, state.Label())

	if state == service.StateRunning {
		dctx, dcancel := context.WithTimeout(context.Background(), statusDetailTimeout)
		if detail, derr := service.Inspect(dctx, resolver); derr == nil {
			fmt.Printf("  %s\n", detail.Summary())
		}
		dcancel()
	}

	closeBackend()
	_ = log.Sync()

	switch state {
	case service.StateRunning:
		return nil
	case service.StateStopped:
		os.Exit(3)
	default:
		os.Exit(4)
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	return controlOnce(service.TransitionStart)
}

func runStop(cmd *cobra.Command, args []string) error {
	return controlOnce(service.TransitionStop)
}

func runRestart(cmd *cobra.Command, args []string) error {
	return controlOnce(service.TransitionRestart)
}

func runToggle(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	log, err := newLogger(settings, false)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	prober, controller, _, closeBackend := buildBackend(settings, log)
	defer closeBackend()

	ctx, cancel := context.WithTimeout(context.Background(), settings.Poll.ProbeTimeout())
	state := prober.Probe(ctx)
	cancel()

	op := service.TransitionStart
	if state == service.StateRunning {
		op = service.TransitionStop
	}
	fmt.Printf("%s is %s, requesting %s\n", settings.Service.Unit, state.Label(), op)

	return applyAndConfirm(settings, prober, controller, op)
}

// controlOnce applies one transition with a fresh backend.
func controlOnce(op service.Transition) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	log, err := newLogger(settings, false)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	prober, controller, _, closeBackend := buildBackend(settings, log)
	defer closeBackend()

	return applyAndConfirm(settings, prober, controller, op)
}

// applyAndConfirm applies one transition and reports where the service
// landed. The acknowledgement alone is not the resulting state, so the
// confirmation probes after a short delay just as the tray does.
func applyAndConfirm(settings *models.Settings, prober service.Prober, controller service.Controller, op service.Transition) error {
	ctx, cancel := context.WithTimeout(context.Background(), settings.Poll.ControlTimeout())
	err := controller.Apply(ctx, op)
	cancel()
	if err != nil {
		return err
	}

	fmt.Printf("%s acknowledged\n", op)

	time.Sleep(settings.Poll.ConfirmDelay())

	pctx, pcancel := context.WithTimeout(context.Background(), settings.Poll.ProbeTimeout())
	state := prober.Probe(pctx)
	pcancel()

	fmt.Printf("%s is now %s\n", settings.Service.Unit, state.Label())
	return nil
}
