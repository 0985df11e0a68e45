package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ollamatray-io/ollamatray/internal/config"
	"github.com/ollamatray-io/ollamatray/internal/models"
	"github.com/ollamatray-io/ollamatray/internal/ollama"
	"github.com/ollamatray-io/ollamatray/internal/service"
	"github.com/ollamatray-io/ollamatray/internal/tray"
)

// trayApp adapts the reconciler and its helpers to the tray's App
// interface. It subscribes to the reconciler at construction time,
// before the loop starts, so even a first probe that finishes instantly
// has a listener for its state change. Settings are swapped atomically
// on hot reload; the service identity (unit, scope, backend) is pinned
// for the process lifetime.
type trayApp struct {
	rec      *service.Reconciler
	resolver service.PIDResolver
	log      *zap.Logger

	changes <-chan service.Change
	results <-chan service.ControlResult
	reloads chan struct{}

	mu       sync.RWMutex
	client   *ollama.Client
	settings *models.Settings
}

// newTrayApp wires the tray's view of the reconciler. The reconciler
// must not be running yet.
func newTrayApp(rec *service.Reconciler, resolver service.PIDResolver, settings *models.Settings, log *zap.Logger) *trayApp {
	id := "tray-" + uuid.NewString()
	return &trayApp{
		rec:      rec,
		resolver: resolver,
		log:      log,
		changes:  rec.SubscribeChanges(id),
		results:  rec.SubscribeResults(id),
		reloads:  make(chan struct{}, 1),
		client:   ollama.NewClient(settings.Models.Command, log),
		settings: settings,
	}
}

func (a *trayApp) State() service.State { return a.rec.State() }
func (a *trayApp) RequestToggle()       { a.rec.RequestToggle() }
func (a *trayApp) RequestRestart()      { a.rec.RequestRestart() }
func (a *trayApp) RequestProbe()        { a.rec.RequestProbe() }

func (a *trayApp) Changes() <-chan service.Change        { return a.changes }
func (a *trayApp) Results() <-chan service.ControlResult { return a.results }
func (a *trayApp) Reloads() <-chan struct{}              { return a.reloads }

func (a *trayApp) Detail(ctx context.Context) (service.Detail, error) {
	return service.Inspect(ctx, a.resolver)
}

func (a *trayApp) Models(ctx context.Context) ([]ollama.Model, error) {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	return client.List(ctx)
}

func (a *trayApp) ModelsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.Models.Enabled
}

func (a *trayApp) Notifications() models.NotifyConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.Notifications
}

func (a *trayApp) current() *models.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// updateSettings swaps in reloaded settings and signals the tray. A
// changed listing command gets a fresh client so the next refresh runs
// the new binary.
func (a *trayApp) updateSettings(s *models.Settings) {
	a.mu.Lock()
	if s.Models.Command != a.settings.Models.Command {
		a.client = ollama.NewClient(s.Models.Command, a.log)
	}
	a.settings = s
	a.mu.Unlock()

	select {
	case a.reloads <- struct{}{}:
	default:
	}
}

// runTray runs the reconciler with a system tray icon on the main
// goroutine. systray.Run must occupy the main goroutine on macOS (Cocoa
// requirement).
func runTray(settings *models.Settings, log *zap.Logger) error {
	prober, controller, resolver, closeBackend := buildBackend(settings, log)

	rec := service.NewReconciler(prober, controller, timingFromSettings(settings), log)
	app := newTrayApp(rec, resolver, settings, log)

	ctx, cancel := context.WithCancel(context.Background())

	var watcher *config.Watcher

	onStart := func() {
		if err := config.SaveInstance(models.NewInstance(os.Getpid())); err != nil {
			log.Error("failed to write instance info", zap.Error(err))
		}

		log.Info("ollamatray started",
			zap.Int("pid", os.Getpid()),
			zap.String("unit", settings.Service.Unit),
			zap.String("backend", settings.Service.Backend))

		// Poll loop in background
		go rec.Run(ctx)

		// Settings hot-reload
		watcher = watchSettings(ctx, rec, app, log)

		// Handle OS signals — quit tray on SIGINT/SIGTERM
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				log.Info("received signal, shutting down", zap.String("signal", sig.String()))
				tray.Quit()
			case <-ctx.Done():
			}
		}()
	}

	onExit := func() {
		cancel()
		if watcher != nil {
			watcher.Stop()
		}
		closeBackend()
		removeInstance(log)
		log.Info("ollamatray stopped")
	}

	// This blocks the main goroutine until the tray exits.
	tray.Run(app, log, onStart, onExit)
	return nil
}

// runHeadless runs the reconciler without a tray, blocking on signals.
// State changes land in the log; useful on servers and for debugging.
func runHeadless(settings *models.Settings, log *zap.Logger) error {
	prober, controller, _, closeBackend := buildBackend(settings, log)
	defer closeBackend()

	rec := service.NewReconciler(prober, controller, timingFromSettings(settings), log)

	if err := config.SaveInstance(models.NewInstance(os.Getpid())); err != nil {
		return fmt.Errorf("failed to write instance info: %w", err)
	}
	defer removeInstance(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := watchSettings(ctx, rec, nil, log)
	if watcher != nil {
		defer watcher.Stop()
	}

	done := make(chan struct{})
	go func() {
		rec.Run(ctx)
		close(done)
	}()

	log.Info("ollamatray started",
		zap.Int("pid", os.Getpid()),
		zap.String("unit", settings.Service.Unit))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", zap.String("signal", sig.String()))

	cancel()
	<-done

	fmt.Println("ollamatray stopped")
	return nil
}

// watchSettings starts the settings watcher and applies reloads to the
// reconciler and, when present, the tray app. Returns nil when watching
// is unavailable; the process keeps running with its startup settings.
func watchSettings(ctx context.Context, rec *service.Reconciler, app *trayApp, log *zap.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(log)
	if err != nil {
		log.Warn("settings watcher unavailable", zap.Error(err))
		return nil
	}
	if err := watcher.Start(); err != nil {
		log.Warn("failed to start settings watcher", zap.Error(err))
		watcher.Stop()
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case settings, ok := <-watcher.Events():
				if !ok {
					return
				}
				applyReload(settings, rec, app, log)
			}
		}
	}()

	return watcher
}

// applyReload applies a reloaded settings file. Timing and notification
// toggles take effect live; changing the service identity needs a restart
// because the backends are built around it.
func applyReload(settings *models.Settings, rec *service.Reconciler, app *trayApp, log *zap.Logger) {
	if app != nil {
		running := app.current()
		if settings.Service != running.Service {
			log.Warn("service settings changed, restart ollamatray to apply",
				zap.String("unit", settings.Service.Unit))
			settings.Service = running.Service
		}
		app.updateSettings(settings)
	}
	rec.SetTiming(timingFromSettings(settings))
}

func removeInstance(log *zap.Logger) {
	if err := config.RemoveInstance(); err != nil {
		log.Warn("failed to remove instance info", zap.Error(err))
	}
}
