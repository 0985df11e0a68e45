package tray

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/gen2brain/beeep"
	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/ollamatray-io/ollamatray/internal/ollama"
	"github.com/ollamatray-io/ollamatray/internal/service"
)

const maxModelSlots = 10

// Timeouts for work the event loop hands off to short-lived goroutines.
const (
	detailTimeout = 5 * time.Second
	modelsTimeout = 10 * time.Second
)

var (
	app     App
	logger  *zap.Logger
	onStart func()
	onExit  func()

	statusItem  *systray.MenuItem
	detailItem  *systray.MenuItem
	toggleItem  *systray.MenuItem
	restartItem *systray.MenuItem

	// Pre-allocated model menu slots
	modelsItem   *systray.MenuItem
	modelSlots   [maxModelSlots]*systray.MenuItem
	noModelsItem *systray.MenuItem
	refreshItem  *systray.MenuItem
	probeItem    *systray.MenuItem
	quitItem     *systray.MenuItem

	// Maps slot index → model name for clipboard copies
	slotMu     sync.RWMutex
	slotModels [maxModelSlots]string
)

// Run starts the system tray. This blocks the calling goroutine (must be main).
// onStartFn is called when the tray is ready (launch the reconciler here).
// onExitFn is called when the tray exits (cleanup here).
func Run(a App, log *zap.Logger, onStartFn, onExitFn func()) {
	app = a
	logger = log
	onStart = onStartFn
	onExit = onExitFn
	systray.Run(onReady, onQuit)
}

// Quit signals the tray to exit.
func Quit() {
	systray.Quit()
}

func onReady() {
	systray.SetIcon(stateIcon(service.StateUnknown))
	systray.SetTooltip(formatTooltip(service.StateUnknown, ""))

	// Header
	header := systray.AddMenuItem("Ollama Tray", "")
	header.Disable()

	// Status
	statusItem = systray.AddMenuItem("Status: "+service.StateUnknown.Label(), "")
	statusItem.Disable()

	detailItem = systray.AddMenuItem("", "")
	detailItem.Disable()
	detailItem.Hide()

	systray.AddSeparator()

	// Actions
	toggleItem = systray.AddMenuItem("Start Ollama", "Start or stop the service")
	restartItem = systray.AddMenuItem("Restart Ollama", "Restart the service")
	restartItem.Disable()

	systray.AddSeparator()

	// Pre-allocate model slots (hidden by default)
	modelsItem = systray.AddMenuItem("Models", "Installed models")
	for i := 0; i < maxModelSlots; i++ {
		modelSlots[i] = modelsItem.AddSubMenuItem("", "Copy model name")
		modelSlots[i].Hide()
	}
	noModelsItem = modelsItem.AddSubMenuItem("No models", "")
	noModelsItem.Disable()
	refreshItem = modelsItem.AddSubMenuItem("Refresh list", "")

	if !app.ModelsEnabled() {
		modelsItem.Hide()
	}

	probeItem = systray.AddMenuItem("Probe now", "Check the service state")

	systray.AddSeparator()

	quitItem = systray.AddMenuItem("Quit", "Quit Ollama Tray")

	// Start the reconciler and its helpers
	if onStart != nil {
		onStart()
	}

	// Handle menu clicks and reconciler updates
	go handleEvents()
}

func onQuit() {
	if onExit != nil {
		onExit()
	}
}

func handleEvents() {
	changes := app.Changes()
	results := app.Results()

	for {
		select {
		case change := <-changes:
			applyChange(change)

		case result := <-results:
			applyResult(result)

		case <-app.Reloads():
			applySettings()

		case <-toggleItem.ClickedCh:
			logger.Info("toggle clicked", zap.String("state", string(app.State())))
			app.RequestToggle()

		case <-restartItem.ClickedCh:
			logger.Info("restart clicked")
			app.RequestRestart()

		case <-probeItem.ClickedCh:
			app.RequestProbe()

		case <-refreshItem.ClickedCh:
			go refreshModels()

		case <-quitItem.ClickedCh:
			logger.Info("quit clicked")
			systray.Quit()

		// Model slot clicks
		case <-modelSlots[0].ClickedCh:
			copyModelAtSlot(0)
		case <-modelSlots[1].ClickedCh:
			copyModelAtSlot(1)
		case <-modelSlots[2].ClickedCh:
			copyModelAtSlot(2)
		case <-modelSlots[3].ClickedCh:
			copyModelAtSlot(3)
		case <-modelSlots[4].ClickedCh:
			copyModelAtSlot(4)
		case <-modelSlots[5].ClickedCh:
			copyModelAtSlot(5)
		case <-modelSlots[6].ClickedCh:
			copyModelAtSlot(6)
		case <-modelSlots[7].ClickedCh:
			copyModelAtSlot(7)
		case <-modelSlots[8].ClickedCh:
			copyModelAtSlot(8)
		case <-modelSlots[9].ClickedCh:
			copyModelAtSlot(9)
		}
	}
}

// applyChange updates the icon, tooltip and menu for a new state.
func applyChange(change service.Change) {
	logger.Info("tray state update",
		zap.String("old", string(change.Old)),
		zap.String("new", string(change.New)))

	updateVisuals(change.New)

	if app.Notifications().OnStateChange {
		notify("Ollama "+change.New.Label(),
			fmt.Sprintf("Service went from %s to %s", change.Old.Label(), change.New.Label()))
	}

	// Detail and model listing need a live process; refresh them off the
	// event loop.
	if change.New == service.StateRunning {
		go refreshDetail()
		if app.ModelsEnabled() {
			go refreshModels()
		}
	} else {
		updateModelSlots(nil)
	}
}

// applySettings re-applies the live-reloadable settings to the menu.
// Currently that is the models submenu: a reload can enable, disable or
// repoint the listing without a restart.
func applySettings() {
	if app.ModelsEnabled() {
		modelsItem.Show()
		go refreshModels()
	} else {
		modelsItem.Hide()
		updateModelSlots(nil)
	}
}

// applyResult surfaces failed control requests. Acknowledgements change
// nothing here: the icon follows probed state only, so it moves when the
// confirmation probe sees the service actually land.
func applyResult(result service.ControlResult) {
	if result.Err == nil {
		return
	}

	logger.Warn("control request failed", zap.Error(result.Err))
	if app.Notifications().OnControlError {
		notify("Ollama control failed", result.Err.Error())
	}
}

func updateVisuals(st service.State) {
	systray.SetIcon(stateIcon(st))
	systray.SetTooltip(formatTooltip(st, ""))
	statusItem.SetTitle("Status: " + st.Label())

	if st == service.StateRunning {
		toggleItem.SetTitle("Stop Ollama")
		restartItem.Enable()
	} else {
		toggleItem.SetTitle("Start Ollama")
		restartItem.Disable()
		detailItem.Hide()
	}
}

// refreshDetail samples the service process and shows it in the menu.
func refreshDetail() {
	ctx, cancel := context.WithTimeout(context.Background(), detailTimeout)
	defer cancel()

	detail, err := app.Detail(ctx)
	if err != nil {
		logger.Debug("process detail unavailable", zap.Error(err))
		return
	}

	summary := detail.Summary()
	detailItem.SetTitle(summary)
	detailItem.Show()
	systray.SetTooltip(formatTooltip(service.StateRunning, summary))
}

// refreshModels reloads the model submenu from the ollama CLI.
func refreshModels() {
	ctx, cancel := context.WithTimeout(context.Background(), modelsTimeout)
	defer cancel()

	list, err := app.Models(ctx)
	if err != nil {
		logger.Debug("model listing unavailable", zap.Error(err))
		return
	}
	updateModelSlots(list)
}

// updateModelSlots refreshes the model menu items.
func updateModelSlots(list []ollama.Model) {
	// Update slot → model name mapping
	slotMu.Lock()
	for i := 0; i < maxModelSlots; i++ {
		slotModels[i] = ""
	}
	for i, m := range list {
		if i >= maxModelSlots {
			break
		}
		slotModels[i] = m.Name
	}
	slotMu.Unlock()

	// Hide all slots first
	for i := 0; i < maxModelSlots; i++ {
		modelSlots[i].Hide()
	}

	if len(list) == 0 {
		noModelsItem.Show()
		return
	}

	noModelsItem.Hide()
	for i, m := range list {
		if i >= maxModelSlots {
			break
		}
		modelSlots[i].SetTitle(formatModelTitle(m))
		modelSlots[i].Show()
	}
}

// copyModelAtSlot copies the model name at the given menu slot.
func copyModelAtSlot(slot int) {
	slotMu.RLock()
	name := slotModels[slot]
	slotMu.RUnlock()

	if name == "" {
		return
	}

	if err := clipboard.WriteAll(name); err != nil {
		logger.Warn("failed to copy model name", zap.String("model", name), zap.Error(err))
		return
	}
	logger.Info("model name copied", zap.String("model", name))
}

func notify(title, message string) {
	if err := beeep.Notify(title, message, ""); err != nil {
		logger.Debug("desktop notification failed", zap.Error(err))
	}
}

func formatTooltip(st service.State, detail string) string {
	if detail != "" {
		return fmt.Sprintf("Ollama: %s (%s)", st.Label(), detail)
	}
	return "Ollama: " + st.Label()
}

func formatModelTitle(m ollama.Model) string {
	if m.Size == "" {
		return m.Name
	}
	return fmt.Sprintf("%s (%s)", m.Name, m.Size)
}
