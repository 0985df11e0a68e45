// Package tray implements the system tray icon and menu.
package tray

import (
	"context"

	"github.com/ollamatray-io/ollamatray/internal/models"
	"github.com/ollamatray-io/ollamatray/internal/ollama"
	"github.com/ollamatray-io/ollamatray/internal/service"
)

// App provides the tray's view of the application: the canonical state,
// control requests, process detail and model listing. The Changes and
// Results subscriptions must exist before the reconciler starts, so the
// very first state change cannot land while the menu is not listening
// yet. Reloads signals that live-reloadable settings changed. All
// methods are safe to call from the tray's event goroutine.
type App interface {
	State() service.State
	RequestToggle()
	RequestRestart()
	RequestProbe()
	Changes() <-chan service.Change
	Results() <-chan service.ControlResult
	Reloads() <-chan struct{}
	Detail(ctx context.Context) (service.Detail, error)
	Models(ctx context.Context) ([]ollama.Model, error)
	ModelsEnabled() bool
	Notifications() models.NotifyConfig
}
