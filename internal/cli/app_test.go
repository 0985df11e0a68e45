package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ollamatray-io/ollamatray/internal/models"
	"github.com/ollamatray-io/ollamatray/internal/service"
)

func TestTimingFromSettings(t *testing.T) {
	s := models.NewSettings()
	s.Poll.IntervalMS = 3000
	s.Poll.ProbeTimeoutMS = 2000

	timing := timingFromSettings(s)
	require.Equal(t, 3*time.Second, timing.Interval)
	require.Equal(t, 2*time.Second, timing.ProbeTimeout)
	require.Equal(t, 2*time.Minute, timing.ControlTimeout)
	require.Equal(t, time.Second, timing.ConfirmDelay)
}

func TestBuildBackend(t *testing.T) {
	t.Run("systemctl backend", func(t *testing.T) {
		s := models.NewSettings()
		prober, controller, resolver, closeBackend := buildBackend(s, zap.NewNop())
		defer closeBackend()

		require.IsType(t, &service.SystemctlProber{}, prober)
		require.IsType(t, &service.SystemctlController{}, controller)
		require.IsType(t, &service.SystemctlProber{}, resolver)
	})

	t.Run("dbus backend serves all three roles", func(t *testing.T) {
		s := models.NewSettings()
		s.Service.Backend = models.BackendDBus

		prober, controller, resolver, closeBackend := buildBackend(s, zap.NewNop())
		defer closeBackend()

		require.IsType(t, &service.DBusBackend{}, prober)
		require.Same(t, prober, controller)
		require.Same(t, prober, resolver)
	})
}

// stubProber reports one fixed state.
type stubProber struct{ state service.State }

func (p stubProber) Probe(context.Context) service.State { return p.state }

type stubController struct{}

func (stubController) Apply(context.Context, service.Transition) error { return nil }

func newTestTrayApp(t *testing.T, state service.State) *trayApp {
	t.Helper()
	rec := service.NewReconciler(stubProber{state: state}, stubController{}, service.Timing{}, zap.NewNop())
	return newTrayApp(rec, nil, models.NewSettings(), zap.NewNop())
}

func TestTrayAppReceivesFirstChange(t *testing.T) {
	// The subscription is made at construction, before the loop starts,
	// so even an instantly-completing first probe has a listener.
	app := newTestTrayApp(t, service.StateRunning)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go app.rec.Run(ctx)

	select {
	case c := <-app.Changes():
		require.Equal(t, service.StateUnknown, c.Old)
		require.Equal(t, service.StateRunning, c.New)
	case <-time.After(2 * time.Second):
		t.Fatal("first state change never reached the tray subscription")
	}
}

func TestTrayAppSettingsSwap(t *testing.T) {
	app := newTestTrayApp(t, service.StateStopped)
	require.True(t, app.Notifications().OnControlError)
	require.True(t, app.ModelsEnabled())

	next := models.NewSettings()
	next.Notifications.OnControlError = false
	next.Models.Enabled = false
	app.updateSettings(next)

	require.False(t, app.Notifications().OnControlError)
	require.False(t, app.ModelsEnabled())
}

func TestTrayAppReloadSignalsAndSwapsClient(t *testing.T) {
	app := newTestTrayApp(t, service.StateStopped)
	original := app.client

	next := models.NewSettings()
	next.Models.Command = "/opt/ollama/bin/ollama"
	app.updateSettings(next)

	// The tray is told so it can re-apply the models submenu, and the
	// next listing runs the new binary.
	select {
	case <-app.Reloads():
	default:
		t.Fatal("settings reload was not signalled to the tray")
	}
	require.NotSame(t, original, app.client)

	// An unchanged command keeps the client.
	kept := app.client
	app.updateSettings(next)
	require.Same(t, kept, app.client)
}

func TestApplyReloadPinsServiceIdentity(t *testing.T) {
	app := newTestTrayApp(t, service.StateStopped)

	next := models.NewSettings()
	next.Service.Unit = "some-other"
	next.Poll.IntervalMS = 2000

	applyReload(next, app.rec, app, zap.NewNop())

	// The unit change needs a restart; the cadence change applies live.
	require.Equal(t, "ollama", app.current().Service.Unit)
	require.Equal(t, 2000, app.current().Poll.IntervalMS)
}
