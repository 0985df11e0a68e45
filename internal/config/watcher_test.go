package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ollamatray-io/ollamatray/internal/models"
)

func startTestWatcher(t *testing.T) *Watcher {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	w, err := NewWatcher(zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)
	return w
}

func waitSettings(t *testing.T, w *Watcher) *models.Settings {
	t.Helper()
	select {
	case s := <-w.Events():
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a settings reload")
		return nil
	}
}

func TestWatcherEmitsOnSettingsWrite(t *testing.T) {
	w := startTestWatcher(t)

	s := models.NewSettings()
	s.Poll.IntervalMS = 2000
	require.NoError(t, SaveSettings(s))

	got := waitSettings(t, w)
	require.Equal(t, 2000, got.Poll.IntervalMS)
}

func TestWatcherSurvivesAtomicReplace(t *testing.T) {
	w := startTestWatcher(t)

	dir, err := Dir()
	require.NoError(t, err)
	path, err := SettingsFile()
	require.NoError(t, err)

	s := models.NewSettings()
	s.Poll.IntervalMS = 7500
	tmp := filepath.Join(dir, "settings.yaml.tmp")
	require.NoError(t, SaveYAML(tmp, s))
	require.NoError(t, os.Rename(tmp, path))

	got := waitSettings(t, w)
	require.Equal(t, 7500, got.Poll.IntervalMS)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	w := startTestWatcher(t)

	dir, err := Dir()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))

	select {
	case <-w.Events():
		t.Fatal("unrelated file produced a settings reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherKeepsPreviousOnBrokenFile(t *testing.T) {
	w := startTestWatcher(t)

	path, err := SettingsFile()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("not a settings mapping"), 0644))

	select {
	case <-w.Events():
		t.Fatal("broken settings file produced a reload")
	case <-time.After(300 * time.Millisecond):
	}
}
