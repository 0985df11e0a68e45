package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("file sink", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ollamatray.log")
		log, err := New(Config{Level: "info", File: path, MaxSizeMB: 1})
		require.NoError(t, err)

		log.Info("started")
		require.NoError(t, log.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Contains(t, string(data), "started")
	})

	t.Run("debug entries below level are dropped", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ollamatray.log")
		log, err := New(Config{Level: "warn", File: path, MaxSizeMB: 1})
		require.NoError(t, err)

		log.Info("quiet")
		log.Warn("loud")
		require.NoError(t, log.Sync())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NotContains(t, string(data), "quiet")
		require.Contains(t, string(data), "loud")
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(Config{Level: "shouting"})
		require.Error(t, err)
	})

	t.Run("no sinks yields a nop logger", func(t *testing.T) {
		log, err := New(Config{Level: "info"})
		require.NoError(t, err)
		log.Info("goes nowhere")
	})
}
