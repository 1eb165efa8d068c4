package config

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matchchat.yaml")
	cfg := DefaultConfig()
	require.NoError(t, cfg.Save(path))

	var got atomic.Value
	w, err := NewWatcher(path, func(c *Config) { got.Store(c.Polling.MessageInterval) })
	require.NoError(t, err)
	w.debounceDur = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	cfg.Polling.MessageInterval = "3s"
	require.NoError(t, cfg.Save(path))

	assert.Eventually(t, func() bool {
		v, _ := got.Load().(string)
		return v == "3s"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherIgnoresInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matchchat.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	var calls atomic.Int32
	w, err := NewWatcher(path, func(*Config) { calls.Add(1) })
	require.NoError(t, err)
	w.debounceDur = 10 * time.Millisecond
	w.reload()
	assert.Equal(t, int32(1), calls.Load())

	bad := DefaultConfig()
	bad.Polling.MessageInterval = "-1s"
	require.NoError(t, bad.Save(path))
	w.reload()
	assert.Equal(t, int32(1), calls.Load())
	w.Stop()
}
