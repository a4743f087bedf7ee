package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchSystemConfigReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"info"}`), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *SystemConfig, 1)
	go WatchSystemConfig(ctx, path, func(sys *SystemConfig) {
		select {
		case got <- sys:
		default:
		}
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"debug"}`), 0644))

	select {
	case sys := <-got:
		assert.Equal(t, "debug", sys.LogLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload after the file changed")
	}
}

func TestWatchConfigSeesAtomicSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloadCh := WatchConfig(ctx, path)

	time.Sleep(100 * time.Millisecond)
	tmp := filepath.Join(dir, "system.json.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(`{"log_level":"warn"}`), 0644))
	require.NoError(t, os.Rename(tmp, path))

	select {
	case <-reloadCh:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a reload after the rename")
	}
}

func TestWatchConfigClosesOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	reloadCh := WatchConfig(ctx, path)
	cancel()

	select {
	case _, ok := <-reloadCh:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
