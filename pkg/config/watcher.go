package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 300 * time.Millisecond

// WatchConfig watches the given files and emits on the returned channel once
// per burst of changes. Parent directories are watched rather than the files
// themselves so atomic saves (write temp, rename over) keep being seen. The
// channel is closed when ctx is cancelled.
func WatchConfig(ctx context.Context, files ...string) <-chan struct{} {
	reloadCh := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create fsnotify watcher", "error", err)
		close(reloadCh)
		return reloadCh
	}

	targets := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			slog.Warn("Could not resolve absolute path for watch file", "file", file)
			continue
		}
		targets[absPath] = true
		dirs[filepath.Dir(absPath)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			slog.Warn("Could not watch config directory", "dir", dir, "error", err)
		}
	}

	go func() {
		defer watcher.Close()
		defer close(reloadCh)

		debounce := time.NewTimer(reloadDebounce)
		debounce.Stop()
		defer debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !targets[filepath.Clean(event.Name)] {
					continue
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename) {
					debounce.Reset(reloadDebounce)
				}
			case <-debounce.C:
				slog.Info("Configuration change detected", "files", len(targets))
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Watcher encountered an error", "error", err)
			}
		}
	}()

	return reloadCh
}

// WatchSystemConfig reloads the system config at path whenever it changes and
// hands the fresh copy to apply. It blocks until ctx is cancelled.
func WatchSystemConfig(ctx context.Context, path string, apply func(*SystemConfig)) {
	reloadCh := WatchConfig(ctx, path)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-reloadCh:
			if !ok {
				return
			}
			sys := LoadSystemConfig(path)
			slog.Info("System config reloaded", "file", path, "log_level", sys.LogLevel)
			apply(sys)
		}
	}
}
