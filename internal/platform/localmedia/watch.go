package localmedia

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const presetReloadDelay = 500 * time.Millisecond

// WatchPresets reloads the preset file whenever it changes and swaps the new
// table in. A file that fails to parse leaves the current table active. The
// parent directory is watched so editors that replace the file by rename are
// still picked up. Blocks until ctx is done.
func (m *Tools) WatchPresets(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create presets watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	m.log.Info("Watching transcode presets", "path", path)

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(presetReloadDelay, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("Presets watcher error", "error", err)
		case <-reload:
			m.reloadPresets(path)
		}
	}
}

func (m *Tools) reloadPresets(path string) {
	table, err := LoadPresetsFile(path)
	if err != nil {
		m.log.Warn("Presets reload failed; keeping current table", "path", path, "error", err)
		return
	}
	m.SetPresets(table)
	m.log.Info("Transcode presets reloaded", "path", path, "labels", table.Labels())
}
