// Package watcher triggers a reload when the combined series file changes on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"traffic-platform/pkg/logging"
)

// FileMonitor watches the directory of a single file. Watching the directory
// instead of the file keeps working across atomic rename-into-place writes.
type FileMonitor struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logging.StructuredLogger
}

// NewFileMonitor starts watching the directory that holds path. Bursts of
// events within debounce are collapsed into one reload.
func NewFileMonitor(path string, debounce time.Duration, logger *logging.StructuredLogger) (*FileMonitor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &FileMonitor{
		path:     abs,
		watcher:  watcher,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Path returns the watched file
func (m *FileMonitor) Path() string {
	return m.path
}

func (m *FileMonitor) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != m.path {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}

// Watch calls handler after the watched file was created or written, until
// ctx is done or the watcher is closed. Handler calls never overlap. Watcher
// errors are logged and watching goes on; an event queue overflow schedules a
// reload since the change may have been among the dropped events.
func (m *FileMonitor) Watch(ctx context.Context, handler func(ctx context.Context, path string)) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	arm := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(m.debounce)
		fire = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if !m.relevant(event) {
				continue
			}
			m.logger.Debug(ctx, "[WATCH_EVENT] Combined series changed", logging.Fields{
				"file_path": event.Name,
				"op":        event.Op.String(),
			})
			arm()

		case <-fire:
			fire = nil
			if _, err := os.Stat(m.path); err != nil {
				m.logger.Warn(ctx, "[WATCH_SKIP] Combined series not readable", logging.Fields{
					"file_path": m.path,
					"error":     err.Error(),
				})
				continue
			}
			handler(ctx, m.path)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			overflow := errors.Is(err, fsnotify.ErrEventOverflow)
			m.logger.Error(ctx, "[WATCH_ERROR] File watcher reported an error", logging.Fields{
				"file_path": m.path,
				"overflow":  overflow,
			}, err)
			if overflow {
				arm()
			}
		}
	}
}

// Close stops watching
func (m *FileMonitor) Close() error {
	return m.watcher.Close()
}
