package config

import (
	"fmt"
	"path/filepath"
	"time"

	"toolgate/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the bursts of filesystem events editors produce
// when they save via truncate-then-write or rename.
const debounceDelay = 250 * time.Millisecond

// Watcher invokes a callback when the configuration file changes on disk.
// The containing directory is watched rather than the file itself, so editors
// that replace the file by rename keep triggering events.
type Watcher struct {
	onChange  func()
	fsWatcher *fsnotify.Watcher
	done      chan struct{}
}

// NewWatcher starts watching configPath for changes to config.yaml. The
// callback runs on the watcher goroutine; it must not block for long.
func NewWatcher(configPath string, onChange func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	if err := fsWatcher.Add(configPath); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", configPath, err)
	}

	w := &Watcher{
		onChange:  onChange,
		fsWatcher: fsWatcher,
		done:      make(chan struct{}),
	}
	go w.run()

	logging.Debug("ConfigWatcher", "Watching %s for configuration changes", configPath)
	return w, nil
}

// run processes filesystem events until the watcher is closed.
func (w *Watcher) run() {
	defer close(w.done)

	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending && !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(debounceDelay)
			pending = true

		case <-debounce.C:
			pending = false
			logging.Info("ConfigWatcher", "Configuration file changed")
			w.onChange()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("ConfigWatcher", "Filesystem watcher error: %v", err)
		}
	}
}

// Stop closes the watcher and waits for the event goroutine to exit.
func (w *Watcher) Stop() {
	if err := w.fsWatcher.Close(); err != nil {
		logging.Warn("ConfigWatcher", "Error closing filesystem watcher: %v", err)
	}
	<-w.done
}
