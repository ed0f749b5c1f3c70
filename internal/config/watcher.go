package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"theta_watcher/internal/logger"
)

// SettingsWatcher reloads the settings file when it changes and hands the
// new values to onChange. It watches the file's directory so editors that
// replace the file via rename are still seen, and polls the modification
// time once a second as a backstop.
type SettingsWatcher struct {
	path     string
	defaults Settings
	onChange func(Settings)

	watcher *fsnotify.Watcher

	mu          sync.Mutex
	running     bool
	lastModTime time.Time
}

// NewSettingsWatcher prepares a watcher for path. It does not start it.
func NewSettingsWatcher(path string, defaults Settings, onChange func(Settings)) (*SettingsWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	sw := &SettingsWatcher{
		path:     abs,
		defaults: defaults,
		onChange: onChange,
		watcher:  w,
	}
	if info, err := os.Stat(abs); err == nil {
		sw.lastModTime = info.ModTime()
	}
	return sw, nil
}

// Start begins watching until ctx is done or Stop is called.
func (sw *SettingsWatcher) Start(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.running {
		return fmt.Errorf("settings watcher already running")
	}
	dir := filepath.Dir(sw.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := sw.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	sw.running = true
	go sw.watchLoop(ctx)
	return nil
}

// Stop closes the underlying watcher.
func (sw *SettingsWatcher) Stop() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if !sw.running {
		return nil
	}
	sw.running = false
	return sw.watcher.Close()
}

func (sw *SettingsWatcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Stop()
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != sw.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				// let the writer finish
				time.Sleep(100 * time.Millisecond)
				sw.reload()
			}

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("settings watcher: %v", err)

		case <-ticker.C:
			sw.reload()
		}
	}
}

// reload re-reads the file if its modification time moved forward.
func (sw *SettingsWatcher) reload() {
	info, err := os.Stat(sw.path)
	if err != nil {
		return
	}

	sw.mu.Lock()
	if !info.ModTime().After(sw.lastModTime) {
		sw.mu.Unlock()
		return
	}
	sw.lastModTime = info.ModTime()
	sw.mu.Unlock()

	s, err := LoadSettings(sw.path, sw.defaults)
	if err != nil {
		logger.Errorf("settings reload rejected: %v", err)
		return
	}
	logger.Infof("settings reloaded from %s: %s", sw.path, s.Summary())
	sw.onChange(s)
}
