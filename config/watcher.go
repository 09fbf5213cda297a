package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"fluidsim/metrics"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher reloads a settings file into a Store whenever it changes on disk.
// Pause state is runtime state and survives a reload.
type Watcher struct {
	logger  *zap.Logger
	store   *Store
	watcher *fsnotify.Watcher

	path     string
	debounce time.Duration

	// OnReload is called with every successfully applied file
	OnReload func(Settings)
}

// NewWatcher watches the directory holding path, so editors that replace the
// file by renaming are still seen.
func NewWatcher(logger *zap.Logger, store *Store, path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		logger:   logger,
		store:    store,
		watcher:  fw,
		path:     abs,
		debounce: defaultDebounce,
	}, nil
}

// Run blocks until ctx is done or the underlying watcher closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info("watching config file", zap.String("path", w.path))

	debounceTimer := time.NewTimer(w.debounce)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				w.logger.Debug("config change detected",
					zap.String("file", event.Name),
					zap.String("op", event.Op.String()))
				debounceTimer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-debounceTimer.C:
			w.Reload()

		case <-ctx.Done():
			w.logger.Info("stopping config watcher")
			return nil
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// Reload reads the file and publishes its simulation section. A file that
// fails to parse or validate leaves the live snapshot untouched.
func (w *Watcher) Reload() {
	s, err := Load(w.path)
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}

	err = w.store.Update(func(next *SimulationConfig) error {
		paused := next.Paused
		*next = s.Simulation
		next.Paused = paused
		return nil
	})
	if err != nil {
		metrics.ConfigReloads.WithLabelValues("error").Inc()
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return
	}

	metrics.ConfigReloads.WithLabelValues("ok").Inc()
	w.logger.Info("config reloaded", zap.String("path", w.path))
	if w.OnReload != nil {
		w.OnReload(s)
	}
}
