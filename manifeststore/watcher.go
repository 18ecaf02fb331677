package manifeststore

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ReloadHandler is invoked after a manifest has been reloaded from disk.
type ReloadHandler func(providerID string)

// Watcher watches a Store's v1/providers and dist directories for changes
// and invalidates the corresponding cache entry, grounded on
// ca-x-nekobot's pkg/config/watcher.go OnConfigChange pattern but generalized
// to a directory of many manifests instead of one config file.
type Watcher struct {
	store    *Store
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	mu       sync.Mutex
	handlers []ReloadHandler
	stopCh   chan struct{}
}

// NewWatcher creates a Watcher over store. Call Start to begin watching.
func NewWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("manifeststore: creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{store: store, logger: logger, fsw: fsw, stopCh: make(chan struct{})}, nil
}

// AddHandler registers a callback fired after each successful reload.
func (w *Watcher) AddHandler(h ReloadHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Start adds the store's manifest directories to the watch list and begins
// processing filesystem events in a background goroutine. It returns
// immediately; call Stop to shut the watcher down.
func (w *Watcher) Start() error {
	providersDir := filepath.Join(w.store.baseDir, "v1", "providers")
	distDir := filepath.Join(w.store.baseDir, "dist")

	for _, dir := range []string{providersDir, distDir} {
		if err := w.fsw.Add(dir); err != nil {
			w.logger.Warn("manifeststore: not watching directory", "dir", dir, "error", err)
		}
	}

	go w.loop()
	return nil
}

// Stop terminates the watch loop and releases the underlying fsnotify handle.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.handleChange(event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("manifeststore: watch error", "error", err)
		}
	}
}

func (w *Watcher) handleChange(path string) {
	providerID := providerIDFromPath(path)
	if providerID == "" {
		return
	}

	w.store.Invalidate(providerID)
	if _, err := w.store.Load(providerID); err != nil {
		w.logger.Warn("manifeststore: reload failed", "provider", providerID, "error", err)
		return
	}

	w.logger.Info("manifeststore: reloaded manifest", "provider", providerID)
	w.mu.Lock()
	handlers := append([]ReloadHandler(nil), w.handlers...)
	w.mu.Unlock()
	for _, h := range handlers {
		h(providerID)
	}
}

func providerIDFromPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	switch ext {
	case ".yaml", ".yml", ".json":
		return strings.TrimSuffix(base, ext)
	default:
		return ""
	}
}
