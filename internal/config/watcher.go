// ABOUTME: Hot-reload of the configuration file via filesystem events
// ABOUTME: Content-hash comparison filters spurious events; a bad reload keeps the old config

package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the configuration file and invokes a callback with each
// successfully reloaded Config. A reload that fails to parse or validate is
// logged and discarded; the previous configuration stays in effect. Editors
// that replace files (rename + create) are handled by watching the parent
// directory.
type Watcher struct {
	path     string
	onReload func(*Config)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu       sync.Mutex
	lastHash string
}

// NewWatcher creates a watcher for the given config path. Call Start to
// begin receiving reloads.
func NewWatcher(path string, onReload func(*Config), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		onReload: onReload,
		logger:   logger.With("component", "config-watcher"),
		watcher:  fsw,
	}, nil
}

// Start records the current file hash and begins processing events until the
// context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if data, err := os.ReadFile(w.path); err == nil {
		w.mu.Lock()
		w.lastHash = hashBytes(data)
		w.mu.Unlock()
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Debug("watching config file", "path", w.path)

	go w.processEvents(ctx)
	return nil
}

// Stop closes the underlying filesystem watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.handleChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleChange() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Error("reading changed config file", "error", err)
		return
	}

	hash := hashBytes(data)
	w.mu.Lock()
	unchanged := hash == w.lastHash
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous configuration", "error", err)
		return
	}

	w.mu.Lock()
	w.lastHash = hash
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", "path", w.path)
	w.onReload(cfg)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
