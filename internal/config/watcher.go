// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the Watcher waits after the last event
// before reloading.
const DefaultDebounce = 200 * time.Millisecond

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// Watcher reloads the settings file when it changes and publishes the
// result through a Provider. The parent directory is watched, so editors
// that save by renaming a temp file over the original are seen too.
type Watcher struct {
	path     string
	dotenv   string
	provider *Provider
	debounce time.Duration
	onChange func(old, cur *Config)
	log      *slog.Logger

	mu      sync.Mutex
	pending time.Time
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchLogger sets the logger.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithDotenv sets the .env file applied on every reload.
func WithDotenv(path string) WatcherOption {
	return func(w *Watcher) { w.dotenv = path }
}

// OnChange registers fn, called after each successful reload with the
// previous and new snapshots.
func OnChange(fn func(old, cur *Config)) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

// NewWatcher creates a Watcher for path publishing into p.
func NewWatcher(path string, p *Provider, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		provider: p,
		debounce: DefaultDebounce,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	ticker := time.NewTicker(w.debounce / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.mu.Lock()
				w.pending = time.Now()
				w.mu.Unlock()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", "error", err)

		case now := <-ticker.C:
			w.mu.Lock()
			due := !w.pending.IsZero() && now.Sub(w.pending) >= w.debounce
			if due {
				w.pending = time.Time{}
			}
			w.mu.Unlock()
			if due {
				w.Reload()
			}
		}
	}
}

// Reload reads the file now. An invalid file is logged and the current
// snapshot is kept.
func (w *Watcher) Reload() {
	cfg, err := LoadFromPath(w.path, w.dotenv)
	if err != nil {
		w.log.Warn("config reload failed, keeping previous settings", "path", w.path, "error", err)
		return
	}
	old := w.provider.Store(cfg)
	w.log.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, w.provider.Current())
	}
}
