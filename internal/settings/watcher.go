// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jeranaias/multitool/internal/logging"
)

// debounceDelay coalesces rapid write bursts (editors often emit several
// events per save) into a single reload.
const debounceDelay = 300 * time.Millisecond

// Watcher reloads the Store when the settings file changes on disk.
// It watches the containing directory because atomic writes replace the
// file inode, which breaks direct file watches.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	mu      sync.Mutex
	pending bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher for the store's settings file. Call Start
// to begin watching and Close to stop.
func NewWatcher(store *Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		store:   store,
		watcher: fw,
		logger:  logging.Component("settings-watcher"),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. It returns immediately; reloads happen on a
// background goroutine until ctx is canceled or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.store.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ctx, w.cancel = context.WithCancel(ctx)
	go w.processEvents(ctx)
	w.logger.Debug().Str("dir", dir).Msg("settings watcher started")
	return nil
}

// Close stops the watcher and waits for the event loop to exit. Closing a
// watcher that was never started is allowed.
func (w *Watcher) Close() error {
	if w.cancel == nil {
		// Start never ran, so there is no event loop to wait for.
		return w.watcher.Close()
	}
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(debounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.mu.Lock()
			w.pending = true
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("settings watcher error")

		case <-ticker.C:
			w.mu.Lock()
			fire := w.pending
			w.pending = false
			w.mu.Unlock()
			if !fire {
				continue
			}
			if err := w.store.Reload(); err != nil {
				w.logger.Warn().Err(err).Msg("settings reload failed")
			} else {
				w.logger.Info().Msg("settings reloaded from disk")
			}
		}
	}
}

// relevant reports whether the event concerns the settings file itself.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) != SettingsFileName {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename)
}
