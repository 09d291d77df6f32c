// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package settings

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnExternalEdit(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Update(func(s *Settings) { s.ModelID = "llama" }))

	changed := make(chan Settings, 4)
	store.Subscribe(func(s Settings) {
		select {
		case changed <- s:
		default:
		}
	})

	w, err := NewWatcher(store)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Close()

	// External edit, bypassing the store.
	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	edited := strings.Replace(string(raw), `"llama"`, `"codellama"`, 1)
	require.NoError(t, os.WriteFile(store.Path(), []byte(edited), 0600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-changed:
			if s.ModelID == "codellama" {
				return
			}
		case <-deadline:
			t.Fatal("watcher never delivered the external change")
		}
	}
}

func TestWatcherCloseStopsEventLoop(t *testing.T) {
	store, _ := newTestStore(t)

	w, err := NewWatcher(store)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		w.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestWatcherCloseWithoutStart(t *testing.T) {
	store, _ := newTestStore(t)

	w, err := NewWatcher(store)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := w.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return for a watcher that was never started")
	}
}
